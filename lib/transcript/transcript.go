// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript records finished turns as JSON Lines, one active
// file per session, and archives a session's file when the session
// ends. Archives are zstd-compressed and, when a recipient key is
// configured, age-encrypted on top — transcripts hold everything the
// user said at home, so at-rest protection is a configuration away.
//
// Active files survive a daemon restart: a session that continues
// after a restart appends to its existing file. Only expiry and reset
// archive a transcript.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/conversation"
)

// TurnRecord is one transcript line: what the user said, how the turn
// ended, and what it cost. Time and Agent are stamped by the recorder.
type TurnRecord struct {
	Time         time.Time                     `json:"time"`
	Agent        string                        `json:"agent"`
	SessionID    string                        `json:"session_id"`
	UserText     string                        `json:"user_text"`
	State        conversation.TurnState        `json:"state"`
	Text         string                        `json:"text"`
	ModelCalls   int                           `json:"model_calls"`
	ToolCalls    []conversation.ToolCallRecord `json:"tool_calls,omitempty"`
	InputTokens  int64                         `json:"input_tokens"`
	OutputTokens int64                         `json:"output_tokens"`
}

// Config holds the parameters for creating a transcript recorder.
type Config struct {
	// Agent is stamped into every record.
	Agent string

	// Directory holds the active per-session files. Created if
	// missing.
	Directory string

	// ArchiveDirectory receives finished archives. Defaults to
	// Directory/archive.
	ArchiveDirectory string

	// Recipient is an optional age public key (age1...). When set,
	// archives are encrypted to it after compression.
	Recipient string

	// Clock stamps records and names archives.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Recorder appends turn records and archives finished sessions. Safe
// for concurrent use.
type Recorder struct {
	agent            string
	directory        string
	archiveDirectory string
	recipient        age.Recipient
	clock            clock.Clock
	logger           *slog.Logger

	mutex sync.Mutex
	files map[string]*os.File
}

// NewRecorder validates the configuration and creates the directories.
func NewRecorder(config Config) (*Recorder, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("transcript: Directory is required")
	}

	archiveDirectory := config.ArchiveDirectory
	if archiveDirectory == "" {
		archiveDirectory = filepath.Join(config.Directory, "archive")
	}
	if err := os.MkdirAll(config.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("transcript: creating %s: %w", config.Directory, err)
	}
	if err := os.MkdirAll(archiveDirectory, 0o700); err != nil {
		return nil, fmt.Errorf("transcript: creating %s: %w", archiveDirectory, err)
	}

	var recipient age.Recipient
	if config.Recipient != "" {
		parsed, err := age.ParseX25519Recipient(config.Recipient)
		if err != nil {
			return nil, fmt.Errorf("transcript: parsing recipient key: %w", err)
		}
		recipient = parsed
	}

	recorderClock := config.Clock
	if recorderClock == nil {
		recorderClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Recorder{
		agent:            config.Agent,
		directory:        config.Directory,
		archiveDirectory: archiveDirectory,
		recipient:        recipient,
		clock:            recorderClock,
		logger:           logger,
		files:            make(map[string]*os.File),
	}, nil
}

// Record appends one turn to the session's active file, opening it on
// first use.
func (recorder *Recorder) Record(record TurnRecord) error {
	record.Time = recorder.clock.Now().UTC()
	record.Agent = recorder.agent

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("transcript: encoding record: %w", err)
	}
	line = append(line, '\n')

	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()

	file, err := recorder.activeFile(record.SessionID)
	if err != nil {
		return err
	}
	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("transcript: writing record for %s: %w", record.SessionID, err)
	}
	return nil
}

// activeFile returns the session's open file, opening it in append
// mode on first use. Caller holds the mutex.
func (recorder *Recorder) activeFile(sessionID string) (*os.File, error) {
	name := safeName(sessionID)
	if file, ok := recorder.files[name]; ok {
		return file, nil
	}
	path := filepath.Join(recorder.directory, name+".jsonl")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("transcript: opening %s: %w", path, err)
	}
	recorder.files[name] = file
	return file, nil
}

// Archive compresses (and encrypts, when configured) the session's
// active file into the archive directory and removes the original. A
// session with no transcript is a no-op. After archiving, a new turn
// for the same session id starts a fresh file.
func (recorder *Recorder) Archive(sessionID string) error {
	name := safeName(sessionID)

	recorder.mutex.Lock()
	if file, ok := recorder.files[name]; ok {
		delete(recorder.files, name)
		if err := file.Close(); err != nil {
			recorder.mutex.Unlock()
			return fmt.Errorf("transcript: closing active file for %s: %w", sessionID, err)
		}
	}
	recorder.mutex.Unlock()

	activePath := filepath.Join(recorder.directory, name+".jsonl")
	source, err := os.Open(activePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("transcript: opening %s: %w", activePath, err)
	}
	defer source.Close()

	archiveName := fmt.Sprintf("%s-%d.jsonl.zst", name, recorder.clock.Now().Unix())
	if recorder.recipient != nil {
		archiveName += ".age"
	}
	archivePath := filepath.Join(recorder.archiveDirectory, archiveName)

	if err := recorder.writeArchive(archivePath, source); err != nil {
		os.Remove(archivePath)
		return err
	}
	if err := os.Remove(activePath); err != nil {
		return fmt.Errorf("transcript: removing %s: %w", activePath, err)
	}
	recorder.logger.Info("transcript archived", "session", sessionID, "path", archivePath)
	return nil
}

// writeArchive streams source through zstd (and age when configured)
// into a new archive file. The stack closes innermost-first so every
// layer flushes its trailer.
func (recorder *Recorder) writeArchive(path string, source io.Reader) error {
	destination, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("transcript: creating archive %s: %w", path, err)
	}

	var sink io.Writer = destination
	var encryptor io.WriteCloser
	if recorder.recipient != nil {
		encryptor, err = age.Encrypt(destination, recorder.recipient)
		if err != nil {
			destination.Close()
			return fmt.Errorf("transcript: starting encryption: %w", err)
		}
		sink = encryptor
	}

	compressor, err := zstd.NewWriter(sink)
	if err != nil {
		if encryptor != nil {
			encryptor.Close()
		}
		destination.Close()
		return fmt.Errorf("transcript: starting compression: %w", err)
	}

	if _, err := io.Copy(compressor, source); err != nil {
		compressor.Close()
		if encryptor != nil {
			encryptor.Close()
		}
		destination.Close()
		return fmt.Errorf("transcript: compressing into %s: %w", path, err)
	}
	if err := compressor.Close(); err != nil {
		if encryptor != nil {
			encryptor.Close()
		}
		destination.Close()
		return fmt.Errorf("transcript: finishing compression: %w", err)
	}
	if encryptor != nil {
		if err := encryptor.Close(); err != nil {
			destination.Close()
			return fmt.Errorf("transcript: finishing encryption: %w", err)
		}
	}
	if err := destination.Close(); err != nil {
		return fmt.Errorf("transcript: closing archive %s: %w", path, err)
	}
	return nil
}

// Close closes every open active file without archiving it, so the
// sessions can continue after a restart.
func (recorder *Recorder) Close() error {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()

	var problems []error
	for name, file := range recorder.files {
		if err := file.Close(); err != nil {
			problems = append(problems, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	recorder.files = make(map[string]*os.File)
	if len(problems) > 0 {
		return fmt.Errorf("transcript: %w", errors.Join(problems...))
	}
	return nil
}

// ReadArchive decodes an archive back into records. privateKey is the
// age identity (AGE-SECRET-KEY-1...) for encrypted archives and
// ignored otherwise.
func ReadArchive(path, privateKey string) ([]TurnRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: opening archive %s: %w", path, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".age") {
		if privateKey == "" {
			return nil, fmt.Errorf("transcript: archive %s is encrypted, private key required", path)
		}
		identity, err := age.ParseX25519Identity(privateKey)
		if err != nil {
			return nil, fmt.Errorf("transcript: parsing private key: %w", err)
		}
		decryptor, err := age.Decrypt(file, identity)
		if err != nil {
			return nil, fmt.Errorf("transcript: decrypting %s: %w", path, err)
		}
		reader = decryptor
	}

	decompressor, err := zstd.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("transcript: decompressing %s: %w", path, err)
	}
	defer decompressor.Close()

	var records []TurnRecord
	scanner := bufio.NewScanner(decompressor)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record TurnRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("transcript: decoding record %d in %s: %w", len(records), path, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transcript: reading %s: %w", path, err)
	}
	return records, nil
}

// safeName maps a session id to a filesystem-safe file stem. Session
// ids normally are UUIDs, but the id is caller-chosen, so path
// separators and dot prefixes must not reach the filesystem.
func safeName(sessionID string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, sessionID)
	mapped = strings.Trim(mapped, ".")
	if mapped == "" {
		return "session"
	}
	return mapped
}
