// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/conversation"
)

var testStart = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

func newTestRecorder(t *testing.T, recipient string) (*Recorder, *clock.FakeClock, string) {
	t.Helper()
	directory := t.TempDir()
	fakeClock := clock.Fake(testStart)
	recorder, err := NewRecorder(Config{
		Agent:     "kitchen",
		Directory: directory,
		Recipient: recipient,
		Clock:     fakeClock,
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	t.Cleanup(func() { recorder.Close() })
	return recorder, fakeClock, directory
}

func archiveEntries(t *testing.T, directory string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(directory, "archive"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return entries
}

func TestRecordAndArchive(t *testing.T) {
	t.Parallel()

	recorder, _, directory := newTestRecorder(t, "")

	err := recorder.Record(TurnRecord{
		SessionID:  "s1",
		UserText:   "turn on the light",
		State:      conversation.TurnDone,
		Text:       "Done.",
		ModelCalls: 2,
		ToolCalls: []conversation.ToolCallRecord{{
			ID:        "toolu_1",
			Name:      "call_device_service",
			Arguments: json.RawMessage(`{"service":"light.turn_on","target_device":"light.kitchen"}`),
			Output:    `{"result":"success"}`,
		}},
		InputTokens:  220,
		OutputTokens: 50,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := recorder.Record(TurnRecord{SessionID: "s1", UserText: "thanks", State: conversation.TurnDone, Text: "Any time."}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	activePath := filepath.Join(directory, "s1.jsonl")
	if _, err := os.Stat(activePath); err != nil {
		t.Fatalf("active file missing: %v", err)
	}

	if err := recorder.Archive("s1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := os.Stat(activePath); !os.IsNotExist(err) {
		t.Errorf("active file still present after archive: %v", err)
	}

	entries := archiveEntries(t, directory)
	if length := len(entries); length != 1 {
		t.Fatalf("archive directory holds %d files, want 1", length)
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "s1-") || !strings.HasSuffix(name, ".jsonl.zst") {
		t.Fatalf("archive name = %q", name)
	}

	records, err := ReadArchive(filepath.Join(directory, "archive", name), "")
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if length := len(records); length != 2 {
		t.Fatalf("archive holds %d records, want 2", length)
	}

	first := records[0]
	if first.Agent != "kitchen" || first.SessionID != "s1" {
		t.Errorf("identity = %q/%q", first.Agent, first.SessionID)
	}
	if !first.Time.Equal(testStart) {
		t.Errorf("time = %v, want the recorder clock", first.Time)
	}
	if first.UserText != "turn on the light" || first.Text != "Done." {
		t.Errorf("texts = %q / %q", first.UserText, first.Text)
	}
	if length := len(first.ToolCalls); length != 1 {
		t.Fatalf("tool calls = %d", length)
	}
	if first.ToolCalls[0].Name != "call_device_service" {
		t.Errorf("tool call = %+v", first.ToolCalls[0])
	}
	if first.InputTokens != 220 || first.OutputTokens != 50 {
		t.Errorf("usage = %d/%d", first.InputTokens, first.OutputTokens)
	}
	if records[1].UserText != "thanks" {
		t.Errorf("second record = %+v", records[1])
	}
}

func TestArchiveEncrypted(t *testing.T) {
	t.Parallel()

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}
	recorder, _, directory := newTestRecorder(t, identity.Recipient().String())

	if err := recorder.Record(TurnRecord{SessionID: "s1", UserText: "hello", State: conversation.TurnDone, Text: "Hi."}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := recorder.Archive("s1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	entries := archiveEntries(t, directory)
	if length := len(entries); length != 1 {
		t.Fatalf("archive directory holds %d files, want 1", length)
	}
	name := entries[0].Name()
	if !strings.HasSuffix(name, ".jsonl.zst.age") {
		t.Fatalf("archive name = %q, want an encrypted suffix", name)
	}
	path := filepath.Join(directory, "archive", name)

	if _, err := ReadArchive(path, ""); err == nil {
		t.Fatal("encrypted archive read without a key")
	}

	records, err := ReadArchive(path, identity.String())
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(records) != 1 || records[0].UserText != "hello" {
		t.Errorf("records = %+v", records)
	}
}

func TestArchiveMissingSession(t *testing.T) {
	t.Parallel()

	recorder, _, directory := newTestRecorder(t, "")
	if err := recorder.Archive("never-spoke"); err != nil {
		t.Fatalf("Archive on missing session: %v", err)
	}
	if entries := archiveEntries(t, directory); len(entries) != 0 {
		t.Errorf("no-op archive created %d files", len(entries))
	}
}

func TestArchiveThenFreshFile(t *testing.T) {
	t.Parallel()

	recorder, fakeClock, directory := newTestRecorder(t, "")

	if err := recorder.Record(TurnRecord{SessionID: "s1", UserText: "one"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := recorder.Archive("s1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	// The same session id after archiving starts a new file, and a
	// later archive of it gets a distinct name.
	fakeClock.Advance(time.Second)
	if err := recorder.Record(TurnRecord{SessionID: "s1", UserText: "two"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := recorder.Archive("s1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	entries := archiveEntries(t, directory)
	if length := len(entries); length != 2 {
		t.Fatalf("archive directory holds %d files, want 2", length)
	}
	records, err := ReadArchive(filepath.Join(directory, "archive", entries[1].Name()), "")
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(records) != 1 || records[0].UserText != "two" {
		t.Errorf("second archive records = %+v", records)
	}
}

func TestCloseKeepsActiveFiles(t *testing.T) {
	t.Parallel()

	recorder, _, directory := newTestRecorder(t, "")
	if err := recorder.Record(TurnRecord{SessionID: "s1", UserText: "before restart"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(directory, "s1.jsonl")); err != nil {
		t.Fatalf("active file lost on close: %v", err)
	}

	// A new recorder over the same directory appends to the file.
	reopened, err := NewRecorder(Config{Agent: "kitchen", Directory: directory, Clock: clock.Fake(testStart)})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Record(TurnRecord{SessionID: "s1", UserText: "after restart"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := reopened.Archive("s1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	entries := archiveEntries(t, directory)
	records, err := ReadArchive(filepath.Join(directory, "archive", entries[0].Name()), "")
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if length := len(records); length != 2 {
		t.Fatalf("archive holds %d records, want both halves", length)
	}
	if records[0].UserText != "before restart" || records[1].UserText != "after restart" {
		t.Errorf("records = %q, %q", records[0].UserText, records[1].UserText)
	}
}

func TestNewRecorderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRecorder(Config{}); err == nil {
		t.Error("missing directory accepted")
	}
	if _, err := NewRecorder(Config{Directory: t.TempDir(), Recipient: "not-a-key"}); err == nil {
		t.Error("malformed recipient accepted")
	}
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"550e8400-e29b-41d4-a716-446655440000", "550e8400-e29b-41d4-a716-446655440000"},
		{"kitchen session #7", "kitchen_session__7"},
		{"../x", "_x"},
		{"...", "session"},
		{"", "session"},
	}
	for _, test := range tests {
		if got := safeName(test.in); got != test.want {
			t.Errorf("safeName(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
