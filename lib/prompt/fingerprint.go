// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/majordomo-home/majordomo/lib/hub"
)

// Fingerprint is a 32-byte BLAKE3 digest of everything a render
// depends on except the clock. Two renders with equal fingerprints
// differ only in the injected timestamp.
type Fingerprint [32]byte

// String returns the hex form, used in logs and status output.
func (fingerprint Fingerprint) String() string {
	return hex.EncodeToString(fingerprint[:])
}

// promptDomainKey is the BLAKE3 keyed-hash domain for context
// fingerprints. The bytes are the ASCII domain name zero-padded to 32,
// readable in hex dumps without weakening the keyed mode.
var promptDomainKey = [32]byte{
	'm', 'a', 'j', 'o', 'r', 'd', 'o', 'm', 'o', '.', 'p', 'r', 'o', 'm', 'p', 't',
	'.', 'c', 'o', 'n', 't', 'e', 'x', 't', 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint digests the render-relevant content: persona, the
// effective attribute subset, and each area's entities with the
// attribute values the template would show. Attributes outside the
// subset do not affect the render, so they do not affect the
// fingerprint; neither does the snapshot time.
func (builder *Builder) Fingerprint(snapshot *hub.Snapshot, persona string) Fingerprint {
	hasher, err := blake3.NewKeyed(promptDomainKey[:])
	if err != nil {
		panic("prompt: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	// Length-prefixed fields and count-prefixed sections keep the
	// encoding injective: no two distinct inputs serialize to the
	// same byte stream.
	writeField := func(field string) {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(field)))
		hasher.Write(length[:])
		hasher.Write([]byte(field))
	}
	writeCount := func(count int) {
		var encoded [4]byte
		binary.BigEndian.PutUint32(encoded[:], uint32(count))
		hasher.Write(encoded[:])
	}

	writeField(strings.TrimSpace(persona))
	writeCount(len(builder.attributes))
	for _, attribute := range builder.attributes {
		writeField(attribute)
	}
	writeCount(len(snapshot.Areas))
	for _, area := range snapshot.Areas {
		writeField(area.Name)
		writeCount(len(area.Entities))
		for _, entity := range area.Entities {
			writeField(entity.ID)
			writeField(entity.Name)
			writeField(entity.State)
			writeField(builder.formatAttributes(entity.Attributes))
		}
	}

	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint
}
