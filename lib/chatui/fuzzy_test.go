// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"testing"
)

func TestFuzzyMatchBasic(t *testing.T) {
	result := FuzzyMatch("Kitchen Ceiling Light", []rune("ceiling"), nil)
	if !result.Matched {
		t.Fatal("expected substring pattern to match")
	}
	if result.Score <= 0 {
		t.Fatalf("expected positive score, got %d", result.Score)
	}
	if len(result.Positions) == 0 {
		t.Fatal("expected non-empty match positions")
	}
}

func TestFuzzyMatchNonContiguous(t *testing.T) {
	// "klt" picks up k from kitchen, l from light, t from light.
	result := FuzzyMatch("kitchen light", []rune("klt"), nil)
	if !result.Matched {
		t.Fatal("expected non-contiguous pattern to match")
	}
}

func TestFuzzyMatchNoMatch(t *testing.T) {
	result := FuzzyMatch("Kitchen Ceiling Light", []rune("xyz"), nil)
	if result.Matched {
		t.Error("expected no match")
	}
	if len(result.Positions) != 0 {
		t.Errorf("expected empty positions for no match, got %v", result.Positions)
	}
}

func TestFuzzyMatchCaseInsensitive(t *testing.T) {
	// lowerPattern lowercases the query and the matcher folds the
	// text, so a mixed-case query matches all-caps text.
	result := FuzzyMatch("LIVING ROOM THERMOSTAT", lowerPattern("thermo"), nil)
	if !result.Matched {
		t.Fatal("expected case-insensitive match against all-caps text")
	}
}

func TestFuzzyMatchEmptyPattern(t *testing.T) {
	result := FuzzyMatch("anything", []rune{}, nil)
	if !result.Matched {
		t.Error("empty pattern should match everything")
	}
}

func TestFuzzyMatchWithSlab(t *testing.T) {
	// The slab is a reusable scratch allocation; results must be
	// identical with and without it.
	slab := NewSlab()
	withSlab := FuzzyMatch("bedroom lamp", []rune("blamp"), slab)
	without := FuzzyMatch("bedroom lamp", []rune("blamp"), nil)
	if withSlab.Score != without.Score {
		t.Errorf("slab changed the score: %d vs %d", withSlab.Score, without.Score)
	}
}

func TestFuzzyMatchPreferredBoundary(t *testing.T) {
	// Word-boundary matches score higher than mid-word matches.
	boundary := FuzzyMatch("ceiling light", []rune("light"), nil)
	midWord := FuzzyMatch("backlighting", []rune("light"), nil)
	if boundary.Score <= midWord.Score {
		t.Errorf("boundary match should outscore mid-word: %d vs %d",
			boundary.Score, midWord.Score)
	}
}
