// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult describes one fuzzy match: whether the pattern matched,
// fzf's score (higher is better), and the rune positions of the
// matched characters for highlighting.
type FuzzyResult struct {
	Matched   bool
	Score     int
	Positions []int
}

// Slab sizes match fzf's own defaults; one slab is reused across all
// match calls of a filter pass.
const (
	slab16Size = 100 * 1024
	slab32Size = 2048
)

// NewSlab allocates the scratch memory FuzzyMatch uses. Callers keep
// one per filter loop; it must not be shared across goroutines.
func NewSlab() *util.Slab {
	return util.MakeSlab(slab16Size, slab32Size)
}

// FuzzyMatch runs fzf's V2 matching algorithm (the full
// Smith-Waterman-style scorer with position tracking) against a
// single text. Matching is case-insensitive: the pattern is expected
// lowercase, as fzf's own pattern layer does it.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{Matched: true}
	}
	chars := util.ToChars([]byte(text))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, pattern, true, slab)
	if result.Start < 0 {
		return FuzzyResult{}
	}
	matched := FuzzyResult{Matched: true, Score: result.Score}
	if positions != nil {
		matched.Positions = *positions
	}
	return matched
}

// lowerPattern converts a query string to the lowercase rune slice
// FuzzyMatch expects.
func lowerPattern(query string) []rune {
	return []rune(strings.ToLower(query))
}
