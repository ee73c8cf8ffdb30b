// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/majordomo-home/majordomo/lib/service"
)

// entityOverlay is the exposed-entity picker: a fuzzy-filtered list
// of everything the assistant can see, so the user can check what a
// device is called before asking for it. Enter inserts the selected
// entity's name into the input; escape dismisses.
type entityOverlay struct {
	entities []service.EntityReply
	query    string
	matches  []entityMatch
	cursor   int
	theme    Theme
}

// entityMatch pairs an entity with its current fuzzy score and match
// positions against the display label.
type entityMatch struct {
	entity    service.EntityReply
	score     int
	positions []int
}

// overlayMaxRows bounds the visible list; the filter is the way to
// reach anything below the fold.
const overlayMaxRows = 12

func newEntityOverlay(entities []service.EntityReply, theme Theme) *entityOverlay {
	overlay := &entityOverlay{
		entities: entities,
		theme:    theme,
	}
	overlay.refilter()
	return overlay
}

// label is the text the fuzzy filter runs against: name, id, and
// area, so "kit lig" finds the kitchen light by any of them.
func entityLabel(entity service.EntityReply) string {
	label := entity.Name + "  " + entity.ID
	if entity.Area != "" {
		label += "  " + entity.Area
	}
	return label
}

// refilter recomputes matches for the current query, best score
// first, ties broken by id for stable display.
func (overlay *entityOverlay) refilter() {
	pattern := lowerPattern(overlay.query)
	slab := NewSlab()

	overlay.matches = overlay.matches[:0]
	for _, entity := range overlay.entities {
		result := FuzzyMatch(entityLabel(entity), pattern, slab)
		if !result.Matched {
			continue
		}
		overlay.matches = append(overlay.matches, entityMatch{
			entity:    entity,
			score:     result.Score,
			positions: result.Positions,
		})
	}
	slices.SortFunc(overlay.matches, func(a, b entityMatch) int {
		if a.score != b.score {
			return b.score - a.score
		}
		return strings.Compare(a.entity.ID, b.entity.ID)
	})
	if overlay.cursor >= len(overlay.matches) {
		overlay.cursor = 0
	}
}

// Update handles one key. done reports the overlay should close;
// selected carries the chosen entity when the close was an enter.
func (overlay *entityOverlay) Update(msg tea.KeyMsg) (done bool, selected *service.EntityReply) {
	switch msg.Type {
	case tea.KeyEscape:
		return true, nil
	case tea.KeyEnter:
		if len(overlay.matches) == 0 {
			return true, nil
		}
		chosen := overlay.matches[overlay.cursor].entity
		return true, &chosen
	case tea.KeyUp:
		if overlay.cursor > 0 {
			overlay.cursor--
		}
	case tea.KeyDown:
		if overlay.cursor < len(overlay.matches)-1 {
			overlay.cursor++
		}
	case tea.KeyBackspace:
		if overlay.query != "" {
			overlay.query = overlay.query[:len(overlay.query)-1]
			overlay.refilter()
		}
	case tea.KeyRunes, tea.KeySpace:
		overlay.query += string(msg.Runes)
		overlay.refilter()
	}
	return false, nil
}

// View renders the overlay box.
func (overlay *entityOverlay) View(width int) string {
	boxWidth := min(width-4, 72)
	if boxWidth < 24 {
		boxWidth = 24
	}
	innerWidth := boxWidth - 2

	normal := lipgloss.NewStyle().Foreground(overlay.theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(overlay.theme.FaintText)

	var body strings.Builder
	body.WriteString(faint.Render("filter: ") + normal.Render(overlay.query) + "\n")

	start := 0
	if overlay.cursor >= overlayMaxRows {
		start = overlay.cursor - overlayMaxRows + 1
	}
	end := min(start+overlayMaxRows, len(overlay.matches))

	for index := start; index < end; index++ {
		match := overlay.matches[index]
		line := overlay.renderMatch(match, innerWidth, index == overlay.cursor)
		body.WriteString(line + "\n")
	}
	if len(overlay.matches) == 0 {
		body.WriteString(faint.Render("no matching entities") + "\n")
	}
	body.WriteString(faint.Render(fmt.Sprintf("%d/%d  ↑↓ select  enter insert  esc close",
		len(overlay.matches), len(overlay.entities))))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(overlay.theme.BorderColor).
		Width(boxWidth).
		Padding(0, 1).
		Render(body.String())
}

// renderMatch styles one list row, highlighting the fuzzy-matched
// runes and appending the state right-aligned-ish as a faint suffix.
func (overlay *entityOverlay) renderMatch(match entityMatch, width int, selected bool) string {
	label := entityLabel(match.entity)

	highlight := lipgloss.NewStyle().Foreground(overlay.theme.MatchForeground).Bold(true)
	base := lipgloss.NewStyle().Foreground(overlay.theme.NormalText)
	if selected {
		highlight = highlight.Background(overlay.theme.SelectedBackground)
		base = lipgloss.NewStyle().
			Foreground(overlay.theme.SelectedForeground).
			Background(overlay.theme.SelectedBackground)
	}

	positions := make(map[int]bool, len(match.positions))
	for _, position := range match.positions {
		positions[position] = true
	}

	var row strings.Builder
	runes := []rune(label)
	if len(runes) > width-len(match.entity.State)-2 {
		runes = runes[:max(width-len(match.entity.State)-2, 1)]
	}
	for index, r := range runes {
		if positions[index] {
			row.WriteString(highlight.Render(string(r)))
		} else {
			row.WriteString(base.Render(string(r)))
		}
	}
	state := lipgloss.NewStyle().Foreground(overlay.theme.FaintText)
	if selected {
		state = state.Background(overlay.theme.SelectedBackground)
	}
	row.WriteString(state.Render("  " + match.entity.State))
	return row.String()
}
