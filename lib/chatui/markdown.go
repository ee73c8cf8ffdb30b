// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// markdownParserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to
// share; parsing creates per-call state via Parse(reader).
var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownParserInstance
}

// RenderMarkdown parses markdown text and renders it as styled
// terminal output. Assistant replies are conversational markdown:
// paragraphs, emphasis, inline code, lists, headings, block quotes,
// and the occasional fenced code block. Soft line breaks within
// paragraphs become spaces so hard-wrapped model output reflows at
// any terminal width.
func RenderMarkdown(input string, theme Theme, width int) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	// Force the ANSI256 color profile: this output is always for the
	// bubbletea display, so auto-detection (which sees no TTY in
	// tests) would strip every style.
	lipRenderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lipRenderer.SetColorProfile(termenv.ANSI256)

	renderer := &markdownRenderer{
		source:      source,
		theme:       theme,
		width:       width,
		lipRenderer: lipRenderer,
	}
	ast.Walk(document, renderer.walk)
	return strings.TrimRight(renderer.output.String(), "\n")
}

// markdownRenderer walks a goldmark AST and produces styled terminal
// text. A direct ast.Walk fits better than goldmark's renderer
// interface because terminal output needs accumulate-then-wrap
// semantics: inline content collects in a buffer and is word-wrapped
// as a unit when the containing block closes.
type markdownRenderer struct {
	source []byte
	theme  Theme
	width  int

	output strings.Builder

	// Inline accumulator, flushed with word-wrap when a paragraph or
	// heading closes.
	inline strings.Builder

	// Indentation prefix for nested blocks (lists, quotes).
	// prefixWidth tracks its visible width, which differs from its
	// byte length once a multibyte quote bar is in it.
	prefix      string
	prefixWidth int

	// Pending bullet replaces the prefix for the next flushed line.
	pendingBullet string

	// Inline style counters; counters rather than booleans so nested
	// emphasis unwinds correctly.
	boldCount   int
	italicCount int

	listDepth    int
	orderedIndex []int

	lipRenderer *lipgloss.Renderer
}

func (renderer *markdownRenderer) newStyle() lipgloss.Style {
	return renderer.lipRenderer.NewStyle()
}

func (renderer *markdownRenderer) contentWidth() int {
	width := renderer.width - renderer.prefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

// flushInline word-wraps the accumulated inline content, applies the
// line prefix (bullet on the first line), and appends it to output.
func (renderer *markdownRenderer) flushInline() {
	content := renderer.inline.String()
	renderer.inline.Reset()
	if content == "" {
		return
	}

	wrapped := ansi.Wrap(content, renderer.contentWidth(), " ,.;-+|")
	for index, line := range strings.Split(wrapped, "\n") {
		if index == 0 && renderer.pendingBullet != "" {
			renderer.output.WriteString(renderer.pendingBullet)
			renderer.pendingBullet = ""
		} else {
			renderer.output.WriteString(renderer.prefix)
		}
		renderer.output.WriteString(line)
		renderer.output.WriteString("\n")
	}
}

func (renderer *markdownRenderer) blankLine() {
	out := renderer.output.String()
	if out != "" && !strings.HasSuffix(out, "\n\n") {
		renderer.output.WriteString("\n")
	}
}

// styledText applies the current inline style to a text fragment.
func (renderer *markdownRenderer) styledText(content string) string {
	style := renderer.newStyle().Foreground(renderer.theme.NormalText)
	if renderer.boldCount > 0 {
		style = style.Bold(true)
	}
	if renderer.italicCount > 0 {
		style = style.Italic(true)
	}
	return style.Render(content)
}

// highlightCode syntax-highlights fenced code via Chroma, falling
// back to faint plain text for unknown languages.
func (renderer *markdownRenderer) highlightCode(code, language string) string {
	if language != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code, language, "terminal256", "monokai"); err == nil {
			return buffer.String()
		}
	}
	return renderer.newStyle().Foreground(renderer.theme.FaintText).Render(code)
}

func (renderer *markdownRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch typed := node.(type) {
	case *ast.Document:
		return ast.WalkContinue, nil

	case *ast.Heading:
		if entering {
			renderer.blankLine()
			marker := strings.Repeat("#", typed.Level) + " "
			renderer.inline.WriteString(renderer.newStyle().
				Bold(true).
				Foreground(renderer.theme.HeaderForeground).
				Render(marker))
			return ast.WalkContinue, nil
		}
		renderer.flushInline()
		return ast.WalkContinue, nil

	case *ast.Paragraph:
		if entering {
			if renderer.listDepth == 0 {
				renderer.blankLine()
			}
			return ast.WalkContinue, nil
		}
		renderer.flushInline()
		return ast.WalkContinue, nil

	case *ast.TextBlock:
		// Tight list items hold TextBlocks instead of Paragraphs.
		if !entering {
			renderer.flushInline()
		}
		return ast.WalkContinue, nil

	case *ast.Text:
		if entering {
			renderer.inline.WriteString(renderer.styledText(string(typed.Segment.Value(renderer.source))))
			if typed.SoftLineBreak() {
				renderer.inline.WriteString(" ")
			}
			if typed.HardLineBreak() {
				renderer.inline.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil

	case *ast.Emphasis:
		if typed.Level >= 2 {
			if entering {
				renderer.boldCount++
			} else {
				renderer.boldCount--
			}
		} else {
			if entering {
				renderer.italicCount++
			} else {
				renderer.italicCount--
			}
		}
		return ast.WalkContinue, nil

	case *ast.CodeSpan:
		if entering {
			code := string(typed.Text(renderer.source))
			renderer.inline.WriteString(renderer.newStyle().
				Foreground(renderer.theme.ToolText).
				Render(code))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil

	case *ast.Link:
		if entering {
			label := renderer.renderInlineContent(typed)
			destination := string(typed.Destination)
			renderer.inline.WriteString(label)
			if destination != "" && destination != label {
				renderer.inline.WriteString(renderer.newStyle().
					Foreground(renderer.theme.FaintText).
					Render(" ("+destination+")"))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil

	case *ast.AutoLink:
		if entering {
			renderer.inline.WriteString(renderer.newStyle().
				Foreground(renderer.theme.HeaderForeground).
				Render(string(typed.URL(renderer.source))))
		}
		return ast.WalkContinue, nil

	case *ast.FencedCodeBlock:
		if entering {
			renderer.blankLine()
			language := string(typed.Language(renderer.source))
			var code strings.Builder
			for index := range typed.Lines().Len() {
				line := typed.Lines().At(index)
				code.Write(line.Value(renderer.source))
			}
			highlighted := strings.TrimRight(renderer.highlightCode(code.String(), language), "\n")
			for _, line := range strings.Split(highlighted, "\n") {
				renderer.output.WriteString(renderer.prefix + "  " + line + "\n")
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil

	case *ast.CodeBlock:
		if entering {
			renderer.blankLine()
			for index := range typed.Lines().Len() {
				line := typed.Lines().At(index)
				content := strings.TrimRight(string(line.Value(renderer.source)), "\n")
				renderer.output.WriteString(renderer.prefix + "  " +
					renderer.newStyle().Foreground(renderer.theme.FaintText).Render(content) + "\n")
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil

	case *ast.Blockquote:
		const quoteBar = "│ "
		if entering {
			renderer.blankLine()
			renderer.prefix += quoteBar
			renderer.prefixWidth += 2
		} else {
			renderer.prefix = strings.TrimSuffix(renderer.prefix, quoteBar)
			renderer.prefixWidth -= 2
		}
		return ast.WalkContinue, nil

	case *ast.List:
		if entering {
			if renderer.listDepth == 0 {
				renderer.blankLine()
			}
			renderer.listDepth++
			start := 0
			if typed.IsOrdered() {
				start = typed.Start
			}
			renderer.orderedIndex = append(renderer.orderedIndex, start)
		} else {
			renderer.listDepth--
			renderer.orderedIndex = renderer.orderedIndex[:len(renderer.orderedIndex)-1]
		}
		return ast.WalkContinue, nil

	case *ast.ListItem:
		depth := len(renderer.orderedIndex)
		bulletWidth := 2
		if index := renderer.orderedIndex[depth-1]; index > 0 {
			// On exit the counter has advanced past this item.
			shown := index
			if !entering {
				shown = index - 1
			}
			bulletWidth = len(fmt.Sprintf("%d. ", shown))
		}
		indentWidth := (depth-1)*2 + bulletWidth
		if entering {
			bullet := "• "
			if index := renderer.orderedIndex[depth-1]; index > 0 {
				bullet = fmt.Sprintf("%d. ", index)
				renderer.orderedIndex[depth-1]++
			}
			indent := strings.Repeat("  ", depth-1)
			renderer.pendingBullet = renderer.prefix + indent +
				renderer.newStyle().Foreground(renderer.theme.FaintText).Render(bullet)
			renderer.prefix += indent + strings.Repeat(" ", bulletWidth)
			renderer.prefixWidth += indentWidth
		} else {
			renderer.prefix = renderer.prefix[:len(renderer.prefix)-indentWidth]
			renderer.prefixWidth -= indentWidth
		}
		return ast.WalkContinue, nil

	case *ast.ThematicBreak:
		if entering {
			renderer.blankLine()
			renderer.output.WriteString(renderer.newStyle().
				Foreground(renderer.theme.BorderColor).
				Render(strings.Repeat("─", renderer.contentWidth())) + "\n")
		}
		return ast.WalkContinue, nil
	}

	return ast.WalkContinue, nil
}

// renderInlineContent walks a node's children into a detached inline
// string, saving and restoring the live inline buffer and style
// counters.
func (renderer *markdownRenderer) renderInlineContent(node ast.Node) string {
	savedInline := renderer.inline.String()
	savedBold := renderer.boldCount
	savedItalic := renderer.italicCount

	renderer.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, renderer.walk)
	}
	result := renderer.inline.String()

	renderer.inline.Reset()
	renderer.inline.WriteString(savedInline)
	renderer.boldCount = savedBold
	renderer.italicCount = savedItalic
	return result
}
