package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// TerminalRenderer draws frames as text on a console, clearing the screen
// before each frame.
type TerminalRenderer struct {
	w      io.Writer
	width  int
	height int
	title  lipgloss.Style
	body   lipgloss.Style
}

// NewTerminalRenderer returns a renderer sized for v. Color output is only
// enabled for RGB screens.
func NewTerminalRenderer(w io.Writer, v Variant, rgb bool) *TerminalRenderer {
	profile := termenv.Ascii
	if rgb {
		profile = termenv.TrueColor
	}
	// lipgloss re-detects the profile from the writer unless told.
	r := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	r.SetColorProfile(profile)

	return &TerminalRenderer{
		w:      w,
		width:  v.Width,
		height: v.Height,
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#00D7AF")).Width(v.Width),
		body:   r.NewStyle().Foreground(lipgloss.Color("#E4E4E4")).Width(v.Width),
	}
}

// Render implements Renderer.
func (t *TerminalRenderer) Render(f Frame) error {
	var b strings.Builder
	b.WriteString(ansi.EraseEntireScreen)
	b.WriteString(ansi.CursorHomePosition)
	b.WriteString(t.title.Render(ansi.Truncate(f.Title, t.width, "")))

	lines := f.Lines
	if limit := t.height - 1; len(lines) > limit {
		lines = lines[:limit]
	}
	for _, line := range lines {
		b.WriteByte('\n')
		b.WriteString(t.body.Render(ansi.Truncate(line, t.width, "…")))
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(t.w, b.String()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
