// package formatter renders sync outcomes and push results for terminal output
package formatter

import (
	"bytes"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/tagify/spotmirror/internal/shared"
	"github.com/tagify/spotmirror/internal/tasks"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// RenderOutcome converts a sync [tasks.Outcome] to styled terminal text.
//
// Analysis-stage outcomes end with a confirmation hint; completed outcomes
// show what was committed.
func RenderOutcome(o *tasks.Outcome) string {
	var buf bytes.Buffer

	buf.WriteString(styles.title.Render(fmt.Sprintf("Sync %s", o.Operation)))
	buf.WriteString("\n\n")

	buf.WriteString(renderStats(o.Stats))
	buf.WriteString("\n")

	if o.Details != nil {
		buf.WriteString(renderAnalysis(o.Details))
	}

	for _, step := range o.Steps {
		label := string(step.Operation)
		switch {
		case step.Error != "":
			buf.WriteString(styles.err.Render(fmt.Sprintf("✗ %s: %s", label, step.Error)))
		case step.Committed:
			buf.WriteString(styles.ok.Render(fmt.Sprintf("✓ %s committed", label)))
		default:
			buf.WriteString(styles.warn.Render(fmt.Sprintf("· %s analyzed", label)))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("\n")
	if o.NeedsConfirmation {
		buf.WriteString(styles.warn.Render(o.Message))
		buf.WriteString("\n")
		buf.WriteString(styles.help.Render("Run again with --yes to apply these changes."))
	} else {
		buf.WriteString(styles.ok.Render(o.Message))
	}
	buf.WriteString("\n")

	return buf.String()
}

// RenderPushResult converts a [tasks.PushResult] to styled terminal text.
func RenderPushResult(r *tasks.PushResult) string {
	var buf bytes.Buffer

	buf.WriteString(styles.title.Render(fmt.Sprintf("Push %s", r.Operation)))
	buf.WriteString("\n\n")

	buf.WriteString(fmt.Sprintf("Tracks added:   %d\n", r.TracksAdded))
	if r.TracksRemoved > 0 {
		buf.WriteString(fmt.Sprintf("Tracks removed: %d\n", r.TracksRemoved))
	}
	if r.PlaylistsProcessed > 0 {
		buf.WriteString(fmt.Sprintf("Playlists:      %d\n", r.PlaylistsProcessed))
	}

	buf.WriteString("\n")
	buf.WriteString(styles.ok.Render(r.Message))
	buf.WriteString("\n")

	return buf.String()
}

// OutcomeJSON serializes an outcome for machine consumers.
func OutcomeJSON(o *tasks.Outcome) ([]byte, error) {
	data, err := shared.MarshalJSON(o, true)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize outcome: %w", err)
	}
	return data, nil
}

func renderStats(s tasks.Stats) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Added:     %d\n", s.Added))
	buf.WriteString(fmt.Sprintf("Updated:   %d\n", s.Updated))
	buf.WriteString(fmt.Sprintf("Unchanged: %d\n", s.Unchanged))
	if s.RemovedLocally > 0 {
		buf.WriteString(fmt.Sprintf("Removed locally: %d\n", s.RemovedLocally))
	}
	return buf.String()
}

func renderAnalysis(a *tasks.Analysis) string {
	var buf bytes.Buffer

	if len(a.AddedPlaylists) > 0 {
		buf.WriteString("New playlists:\n")
		for _, p := range a.AddedPlaylists {
			buf.WriteString(fmt.Sprintf("  + %s\n", p.Name))
		}
	}
	if len(a.UpdatedPlaylists) > 0 {
		buf.WriteString("Renamed playlists:\n")
		for _, p := range a.UpdatedPlaylists {
			buf.WriteString(fmt.Sprintf("  ~ %s -> %s\n", p.OldName, p.Name))
		}
	}
	if len(a.RemovedPlaylists) > 0 {
		buf.WriteString("Playlists gone from remote (kept locally):\n")
		for _, p := range a.RemovedPlaylists {
			buf.WriteString(fmt.Sprintf("  - %s\n", p.Name))
		}
	}
	if len(a.AddedTracks) > 0 {
		buf.WriteString("New tracks:\n")
		for _, t := range a.AddedTracks {
			buf.WriteString(fmt.Sprintf("  + %s - %s\n", t.Artists, t.Title))
		}
	}
	if len(a.UpdatedTracks) > 0 {
		buf.WriteString("Updated tracks:\n")
		for _, t := range a.UpdatedTracks {
			buf.WriteString(fmt.Sprintf("  ~ %s - %s (was %s - %s)\n", t.Artists, t.Title, t.OldArtists, t.OldTitle))
		}
	}
	if a.AssociationsToAdd > 0 || a.AssociationsToRemove > 0 {
		buf.WriteString(fmt.Sprintf("Membership changes: %d to add, %d to remove\n",
			a.AssociationsToAdd, a.AssociationsToRemove))
	}

	return buf.String()
}
