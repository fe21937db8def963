package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/repositories"
	"github.com/desertthunder/tautsync/internal/shared"
	"github.com/desertthunder/tautsync/internal/tasks"
)

// RenderSummary formats a sync summary as a short status block.
func RenderSummary(s *tasks.Summary) string {
	var b strings.Builder

	header := fmt.Sprintf("Sync %s (%s)", s.Status, s.Mode)
	if s.Prune {
		header += " with prune"
	}
	b.WriteString(styles.status(s.Status).Render(header) + "\n")
	if s.RunID != "" {
		b.WriteString(styles.help.Render("run "+s.RunID) + "\n")
	}
	b.WriteString("\n")

	rows := []struct {
		label string
		value int
	}{
		{"created", s.Created},
		{"updated", s.Updated},
		{"unchanged", s.Unchanged},
		{"pruned", s.Pruned},
		{"skipped", s.Skipped},
		{"errored", s.Errored},
	}
	for _, r := range rows {
		b.WriteString(styles.label.Render(r.label) + strconv.Itoa(r.value) + "\n")
	}
	if s.HistoryUnlinked > 0 {
		b.WriteString(styles.label.Render("unlinked") + strconv.Itoa(s.HistoryUnlinked) + "\n")
	}
	b.WriteString(styles.label.Render("duration") + s.Duration.Round(time.Millisecond).String() + "\n")

	if s.Error != "" {
		b.WriteString("\n" + styles.err.Render("error: ") + s.Error + "\n")
	}
	if s.Counts != nil {
		b.WriteString("\n" + RenderCounts(s.Counts))
	}
	return b.String()
}

// RenderProgress formats one progress update as a single line.
func RenderProgress(u tasks.ProgressUpdate) string {
	return styles.help.Render("["+u.Phase.String()+"]") + " " + u.Message
}

// RenderCounts lists stored rows per media type, then users and history.
func RenderCounts(c *repositories.Counts) string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Database contents") + "\n")

	types := make([]string, 0, len(c.Media))
	for t := range c.Media {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		b.WriteString(styles.label.Render(t) + strconv.Itoa(c.Media[models.MediaType(t)]) + "\n")
	}
	b.WriteString(styles.label.Render("users") + strconv.Itoa(c.Users) + "\n")
	b.WriteString(styles.label.Render("history") + strconv.Itoa(c.History))
	if c.HistoryUnlinked > 0 {
		b.WriteString(styles.help.Render(fmt.Sprintf(" (%d unlinked)", c.HistoryUnlinked)))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderTopMedia formats a most-watched ranking as a table.
func RenderTopMedia(title string, stats []repositories.MediaStat) string {
	t := newTable("#", "Title", "Year", "Plays", "Viewers", "Watch time")
	for i, s := range stats {
		t.Row(
			strconv.Itoa(i+1),
			s.Title,
			yearString(s.Year),
			strconv.Itoa(s.Plays),
			strconv.Itoa(s.UniqueViewers),
			shared.FormatDuration(int(s.TotalSeconds)),
		)
	}
	return styles.title.Render(title) + "\n" + t.Render() + "\n"
}

// RenderTopUsers formats the per-user activity ranking as a table.
func RenderTopUsers(stats []repositories.UserStat) string {
	t := newTable("#", "User", "Plays", "Minutes")
	for i, s := range stats {
		t.Row(strconv.Itoa(i+1), s.Name, strconv.Itoa(s.Plays), strconv.FormatInt(s.Minutes, 10))
	}
	return styles.title.Render("Most active users") + "\n" + t.Render() + "\n"
}

// RenderGrowth formats library growth as one table row per day and type.
func RenderGrowth(points []repositories.GrowthPoint) string {
	t := newTable("Day", "Type", "Added", "Total")
	for _, p := range points {
		t.Row(p.Day, string(p.MediaType), strconv.Itoa(p.Added), strconv.Itoa(p.Cumulative))
	}
	return styles.title.Render("Library growth") + "\n" + t.Render() + "\n"
}

// RenderRuns formats recent sync runs, newest first.
func RenderRuns(runs []*models.SyncRun) string {
	t := newTable("Started", "Mode", "Status", "Created", "Updated", "Pruned", "Errored")
	for _, r := range runs {
		t.Row(
			r.StartedAt.Local().Format(time.DateTime),
			r.Mode,
			styles.status(r.Status).Render(string(r.Status)),
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.Pruned),
			strconv.Itoa(r.Errored),
		)
	}
	return styles.title.Render("Recent syncs") + "\n" + t.Render() + "\n"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.help).
		Headers(headers...)
}

func yearString(y int) string {
	if y <= 0 {
		return ""
	}
	return strconv.Itoa(y)
}
