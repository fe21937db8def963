// package formatter provides functions to export pruning reports to various formats (CSV, JSON, Markdown)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tautsync/internal/repositories"
	"github.com/desertthunder/tautsync/internal/shared"
)

// Format is a report output format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat maps a flag value to a [Format]. "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: report format %q", shared.ErrInvalidFlag, s)
	}
}

// Ext is the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// SizeGB converts bytes to gibibytes rounded to 2 decimal places.
func SizeGB(bytes int64) float64 {
	gb := float64(bytes) / (1 << 30)
	return float64(int64(gb*100+0.5)) / 100
}

// LeastWatchedToCSV converts a pruning report to CSV format with columns: Rating Key, Title, Year, Plays, Last Watched, Added, Size GB
func LeastWatchedToCSV(items []repositories.LeastWatchedItem) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Rating Key", "Title", "Year", "Plays", "Last Watched", "Added", "Size GB"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		year := ""
		if item.Year > 0 {
			year = strconv.Itoa(item.Year)
		}
		record := []string{
			item.RatingKey,
			item.Title,
			year,
			strconv.Itoa(item.Plays),
			formatDay(item.LastWatched),
			formatDay(item.AddedAt),
			strconv.FormatFloat(SizeGB(item.FileSize), 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// LeastWatchedToJSON renders a pruning report as an indented JSON array.
func LeastWatchedToJSON(items []repositories.LeastWatchedItem) ([]byte, error) {
	if items == nil {
		items = []repositories.LeastWatchedItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// LeastWatchedToMarkdown renders a pruning report as a Markdown table under title.
func LeastWatchedToMarkdown(title string, items []repositories.LeastWatchedItem) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))

	var total int64
	never := 0
	for _, item := range items {
		total += item.FileSize
		if item.Plays == 0 {
			never++
		}
	}
	buf.WriteString(fmt.Sprintf("**Items**: %d\n", len(items)))
	buf.WriteString(fmt.Sprintf("**Never played**: %d\n", never))
	buf.WriteString(fmt.Sprintf("**Total size**: %s\n\n", shared.FormatBytes(total)))

	buf.WriteString("| # | Title | Year | Plays | Last Watched | Size |\n")
	buf.WriteString("|---|-------|------|-------|--------------|------|\n")
	for i, item := range items {
		year := ""
		if item.Year > 0 {
			year = strconv.Itoa(item.Year)
		}
		last := formatDay(item.LastWatched)
		if last == "" {
			last = "never"
		}
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %s | %s |\n",
			i+1, escapeCell(item.Title), year, item.Plays, last, shared.FormatBytes(item.FileSize)))
	}

	return buf.Bytes(), nil
}

// Render encodes items in format f.
func Render(f Format, title string, items []repositories.LeastWatchedItem) ([]byte, error) {
	switch f {
	case FormatCSV:
		return LeastWatchedToCSV(items)
	case FormatJSON:
		return LeastWatchedToJSON(items)
	case FormatMarkdown:
		return LeastWatchedToMarkdown(title, items)
	default:
		return nil, fmt.Errorf("%w: report format %q", shared.ErrInvalidFlag, f)
	}
}

// WriteReport renders items and writes them to path, creating parent directories.
//
// Returns the path written.
func WriteReport(f Format, title string, items []repositories.LeastWatchedItem, path string) (string, error) {
	data, err := Render(f, title, items)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func formatDay(ts int64) string {
	t := shared.UnixOrZero(ts)
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
