// Package ui renders sync results and progress for the terminal with lipgloss styles.
//
// Output degrades to plain text when stdout is not a terminal, so the same renderers serve
// interactive runs, cron logs and tests.
package ui
