// Package output provides styled terminal output helpers using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ferris/airbase/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[models.SyncStatus]lipgloss.Style{
		models.StatusSynced:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// SyncBadge renders a colored sync status tag.
func SyncBadge(status models.SyncStatus) string {
	style, ok := statusStyles[status]
	if !ok {
		return string(status)
	}
	return style.Render(string(status))
}

// Base prints a one-line base summary.
func Base(b *models.Base) {
	fmt.Printf("%s  %s  %s\n", titleStyle.Render(b.Name), subtleStyle.Render(b.ID), SyncBadge(b.SyncStatus))
	if b.Description != "" {
		fmt.Printf("  %s\n", b.Description)
	}
}

// Table prints a one-line table summary.
func Table(t *models.Table) {
	fmt.Printf("%s  %s  %s\n", titleStyle.Render(t.Name), subtleStyle.Render(t.ID), SyncBadge(t.SyncStatus))
}

// Record prints a record with its fields.
func Record(r *models.Record) {
	fmt.Printf("%s  %s\n", subtleStyle.Render(r.ID), SyncBadge(r.SyncStatus))
	for k, v := range r.Fields {
		fmt.Printf("  %s: %v\n", k, v)
	}
}

// PendingChange prints a queued change line.
func PendingChange(c *models.PendingChange) {
	line := fmt.Sprintf("#%d  %s %s/%s", c.ID, c.ChangeType, c.EntityType, c.EntityID)
	if c.RetryCount > 0 {
		line += warningStyle.Render(fmt.Sprintf("  retries=%d", c.RetryCount))
	}
	if c.LastError != "" {
		line += "  " + subtleStyle.Render(truncate(c.LastError, 60))
	}
	fmt.Println(line)
}

// SyncStats prints the result of a sync cycle.
func SyncStats(stats models.SyncStats) {
	fmt.Printf("Synced %d of %d pending (%s failed, %s conflicts)\n",
		stats.Synced, stats.TotalPending,
		countStyle(stats.Failed, errorStyle), countStyle(stats.Conflicts, warningStyle))
}

// Timestamp renders a time in the local zone, or "never" for nil.
func Timestamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}

func countStyle(n int, style lipgloss.Style) string {
	s := fmt.Sprintf("%d", n)
	if n > 0 {
		return style.Render(s)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
