// Package transcript appends question and answer pairs to a markdown file
// per requester.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type Entry struct {
	Root        string
	RequesterID string
	Query       string
	Answer      string
	Model       string
	Applied     int
	Skipped     int
	Timestamp   time.Time
}

var pathSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Append writes entry to {Root}/{requester}.md. An empty Root disables
// transcripts.
func Append(entry Entry) error {
	root := strings.TrimSpace(entry.Root)
	if root == "" {
		return nil
	}
	query := strings.TrimSpace(entry.Query)
	if query == "" {
		return nil
	}
	requester := sanitizeSegment(entry.RequesterID)
	if requester == "" {
		requester = "anonymous"
	}
	timestamp := entry.Timestamp.UTC()
	if entry.Timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	logPath := filepath.Join(root, requester+".md")

	header := ""
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		header = fmt.Sprintf("# Scheduling Assistant Transcript\n\n- requester: `%s`\n\n", strings.TrimSpace(entry.RequesterID))
	}
	body := fmt.Sprintf(
		"## %s\n- model: `%s`\n- schedule_updates: applied=%d skipped=%d\n\n**Q:** %s\n\n**A:** %s\n\n",
		timestamp.Format(time.RFC3339),
		strings.TrimSpace(entry.Model),
		entry.Applied,
		entry.Skipped,
		query,
		strings.TrimSpace(entry.Answer),
	)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if header != "" {
		if _, err := file.WriteString(header); err != nil {
			return err
		}
	}
	_, err = file.WriteString(body)
	return err
}

func sanitizeSegment(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.ReplaceAll(trimmed, " ", "-")
	trimmed = pathSanitizer.ReplaceAllString(trimmed, "-")
	trimmed = strings.Trim(trimmed, "-.")
	return strings.ToLower(trimmed)
}
