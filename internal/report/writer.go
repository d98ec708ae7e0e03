package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// latestFilename is the pointer file that always mirrors the most recent card.
const latestFilename = "LATEST_ANOMALY.md"

// Writer persists anomaly cards to a reports directory as structured JSON
// and human-readable Markdown, and keeps a "latest" pointer in sync.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir. The directory is created on the
// first Write call.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write persists the card and returns the output locations keyed by form:
// "json" (structured record), "md" (human-readable report), and "latest"
// (pointer to the most recent report).
func (w *Writer) Write(card *Card) (map[string]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	base := fmt.Sprintf("%s-%s", card.ID, compactTimestamp(card.Timestamp))

	jsonPath := filepath.Join(w.dir, base+".json")
	data, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write JSON report: %w", err)
	}

	markdown := formatMarkdown(card)

	mdPath := filepath.Join(w.dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown report: %w", err)
	}

	latestPath := filepath.Join(w.dir, latestFilename)
	if err := os.WriteFile(latestPath, []byte(markdown), 0644); err != nil {
		return nil, fmt.Errorf("failed to update latest pointer: %w", err)
	}

	return map[string]string{
		"json":   jsonPath,
		"md":     mdPath,
		"latest": latestPath,
	}, nil
}

// compactTimestamp strips filesystem-unfriendly characters from an ISO-8601
// timestamp so it can be embedded in a filename.
func compactTimestamp(ts string) string {
	return strings.NewReplacer(":", "", "-", "", "+", "").Replace(ts)
}

// formatMarkdown renders a card as a Markdown report.
func formatMarkdown(card *Card) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Anomaly: %s\n\n", card.ID))
	b.WriteString(fmt.Sprintf("- **Severity:** %s\n", card.Severity))
	b.WriteString(fmt.Sprintf("- **Timestamp:** %s\n\n", card.Timestamp))
	b.WriteString("## Description\n\n")
	b.WriteString(card.Description)
	b.WriteString("\n\n## Metadata\n\n")

	keys := make([]string, 0, len(card.Meta))
	for k := range card.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteString(fmt.Sprintf("- **%s:** %s\n", k, formatMetaValue(card.Meta[k])))
	}

	return b.String()
}

// formatMetaValue renders a metadata value for the Markdown report.
// Composite values fall back to compact JSON.
func formatMetaValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.3f", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
