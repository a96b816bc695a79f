// Package cli formats command output for the retriever binary.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// snippetLength bounds the content shown per result in text output.
const snippetLength = 200

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// WriteResults writes query results to w in rank order.
func WriteResults(w io.Writer, results []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []*models.Document{}
		}
		return writeJSON(w, models.QueryResponse{Results: results})
	}

	fmt.Fprintf(w, "\nFound %d result(s)\n\n", len(results))
	for i, doc := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | ID: %s\n", i+1, doc.ID)
		writeDocumentBody(w, doc)
	}
	return nil
}

// WriteDocument writes one stored document, as returned by an ingest.
func WriteDocument(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "Document ingested: %s\n", doc.ID)
	writeDocumentBody(w, doc)
	return nil
}

func writeDocumentBody(w io.Writer, doc *models.Document) {
	if doc.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", doc.Title)
	}
	if len(doc.Metadata) > 0 {
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, doc.Metadata[k])
		}
		fmt.Fprintf(w, "Metadata: %s\n", strings.Join(pairs, ", "))
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(doc.Content, snippetLength))
}

// ProjectSummary is a project as listed by the CLI. Key hashes are never printed.
type ProjectSummary struct {
	ID            string  `json:"id"`
	RateLimit     float64 `json:"rate_limit"`
	Burst         int     `json:"burst"`
	CapacityLimit int     `json:"capacity_limit"`
	Documents     int     `json:"documents"`
}

// WriteProjects writes a project table or a JSON array.
func WriteProjects(w io.Writer, projects []ProjectSummary, format OutputFormat) error {
	if format == OutputJSON {
		if projects == nil {
			projects = []ProjectSummary{}
		}
		return writeJSON(w, projects)
	}
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects registered")
		return nil
	}
	fmt.Fprintf(w, "%-24s %10s %8s %10s %10s\n", "ID", "RATE", "BURST", "CAPACITY", "DOCUMENTS")
	for _, p := range projects {
		fmt.Fprintf(w, "%-24s %10s %8d %10d %10d\n", p.ID, formatRate(p.RateLimit), p.Burst, p.CapacityLimit, p.Documents)
	}
	return nil
}

func formatRate(r float64) string {
	if r <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%.2f/s", r)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ParseMetadata turns key=value pairs into metadata. Values that parse as numbers or
// booleans keep that type; everything else is a string.
func ParseMetadata(pairs []string) (models.Metadata, error) {
	meta := models.Metadata{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata %q must be key=value", p)
		}
		meta[k] = scalar(v)
	}
	return meta, nil
}

func scalar(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		switch out.(type) {
		case float64, bool:
			return out
		}
	}
	return v
}
