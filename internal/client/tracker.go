package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Tracker remembers which sources were uploaded and the document id each one got, so
// repeated uploads only send new sources. It is persisted as a JSON object.
type Tracker struct {
	path     string
	uploaded map[string]string
}

// LoadTracker reads the tracking file at path. A missing file yields an empty tracker.
func LoadTracker(path string) (*Tracker, error) {
	t := &Tracker{path: path, uploaded: make(map[string]string)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracking file: %w", err)
	}
	if err := json.Unmarshal(data, &t.uploaded); err != nil {
		return nil, fmt.Errorf("parse tracking file: %w", err)
	}
	return t, nil
}

// Has reports whether source was uploaded.
func (t *Tracker) Has(source string) bool {
	_, ok := t.uploaded[source]
	return ok
}

// Add records the document id of an uploaded source.
func (t *Tracker) Add(source, documentID string) {
	t.uploaded[source] = documentID
}

// Reset forgets every source.
func (t *Tracker) Reset() {
	t.uploaded = make(map[string]string)
}

// Len returns the number of tracked sources.
func (t *Tracker) Len() int {
	return len(t.uploaded)
}

// Sources returns the tracked sources in sorted order.
func (t *Tracker) Sources() []string {
	out := make([]string, 0, len(t.uploaded))
	for s := range t.uploaded {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Save writes the tracker atomically.
func (t *Tracker) Save() error {
	data, err := json.MarshalIndent(t.uploaded, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("create tracking directory: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write tracking file: %w", err)
	}
	return os.Rename(tmp, t.path)
}
