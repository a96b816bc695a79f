package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/retriever/internal/models"
)

func TestWriteResults_JSON(t *testing.T) {
	results := []*models.Document{
		{ID: "doc-1", Title: "Python", Content: "Install Python via python.org", Metadata: models.Metadata{"lang": "en"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, results, OutputJSON))

	var decoded models.QueryResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "doc-1", decoded.Results[0].ID)
	assert.Equal(t, "en", decoded.Results[0].Metadata["lang"])
}

func TestWriteResults_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, nil, OutputJSON))
	assert.JSONEq(t, `{"results":[]}`, buf.String())
}

func TestWriteResults_Text(t *testing.T) {
	long := strings.Repeat("a", 300)
	results := []*models.Document{
		{ID: "doc-1", Title: "First", Content: "short", Metadata: models.Metadata{"b": 2.0, "a": "x"}},
		{ID: "doc-2", Content: long},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, results, OutputText))
	out := buf.String()

	assert.Contains(t, out, "Found 2 result(s)")
	assert.Contains(t, out, "Rank: 1 | ID: doc-1")
	assert.Contains(t, out, "Rank: 2 | ID: doc-2")
	assert.Contains(t, out, "Title: First")
	assert.Contains(t, out, "Metadata: a=x, b=2")
	assert.Contains(t, out, strings.Repeat("a", 200)+"...")
	assert.NotContains(t, out, strings.Repeat("a", 201))
}

func TestWriteDocument(t *testing.T) {
	doc := &models.Document{ID: "doc-1", Title: "T", Content: "body"}

	var text bytes.Buffer
	require.NoError(t, WriteDocument(&text, doc, OutputText))
	assert.Contains(t, text.String(), "Document ingested: doc-1")

	var js bytes.Buffer
	require.NoError(t, WriteDocument(&js, doc, OutputJSON))
	var decoded models.Document
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "body", decoded.Content)
}

func TestWriteProjects(t *testing.T) {
	projects := []ProjectSummary{
		{ID: "alpha", RateLimit: 2, Burst: 4, CapacityLimit: 100, Documents: 3},
		{ID: "beta", CapacityLimit: 10},
	}

	var text bytes.Buffer
	require.NoError(t, WriteProjects(&text, projects, OutputText))
	out := text.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "2.00/s")
	assert.Contains(t, out, "unlimited")

	var js bytes.Buffer
	require.NoError(t, WriteProjects(&js, projects, OutputJSON))
	assert.NotContains(t, js.String(), "key")
	var decoded []ProjectSummary
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, projects, decoded)

	var empty bytes.Buffer
	require.NoError(t, WriteProjects(&empty, nil, OutputText))
	assert.Equal(t, "No projects registered\n", empty.String())
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("")
	require.NoError(t, err)
	assert.Equal(t, OutputText, f)
	f, err = ParseOutputFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, OutputJSON, f)
	_, err = ParseOutputFormat("yaml")
	assert.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]string{"source=a.md", "page=3", "draft=true", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, models.Metadata{"source": "a.md", "page": 3.0, "draft": true, "note": "a=b"}, meta)

	_, err = ParseMetadata([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseMetadata([]string{"=x"})
	assert.Error(t, err)
}
