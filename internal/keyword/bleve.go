package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/retriever/internal/models"
)

// BleveIndex implements KeywordIndex using Bleve with TF-IDF scoring.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// The same analyzer runs at index and query time.
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = standard.Name
	return im
}

// NewMemoryBleveIndex creates an in-memory index.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewBleveIndex creates an on-disk index at path. Any index already at path is removed:
// the document store is the source of truth and the caller rebuilds from it.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear Bleve index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// fields maps a document onto the indexed fields. Underscores in titles become spaces so
// "setup_guide_v2" matches "setup guide"; the standard analyzer does not split on them.
func fields(doc *models.Document) map[string]interface{} {
	return map[string]interface{}{
		"title":   strings.ReplaceAll(doc.Title, "_", " "),
		"content": doc.Content,
	}
}

// Index indexes a document under its id, replacing any previous version.
func (b *BleveIndex) Index(ctx context.Context, doc *models.Document) error {
	if err := b.index.Index(doc.ID, fields(doc)); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return nil
}

// IndexBatch indexes docs in a single batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs []*models.Document) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, fields(doc)); err != nil {
			return fmt.Errorf("failed to batch document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	return nil
}

// Search runs a match query over title and content and returns up to limit results,
// highest score first, equal scores ordered by id.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes a document by id. Deleting an absent id is not an error.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	if err := b.index.Delete(id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// DocCount returns the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
