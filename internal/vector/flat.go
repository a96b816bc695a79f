package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type entryState uint8

const (
	stateLive entryState = iota
	stateTombstoned
)

type flatEntry struct {
	vectorID   string
	documentID string
	seq        uint64
	vector     []float32
	norm       float64
	state      entryState
}

// FlatIndex is an exact cosine-similarity index using brute-force search.
// Entries move Live -> Tombstoned on Delete and are purged by Compact.
type FlatIndex struct {
	dimensions int

	mu         sync.RWMutex
	entries    []*flatEntry
	live       map[string]*flatEntry
	tombstones int
	nextSeq    uint64
	version    uint64
}

// NewFlatIndex creates an empty flat index for vectors of the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		live:       make(map[string]*flatEntry),
	}, nil
}

// Dimensions returns the vector dimension accepted by the index.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Add inserts entries atomically: either all are added or none.
// A vector id whose previous entry was tombstoned is inserted as a fresh entry.
func (f *FlatIndex) Add(ctx context.Context, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	batch := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Vector) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), f.dimensions)
		}
		if _, ok := f.live[e.VectorID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.VectorID)
		}
		if _, ok := batch[e.VectorID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.VectorID)
		}
		batch[e.VectorID] = struct{}{}
	}

	for _, e := range entries {
		vec := make([]float32, f.dimensions)
		copy(vec, e.Vector)
		fe := &flatEntry{
			vectorID:   e.VectorID,
			documentID: e.DocumentID,
			seq:        f.nextSeq,
			vector:     vec,
			norm:       L2Norm(vec),
		}
		f.nextSeq++
		f.entries = append(f.entries, fe)
		f.live[e.VectorID] = fe
	}
	f.version++
	return nil
}

// Delete tombstones the live entries with the given ids and returns how many were tombstoned.
// Unknown or already tombstoned ids are ignored.
func (f *FlatIndex) Delete(ctx context.Context, vectorIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range vectorIDs {
		fe, ok := f.live[id]
		if !ok {
			continue
		}
		fe.state = stateTombstoned
		delete(f.live, id)
		f.tombstones++
		n++
	}
	if n > 0 {
		f.version++
	}
	return n, nil
}

// Search returns up to k live entries most similar to query, by descending cosine similarity.
// Equal scores are ordered by insertion, earlier first.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	qnorm := L2Norm(query)

	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.live) == 0 {
		return nil, nil
	}

	type scored struct {
		entry *flatEntry
		score float64
	}
	scores := make([]scored, 0, len(f.live))
	for _, fe := range f.entries {
		if fe.state != stateLive {
			continue
		}
		var score float64
		if qnorm > 0 && fe.norm > 0 {
			score = Dot(query, fe.vector) / (qnorm * fe.norm)
		}
		scores = append(scores, scored{entry: fe, score: score})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].entry.seq < scores[j].entry.seq
	})
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*VectorResult, k)
	for i := 0; i < k; i++ {
		result[i] = &VectorResult{
			VectorID:   scores[i].entry.vectorID,
			DocumentID: scores[i].entry.documentID,
			Score:      scores[i].score,
		}
	}
	return result, nil
}

// Compact purges tombstoned entries and returns how many were removed. The survivor list is
// built under the read lock so searches continue; if a write lands before the swap, the
// filter is redone under the write lock. Calling Compact with nothing to purge is a no-op.
func (f *FlatIndex) Compact(ctx context.Context) (int, error) {
	version, survivors, ok := f.compactSnapshot()
	if !ok {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.compactSwap(version, survivors), nil
}

func (f *FlatIndex) compactSnapshot() (uint64, []*flatEntry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.tombstones == 0 {
		return 0, nil, false
	}
	return f.version, liveEntries(f.entries, len(f.live)), true
}

func (f *FlatIndex) compactSwap(version uint64, survivors []*flatEntry) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.version != version {
		survivors = liveEntries(f.entries, len(f.live))
	}
	purged := len(f.entries) - len(survivors)
	f.entries = survivors
	f.tombstones = 0
	if purged > 0 {
		f.version++
	}
	return purged
}

func liveEntries(entries []*flatEntry, n int) []*flatEntry {
	out := make([]*flatEntry, 0, n)
	for _, fe := range entries {
		if fe.state == stateLive {
			out = append(out, fe)
		}
	}
	return out
}

// Stats returns the number of live and tombstoned entries.
func (f *FlatIndex) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{Live: len(f.live), Tombstoned: f.tombstones}
}

// Close releases the index contents.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
	f.live = make(map[string]*flatEntry)
	f.tombstones = 0
	return nil
}
