// Package tenant owns the per-project handles: identity, key verification and the
// consistency domain of each project's store partition and indexes.
package tenant

import (
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"

	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/quota"
	"github.com/hyperjump/retriever/internal/vector"
)

// Handle is one project's runtime state. Writers hold Lock while mutating the store
// partition and both indexes; readers hold RLock across search and hydration.
type Handle struct {
	sync.RWMutex

	id       string
	project  atomic.Pointer[models.Project]
	verified atomic.Pointer[[sha256.Size]byte]

	Vectors  vector.VectorIndex
	Lexical  keyword.KeywordIndex
	Governor *quota.Governor
}

// ID returns the project id.
func (h *Handle) ID() string {
	return h.id
}

// Project returns a snapshot of the project record.
func (h *Handle) Project() models.Project {
	return *h.project.Load()
}

func (h *Handle) setProject(p *models.Project) {
	cp := *p
	old := h.project.Swap(&cp)
	if old == nil || old.KeyHash != cp.KeyHash {
		h.verified.Store(nil)
	}
}

// verifyKey checks key against the bcrypt hash. After the first success the key's SHA-256
// digest is kept so later requests compare in constant time without running bcrypt.
func (h *Handle) verifyKey(key string) bool {
	digest := sha256.Sum256([]byte(key))
	if known := h.verified.Load(); known != nil {
		return subtle.ConstantTimeCompare(known[:], digest[:]) == 1
	}
	p := h.project.Load()
	if bcrypt.CompareHashAndPassword([]byte(p.KeyHash), []byte(key)) != nil {
		return false
	}
	// A concurrent key rotation may have replaced the project; only memoize for the hash checked.
	if h.project.Load().KeyHash == p.KeyHash {
		h.verified.Store(&digest)
	}
	return true
}

func limitsOf(p *models.Project) quota.Limits {
	return quota.Limits{RateLimit: p.RateLimit, Burst: p.Burst, Capacity: p.CapacityLimit}
}
