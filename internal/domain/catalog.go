package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrCatalogUnavailable means no cached, stored or upstream catalog could be read.
	ErrCatalogUnavailable = errors.New("classifier catalog unavailable")
	// ErrEmptyCatalog means the upstream answered without any classifiers.
	ErrEmptyCatalog = errors.New("classifier catalog is empty")
	// ErrCircuitOpen means upstream requests are suspended after repeated throttling.
	ErrCircuitOpen = errors.New("catalog circuit breaker is open")
)

// Catalog is one snapshot of the classifier list in upstream order.
type Catalog struct {
	Classifiers []Classifier `json:"classifiers"`
	FetchedAt   time.Time    `json:"fetched_at"`
	Source      string       `json:"source"`
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Classifiers)
}

// Digest identifies the ordered content of the catalog. Two snapshots with the
// same classifiers in the same order share a digest regardless of FetchedAt.
func (c *Catalog) Digest() string {
	h := sha256.New()
	if c != nil {
		for _, cl := range c.Classifiers {
			h.Write([]byte(cl))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
