package render

import (
	"fmt"
	"html/template"

	lru "github.com/hashicorp/golang-lru/v2"

	"trove/catalog/internal/domain"
)

// Memo caches rendered list fragments by catalog digest.
type Memo struct {
	renderer *Renderer
	cache    *lru.Cache[string, template.HTML]
}

func NewMemo(renderer *Renderer, size int) (*Memo, error) {
	cache, err := lru.New[string, template.HTML](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fragment cache: %w", err)
	}
	return &Memo{renderer: renderer, cache: cache}, nil
}

func (m *Memo) Fragment(catalog *domain.Catalog) (template.HTML, error) {
	key := catalog.Digest()
	if html, ok := m.cache.Get(key); ok {
		return html, nil
	}

	var classifiers []domain.Classifier
	if catalog != nil {
		classifiers = catalog.Classifiers
	}
	html, err := m.renderer.Fragment(classifiers)
	if err != nil {
		return "", err
	}
	m.cache.Add(key, html)

	return html, nil
}

func (m *Memo) Len() int {
	return m.cache.Len()
}
