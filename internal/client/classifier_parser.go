package client

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"trove/catalog/internal/domain"
)

// maxLineSize bounds a single plain-text line. Longer lines fail the parse
// instead of silently truncating the catalog.
const maxLineSize = 1 << 20

type classifierParser struct{}

func newClassifierParser() *classifierParser {
	return &classifierParser{}
}

// Parse extracts classifiers in document order. Duplicates and unusual values
// are kept; deciding what belongs in the catalog is the upstream's job.
func (p *classifierParser) Parse(body, contentType string) ([]domain.Classifier, error) {
	var (
		classifiers []domain.Classifier
		err         error
	)

	if isHTML(body, contentType) {
		classifiers, err = p.parseHTML(body)
	} else {
		classifiers, err = p.parseText(body)
	}
	if err != nil {
		return nil, err
	}

	if len(classifiers) == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	return classifiers, nil
}

func isHTML(body, contentType string) bool {
	if strings.Contains(contentType, "html") {
		return true
	}
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		return strings.HasPrefix(strings.TrimSpace(body), "<")
	}
	return false
}

func (p *classifierParser) parseText(body string) ([]domain.Classifier, error) {
	classifiers := make([]domain.Classifier, 0)

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		classifiers = append(classifiers, domain.Classifier(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plain text catalog after %d classifiers: %w", len(classifiers), err)
	}

	log.Debugf("Parsed %d classifiers from plain text", len(classifiers))
	return classifiers, nil
}

func (p *classifierParser) parseHTML(body string) ([]domain.Classifier, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	classifiers := make([]domain.Classifier, 0)

	// Copy buttons carry the raw classifier.
	doc.Find("[data-clipboard-text]").Each(func(i int, s *goquery.Selection) {
		if value, ok := s.Attr("data-clipboard-text"); ok && strings.TrimSpace(value) != "" {
			classifiers = append(classifiers, domain.Classifier(value))
		}
	})
	if len(classifiers) > 0 {
		log.Debugf("Parsed %d classifiers from copy buttons", len(classifiers))
		return classifiers, nil
	}

	// Fall back to search links of the form ?c=<classifier>.
	doc.Find("a[href*='c=']").Each(func(i int, link *goquery.Selection) {
		href, exists := link.Attr("href")
		if !exists {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			log.Debugf("Skipping unparsable link %q: %v", href, err)
			return
		}
		if value := u.Query().Get(domain.SearchParam); value != "" {
			classifiers = append(classifiers, domain.Classifier(value))
		}
	})

	log.Debugf("Parsed %d classifiers from search links", len(classifiers))
	return classifiers, nil
}
