// Package render turns classifier catalogs into HTML.
//
// Escaping is left to html/template: classifiers are passed through verbatim
// and only the search link applies URL encoding, through domain.SearchQuery.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"trove/catalog/internal/domain"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the assets referenced by the page shell.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Options configures the paths the rendered HTML links to.
type Options struct {
	SearchPath string
	StaticPath string
	ListPath   string
}

// Page is the data for the full classifiers page.
type Page struct {
	Title       string
	Count       int
	FetchedAt   time.Time
	Unavailable bool
	Fragment    template.HTML
	StaticPath  string
}

// SearchPage is the data for the search view.
type SearchPage struct {
	Query      domain.SearchQuery
	ListPath   string
	StaticPath string
}

type Renderer struct {
	opts      Options
	templates *template.Template
}

func NewRenderer(opts Options) (*Renderer, error) {
	if opts.SearchPath == "" {
		opts.SearchPath = "/search/"
	}
	if opts.StaticPath == "" {
		opts.StaticPath = "/static/"
	}
	if opts.ListPath == "" {
		opts.ListPath = "/classifiers/"
	}

	r := &Renderer{opts: opts}
	tmpl, err := template.New("classifiers").
		Funcs(template.FuncMap{"searchURL": r.SearchURL}).
		ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	r.templates = tmpl

	return r, nil
}

// SearchURL links to the search view filtered by exactly this classifier.
func (r *Renderer) SearchURL(c domain.Classifier) string {
	q := domain.SearchQuery{Classifiers: []domain.Classifier{c}}
	return r.opts.SearchPath + "?" + q.Encode()
}

// RenderList writes one list item per classifier, in the order given.
func (r *Renderer) RenderList(w io.Writer, classifiers []domain.Classifier) error {
	if err := r.templates.ExecuteTemplate(w, "classifier-list", classifiers); err != nil {
		return fmt.Errorf("failed to render classifier list: %w", err)
	}
	return nil
}

// Fragment renders the list into a value the page shell can embed.
func (r *Renderer) Fragment(classifiers []domain.Classifier) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.RenderList(&buf, classifiers); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (r *Renderer) RenderPage(w io.Writer, page Page) error {
	if page.Title == "" {
		page.Title = "Classifiers"
	}
	if page.StaticPath == "" {
		page.StaticPath = r.opts.StaticPath
	}
	if err := r.templates.ExecuteTemplate(w, "page", page); err != nil {
		return fmt.Errorf("failed to render classifiers page: %w", err)
	}
	return nil
}

func (r *Renderer) RenderSearch(w io.Writer, page SearchPage) error {
	if page.ListPath == "" {
		page.ListPath = r.opts.ListPath
	}
	if page.StaticPath == "" {
		page.StaticPath = r.opts.StaticPath
	}
	if err := r.templates.ExecuteTemplate(w, "search", page); err != nil {
		return fmt.Errorf("failed to render search page: %w", err)
	}
	return nil
}
