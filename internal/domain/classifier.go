package domain

import "strings"

// Classifier is a trove classifier string such as
// "Programming Language :: Python :: 3". Values are opaque: they are carried
// exactly as the catalog supplies them.
type Classifier string

const (
	classifierSeparator = " :: "
	privatePrefix       = "Private ::"
)

func (c Classifier) String() string {
	return string(c)
}

// IsPrivate reports whether the classifier uses the "Private ::" namespace.
// It is informational only; nothing in this service filters on it.
func (c Classifier) IsPrivate() bool {
	return strings.HasPrefix(string(c), privatePrefix)
}

// Segments splits the classifier on its " :: " separators.
func (c Classifier) Segments() []string {
	if c == "" {
		return nil
	}
	return strings.Split(string(c), classifierSeparator)
}

// Classifiers converts raw strings without touching their content or order.
func Classifiers(values ...string) []Classifier {
	out := make([]Classifier, len(values))
	for i, v := range values {
		out[i] = Classifier(v)
	}
	return out
}
