package domain

import "net/url"

// SearchParam is the query parameter the search view filters classifiers by.
const SearchParam = "c"

// SearchQuery is the transient {c: classifier} filter attached to a search link.
type SearchQuery struct {
	Classifiers []Classifier
}

// Values returns one c= value per classifier, in order.
func (q SearchQuery) Values() url.Values {
	values := url.Values{}
	for _, c := range q.Classifiers {
		values.Add(SearchParam, c.String())
	}
	return values
}

// Encode URL-encodes the query so reserved characters survive the round trip.
func (q SearchQuery) Encode() string {
	return q.Values().Encode()
}

// ParseSearchQuery is the inverse of Values.
func ParseSearchQuery(values url.Values) SearchQuery {
	raw := values[SearchParam]
	q := SearchQuery{Classifiers: make([]Classifier, 0, len(raw))}
	for _, v := range raw {
		q.Classifiers = append(q.Classifiers, Classifier(v))
	}
	return q
}
