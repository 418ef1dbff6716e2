package task

import "time"

const (
	RefreshCatalogTaskType = "RefreshCatalogTask"
	RefreshRetryTaskType   = "RefreshRetryTask"
)

// Types lists every task type that has a stream.
var Types = []string{RefreshCatalogTaskType, RefreshRetryTaskType}

type RefreshCatalogTask struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
	Force       bool      `json:"force"`
	Reason      string    `json:"reason"`
}

func (t *RefreshCatalogTask) TaskType() string {
	return RefreshCatalogTaskType
}

func (t *RefreshCatalogTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}

// RefreshRetryTask re-runs a refresh that failed upstream.
type RefreshRetryTask struct {
	ID      string `json:"id"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
}

func (t *RefreshRetryTask) TaskType() string {
	return RefreshRetryTaskType
}

func (t *RefreshRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
