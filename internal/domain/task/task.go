package task

import (
	"encoding/json"
	"fmt"
)

// Task is a unit of work carried on a Redis stream named after TaskType.
type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

// DefaultTaskValue encodes a task as JSON.
func DefaultTaskValue(t any) ([]byte, error) {
	return json.Marshal(t)
}

func UnmarshalTask[T Task](data []byte) (T, error) {
	var t T
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("failed to decode task: %w", err)
	}
	return t, nil
}
