package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/goalclock/internal/model"
)

// marshalColumn converts a value to canonical JSON TEXT for storage, so
// equal records always serialize to identical bytes.
func marshalColumn(name string, v any) (string, error) {
	data, err := model.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	return string(data), nil
}

// marshalOptional stores nil pointers as SQL NULL.
func marshalOptional[T any](name string, v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return marshalColumn(name, v)
}

func unmarshalColumn(name, data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
