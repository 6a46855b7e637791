// Package vector stores float embeddings in a single text column.
package vector

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *Vector) Scan(value any) error {
	var raw []byte
	switch val := value.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		raw = val
	case string:
		raw = []byte(val)
	default:
		return fmt.Errorf("vector: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*v = nil
		return nil
	}
	var out []float32
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*v = out
	return nil
}
