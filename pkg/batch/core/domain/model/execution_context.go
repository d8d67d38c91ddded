package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ResumePositionKey holds the number of source records consumed by committed chunks.
// Restartable readers seek to this ordinal when they are opened.
const ResumePositionKey = "batch.step.resumePosition"

// ExecutionContext is the serializable key-value state persisted with an execution.
// Readers and writers keep their restart position here.
type ExecutionContext map[string]interface{}

// NewExecutionContext returns an empty context.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put stores value under key.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get returns the raw value for key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString returns the value for key if it is a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	s, ok := ec[key].(string)
	return s, ok
}

// GetInt returns the value for key as an int.
// Values that went through JSON come back as float64 and are converted.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// Remove deletes key.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// Merge copies all entries of other into ec, overwriting existing keys.
func (ec ExecutionContext) Merge(other ExecutionContext) {
	for k, v := range other {
		ec[k] = copyValue(v)
	}
}

// Copy returns a deep copy. Nested maps and slices are copied, other values are shared.
func (ec ExecutionContext) Copy() ExecutionContext {
	if ec == nil {
		return NewExecutionContext()
	}
	out := make(ExecutionContext, len(ec))
	for k, v := range ec {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[k] = copyValue(vv)
		}
		return m
	case ExecutionContext:
		return t.Copy()
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, vv := range t {
			s[i] = copyValue(vv)
		}
		return s
	}
	return v
}

// Value implements driver.Valuer; the context is stored as JSON text.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(ec))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (ec *ExecutionContext) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for ExecutionContext: %T", value)
	}
	m := make(map[string]interface{})
	if len(b) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("failed to unmarshal ExecutionContext JSON: %w", err)
		}
	}
	*ec = ExecutionContext(m)
	return nil
}
