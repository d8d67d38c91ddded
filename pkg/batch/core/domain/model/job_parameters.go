package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// JobParameters are the caller-supplied inputs of a job run (input file, flags, ...).
// They are persisted with the execution and handed to restarts unchanged.
type JobParameters map[string]interface{}

// NewJobParameters returns empty parameters.
func NewJobParameters() JobParameters {
	return make(JobParameters)
}

// Put stores value under key.
func (jp JobParameters) Put(key string, value interface{}) {
	jp[key] = value
}

// GetString returns the value for key formatted as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	v, ok := jp[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Copy returns a shallow copy.
func (jp JobParameters) Copy() JobParameters {
	out := make(JobParameters, len(jp))
	for k, v := range jp {
		out[k] = v
	}
	return out
}

// String renders the parameters in key order, masking the given keys.
func (jp JobParameters) String(masked ...string) string {
	keys := make([]string, 0, len(jp))
	for k := range jp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(jp[k])
		for _, m := range masked {
			if strings.EqualFold(k, m) {
				v = "******"
				break
			}
		}
		parts = append(parts, k+"="+v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Value implements driver.Valuer.
func (jp JobParameters) Value() (driver.Value, error) {
	if jp == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(jp))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for JobParameters: %T", value)
	}
	m := make(map[string]interface{})
	if len(b) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("failed to unmarshal JobParameters JSON: %w", err)
		}
	}
	*jp = JobParameters(m)
	return nil
}
