package linkedapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Completion is the decoded payload of a completed workflow. The provider has
// changed its shape between versions, so every read goes through Lookup and
// missing paths are reported rather than assumed.
type Completion struct {
	value interface{}
}

// NewCompletion wraps an already decoded payload
func NewCompletion(v interface{}) Completion {
	return Completion{value: v}
}

func decodeCompletion(raw json.RawMessage) (Completion, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Completion{}, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Completion{}, fmt.Errorf("failed to decode workflow completion: %w", err)
	}
	return Completion{value: v}, nil
}

// Raw returns the decoded payload
func (c Completion) Raw() interface{} {
	return c.value
}

// Lookup walks the payload; string steps index objects, int steps index arrays
func (c Completion) Lookup(path ...interface{}) (interface{}, bool) {
	return lookup(c.value, path...)
}

// Success reports whether the provider considered the action done. An explicit
// success flag wins; otherwise a completion carrying an error is a failure and
// anything else counts as done.
func (c Completion) Success() bool {
	for _, path := range [][]interface{}{{"success"}, {"data", "success"}} {
		if v, ok := c.Lookup(path...); ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	if v, ok := c.Lookup("error"); ok && v != nil {
		return false
	}
	return true
}

// Error returns the provider's error text, if any
func (c Completion) Error() string {
	return firstString(c.value, []interface{}{"error", "message"}, []interface{}{"error"})
}

func lookup(v interface{}, path ...interface{}) (interface{}, bool) {
	cur := v
	for _, step := range path {
		switch key := step.(type) {
		case string:
			obj, ok := cur.(map[string]interface{})
			if !ok {
				return nil, false
			}
			next, ok := obj[key]
			if !ok {
				return nil, false
			}
			cur = next
		case int:
			arr, ok := cur.([]interface{})
			if !ok || key < 0 || key >= len(arr) {
				return nil, false
			}
			cur = arr[key]
		default:
			return nil, false
		}
	}
	return cur, true
}

// firstString returns the first non-empty string found at any of the paths
func firstString(v interface{}, paths ...[]interface{}) string {
	for _, path := range paths {
		if found, ok := lookup(v, path...); ok {
			if s, ok := found.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// firstList returns the first array found at any of the paths
func firstList(v interface{}, paths ...[]interface{}) []interface{} {
	for _, path := range paths {
		if found, ok := lookup(v, path...); ok {
			if arr, ok := found.([]interface{}); ok {
				return arr
			}
		}
	}
	return nil
}
