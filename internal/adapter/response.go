package adapter

import (
	"encoding/json"
	"strings"
	"sync"
)

// Response is the outcome of a write or delete
type Response struct {
	Success bool
	// Status is the transport status code, 0 when the transport has none
	Status int
	Meta   map[string]interface{}
	Raw    []byte
	// Format names the raw encoding, e.g. "json"
	Format string

	once   sync.Once
	parsed interface{}
}

// NewParsedResponse creates a response whose body is already structured
func NewParsedResponse(success bool, parsed map[string]interface{}) *Response {
	r := &Response{Success: success, parsed: parsed}
	r.once.Do(func() {})
	return r
}

// Parsed returns the structured body. JSON bodies are decoded on first use;
// a body that fails to decode yields nil.
func (r *Response) Parsed() interface{} {
	r.once.Do(func() {
		if strings.TrimPrefix(r.Format, ".") != "json" || len(r.Raw) == 0 {
			return
		}
		var v interface{}
		if err := json.Unmarshal(r.Raw, &v); err == nil {
			r.parsed = v
		}
	})
	return r.parsed
}

// ModelAttributes returns the structured body, unwrapping a single nested
// resource such as {"article": {...}}
func (r *Response) ModelAttributes() map[string]interface{} {
	h := r.parsedHash()
	if len(h) == 1 {
		for _, v := range h {
			if inner, ok := v.(map[string]interface{}); ok {
				return inner
			}
		}
	}
	return h
}

// Errors returns the structured body as a field to message map
func (r *Response) Errors() map[string]interface{} {
	return r.parsedHash()
}

func (r *Response) parsedHash() map[string]interface{} {
	h, ok := r.Parsed().(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
