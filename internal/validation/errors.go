// Package validation collects field- and base-scoped validation failures so that
// every applicable problem is reported together instead of stopping at the first.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Base is the pseudo-field for errors that are not tied to a single attribute.
const Base = "base"

// Errors is an ordered set of messages keyed by field.
type Errors struct {
	order    []string
	messages map[string][]string
}

// New returns an empty error set.
func New() *Errors {
	return &Errors{messages: make(map[string][]string)}
}

// Add appends msg to field. Duplicate messages on the same field are kept once.
func (e *Errors) Add(field, msg string) {
	if e.messages == nil {
		e.messages = make(map[string][]string)
	}
	existing, ok := e.messages[field]
	if !ok {
		e.order = append(e.order, field)
	}
	for _, m := range existing {
		if m == msg {
			return
		}
	}
	e.messages[field] = append(existing, msg)
}

// Addf is Add with fmt.Sprintf formatting.
func (e *Errors) Addf(field, format string, args ...any) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// Merge copies every message of other into e.
func (e *Errors) Merge(other *Errors) {
	if other == nil {
		return
	}
	for _, f := range other.order {
		for _, m := range other.messages[f] {
			e.Add(f, m)
		}
	}
}

// Empty reports whether no message was added.
func (e *Errors) Empty() bool {
	return e == nil || len(e.order) == 0
}

// Len returns the total number of messages.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	n := 0
	for _, msgs := range e.messages {
		n += len(msgs)
	}
	return n
}

// Fields returns the fields with errors in insertion order.
func (e *Errors) Fields() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.order...)
}

// On returns the messages attached to field.
func (e *Errors) On(field string) []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.messages[field]...)
}

// Has reports whether field carries exactly msg.
func (e *Errors) Has(field, msg string) bool {
	for _, m := range e.On(field) {
		if m == msg {
			return true
		}
	}
	return false
}

// Map returns a copy of the messages keyed by field.
func (e *Errors) Map() map[string][]string {
	if e == nil {
		return map[string][]string{}
	}
	out := make(map[string][]string, len(e.order))
	for _, f := range e.order {
		out[f] = append([]string(nil), e.messages[f]...)
	}
	return out
}

// Err returns e as an error, or nil when it is empty.
func (e *Errors) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *Errors) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	parts := make([]string, 0, e.Len())
	for _, f := range e.order {
		for _, m := range e.messages[f] {
			if f == Base {
				parts = append(parts, m)
				continue
			}
			parts = append(parts, f+" "+m)
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// MarshalJSON renders the errors as {"field": ["msg", ...]}.
func (e *Errors) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}

// As extracts *Errors from an error chain.
func As(err error) (*Errors, bool) {
	var verr *Errors
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// IsValidation reports whether err carries validation errors.
func IsValidation(err error) bool {
	_, ok := As(err)
	return ok
}
