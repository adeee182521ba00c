package model

import (
	"sort"
	"strings"
)

// ValidationErrors collects user-facing messages for one submission. Every
// submission (form post, API call, import row) owns its own collection.
type ValidationErrors struct {
	NonField []string            `json:"non_field_errors,omitempty"`
	Fields   map[string][]string `json:"fields,omitempty"`
}

// Add records a message that is not tied to a single field.
func (e *ValidationErrors) Add(msg string) {
	e.NonField = append(e.NonField, msg)
}

// AddField records a message for field.
func (e *ValidationErrors) AddField(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Merge appends all messages of other.
func (e *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	e.NonField = append(e.NonField, other.NonField...)
	for field, msgs := range other.Fields {
		for _, msg := range msgs {
			e.AddField(field, msg)
		}
	}
}

func (e *ValidationErrors) HasErrors() bool {
	return e != nil && (len(e.NonField) > 0 || len(e.Fields) > 0)
}

// Has reports whether msg was recorded, as a non-field or field message.
func (e *ValidationErrors) Has(msg string) bool {
	if e == nil {
		return false
	}
	for _, m := range e.NonField {
		if m == msg {
			return true
		}
	}
	for _, msgs := range e.Fields {
		for _, m := range msgs {
			if m == msg {
				return true
			}
		}
	}
	return false
}

// Err returns e as an error, or nil when nothing was recorded.
func (e *ValidationErrors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationErrors) Error() string {
	parts := append([]string{}, e.NonField...)

	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e.Fields[f], " "))
	}
	return strings.Join(parts, "; ")
}
