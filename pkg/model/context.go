package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ContextMode distinguishes the two representations of a ContextRecord
type ContextMode string

const (
	// ContextModeWindow holds the raw entries while the conversation is short
	ContextModeWindow ContextMode = "window"
	// ContextModeSummary holds a rolling summary plus the recent entries
	ContextModeSummary ContextMode = "summary"
)

// WindowLimit is the maximum number of entries kept verbatim. Appending the
// entry that would exceed it triggers summarization.
const WindowLimit = 10

// ContextEntry is one turn of a conversation. Immutable once created.
type ContextEntry struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Same reports de-duplication equality, defined as (query, response) tuple
// equality regardless of timestamp.
func (e ContextEntry) Same(other ContextEntry) bool {
	return e.Query == other.Query && e.Response == other.Response
}

// ContextRecord is the compacted conversational memory for one session.
// It is a tagged union: Window mode keeps an ordered list of at most
// WindowLimit entries; once an append would exceed the limit the record
// irreversibly transitions to Summary mode, where Summary carries the folded
// past and History the recent entries (again at most WindowLimit).
//
// The wire format follows the legacy layout: Window mode serializes as a
// bare JSON array of entries, Summary mode as {"summary": ..., "history": [...]}.
type ContextRecord struct {
	Mode    ContextMode
	Entries []ContextEntry // Window mode only
	Summary string         // Summary mode only
	History []ContextEntry // Summary mode only
}

// NewContextRecord returns an empty Window-mode record
func NewContextRecord() *ContextRecord {
	return &ContextRecord{Mode: ContextModeWindow}
}

// Visible returns the entries subject to de-duplication and prompt building:
// the list in Window mode, History in Summary mode.
func (r *ContextRecord) Visible() []ContextEntry {
	switch r.Mode {
	case ContextModeSummary:
		return r.History
	default:
		return r.Entries
	}
}

// Contains reports whether an entry with the same (query, response) tuple is
// already visible in the record.
func (r *ContextRecord) Contains(entry ContextEntry) bool {
	for _, e := range r.Visible() {
		if e.Same(entry) {
			return true
		}
	}
	return false
}

// Tail returns the newest n visible entries in order
func (r *ContextRecord) Tail(n int) []ContextEntry {
	visible := r.Visible()
	if len(visible) <= n {
		return visible
	}
	return visible[len(visible)-n:]
}

type summaryRecord struct {
	Summary string         `json:"summary"`
	History []ContextEntry `json:"history"`
}

// MarshalJSON serializes the record in the legacy tagged layout
func (r *ContextRecord) MarshalJSON() ([]byte, error) {
	switch r.Mode {
	case ContextModeSummary:
		return json.Marshal(summaryRecord{Summary: r.Summary, History: r.History})
	default:
		entries := r.Entries
		if entries == nil {
			entries = []ContextEntry{}
		}
		return json.Marshal(entries)
	}
}

// UnmarshalJSON parses both legacy layouts: a bare array (Window mode) or a
// {summary, history} object (Summary mode).
func (r *ContextRecord) UnmarshalJSON(data []byte) error {
	var entries []ContextEntry
	if err := json.Unmarshal(data, &entries); err == nil {
		r.Mode = ContextModeWindow
		r.Entries = entries
		r.Summary = ""
		r.History = nil
		return nil
	}

	var s summaryRecord
	if err := json.Unmarshal(data, &s); err != nil {
		return goerr.Wrap(err, "malformed context record")
	}
	r.Mode = ContextModeSummary
	r.Entries = nil
	r.Summary = s.Summary
	r.History = s.History
	return nil
}
