// Package tef writes Trace Event Format JSON, the format consumed by
// chrome://tracing and Perfetto.
//
// https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
package tef

import (
	"encoding/json"
	"io"
)

type File struct {
	TraceEvents []Event `json:"traceEvents"`
	// DisplayTimeUnit specifies in which unit timestamps should be
	// displayed: "ms" or "ns".
	DisplayTimeUnit string         `json:"displayTimeUnit,omitempty"`
	OtherData       map[string]any `json:"otherData,omitempty"`
}

type Event struct {
	// The name of the event, as displayed in the viewer.
	Name string `json:"name"`
	// The event categories, a comma separated list.
	Category string `json:"cat,omitempty"`
	// The event type; see the Phase constants.
	Phase Phase `json:"ph"`
	// The tracing clock timestamp, in microseconds.
	Timestamp float64 `json:"ts"`
	// Duration in microseconds, for Complete events.
	Duration float64 `json:"dur,omitempty"`

	ProcessID int64 `json:"pid"`
	ThreadID  int64 `json:"tid"`

	// ColorName selects one of the viewer's reserved palette names.
	ColorName string `json:"cname,omitempty"`

	Args map[string]any `json:"args,omitempty"`
}

type Phase string

const (
	DurationBegin Phase = "B"
	DurationEnd   Phase = "E"
	Complete      Phase = "X"
	Instant       Phase = "i"
	Counter       Phase = "C"
	Metadata      Phase = "M"
)

// Write encodes the file as a single JSON document.
func Write(w io.Writer, file File) error {
	return json.NewEncoder(w).Encode(file)
}
