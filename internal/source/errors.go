package source

import (
	"fmt"
	"strings"

	"metaquery/internal/catalog"
)

// UnknownSourceError reports a descriptor referencing an unregistered source.
type UnknownSourceError struct {
	Source string
	Known  []string
}

func (e *UnknownSourceError) Error() string {
	known := "none"
	if len(e.Known) > 0 {
		known = strings.Join(e.Known, ", ")
	}
	return fmt.Sprintf("unknown source %q (registered: %s)", e.Source, known)
}

// FetchError reports a failed adapter call: network, auth, malformed
// response, or a result column that cannot be attributed to a request.
type FetchError struct {
	Source string
	Name   string // logical name when known
	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch from %s failed", e.Source)
	if e.Name != "" {
		msg += fmt.Sprintf(" for %q", e.Name)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// NoDataError reports a provider returning an empty series for a request.
type NoDataError struct {
	Name       string
	Descriptor catalog.Descriptor
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for %q (%s)", e.Name, e.Descriptor)
}
