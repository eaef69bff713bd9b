// Package faults defines the error taxonomy shared by the translation
// pipeline. Sentinel markers classify failures for propagation policy:
// configuration and glossary errors abort the run before any dispatch,
// request and format errors are retried per batch, merge errors stop only
// the affected file.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig marks a missing or malformed configuration field.
	ErrConfig = errors.New("configuration error")
	// ErrGlossary marks a malformed dictionary line or unreadable dictionary file.
	ErrGlossary = errors.New("glossary error")
	// ErrRequest marks a network failure, timeout, or non-2xx response.
	ErrRequest = errors.New("request error")
	// ErrFormat marks a response whose line count does not match the request.
	ErrFormat = errors.New("format error")
	// ErrMerge marks a duplicate or out-of-range index during reassembly.
	ErrMerge = errors.New("merge error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrRequest
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Fatal reports whether err should abort the whole run before dispatch.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrGlossary)
}

// Retryable reports whether err falls under the bounded per-batch retry policy.
func Retryable(err error) bool {
	return errors.Is(err, ErrRequest) || errors.Is(err, ErrFormat)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
