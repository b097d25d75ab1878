package verify

import "fmt"

// Result collects validation findings. Errors block the operation; warnings
// are informational and each command decides whether they are fatal.
type Result struct {
	Errors   []string
	Warnings []string
}

// Errorf records a blocking error.
func (r *Result) Errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Warnf records a non-blocking warning.
func (r *Result) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Valid reports whether no blocking errors were recorded.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Merge appends another result's findings.
func (r *Result) Merge(other *Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}
