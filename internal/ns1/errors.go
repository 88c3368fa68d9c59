package ns1

import "fmt"

// UnsupportedError is a fatal pre-apply validation failure: configuration
// the platform cannot express, such as an unknown health-check protocol or
// continent code. It is raised before any mutation is issued.
type UnsupportedError struct {
	Reason string
}

func (e *UnsupportedError) Error() string {
	return "ns1: unsupported configuration: " + e.Reason
}

func unsupportedf(format string, args ...any) error {
	return &UnsupportedError{Reason: fmt.Sprintf(format, args...)}
}
