package release

import "fmt"

// PublishError is a failed publish step. Op is one of validate, scan,
// render, build, credentials, login, push, record.
type PublishError struct {
	Op        string
	Ref       string
	Transient bool
	Err       error
}

func (e *PublishError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("publish %s %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("publish %s: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
