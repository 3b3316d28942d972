package capsule

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError reports incompatible geometry or channel counts. It is raised at construction
// or before the first routing iteration, never mid-routing.
type ConfigError struct {
	Stage string // which stage or layer detected the problem
	Dim   string // which dimension is at fault
	Want  int
	Got   int

	Reason string // set when the problem is not a plain want/got mismatch
}

func (e ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Stage, e.Dim, e.Reason)
	}
	return fmt.Sprintf("%s: %s mismatch: want %d, got %d", e.Stage, e.Dim, e.Want, e.Got)
}

// Mismatch returns a ConfigError with a stack trace.
func Mismatch(stage, dim string, want, got int) error {
	return errors.WithStack(ConfigError{Stage: stage, Dim: dim, Want: want, Got: got})
}

// Invalid returns a ConfigError carrying a free form reason.
func Invalid(stage, dim, format string, args ...interface{}) error {
	return errors.WithStack(ConfigError{Stage: stage, Dim: dim, Reason: fmt.Sprintf(format, args...)})
}

// IsConfigError reports whether the cause of err is a ConfigError.
func IsConfigError(err error) bool {
	_, ok := errors.Cause(err).(ConfigError)
	return ok
}
