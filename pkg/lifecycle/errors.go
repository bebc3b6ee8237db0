package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ngld/mmpack/pkg/shell"
)

// StepError is returned when a hook fails
type StepError struct {
	Hook Hook
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("hook %s failed: %s", e.Hook, e.Err.Error())
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status of the failed delegated command or 1 if the failure didn't
// come from a command
func (e *StepError) ExitCode() int {
	var exitErr *shell.ExitError
	if errors.As(e.Err, &exitErr) && exitErr.Status != 0 {
		return int(exitErr.Status)
	}
	return 1
}
