package consolidation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// ErrWindowCoverage is returned when a short-term memory proposal keeps
// omitting dates of the trailing window.
var ErrWindowCoverage = errors.New("short-term memory misses window dates")

// StepError reports the step at which a date's consolidation stopped.
type StepError struct {
	Date time.Time
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("consolidating %s: %s: %v", tiers.DateKey(e.Date), e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CoverageError lists the window dates a proposal left out.
type CoverageError struct {
	Missing []string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("short-term memory omits %s", strings.Join(e.Missing, ", "))
}

func (e *CoverageError) Is(target error) bool { return target == ErrWindowCoverage }
