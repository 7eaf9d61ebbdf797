package executor

import (
	"fmt"
	"time"
)

// DeferredError asks the job transport to run the job again after Wait
type DeferredError struct {
	Reason string
	Wait   time.Duration
	Err    error
}

func (e *DeferredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s, retry in %v: %v", e.Reason, e.Wait, e.Err)
	}
	return fmt.Sprintf("%s, retry in %v", e.Reason, e.Wait)
}

func (e *DeferredError) Unwrap() error { return e.Err }

// RetryAfter implements jobs.RetryAfter
func (e *DeferredError) RetryAfter() time.Duration { return e.Wait }
