package exchange

import "time"

func timeNow() time.Time {
	return time.Now()
}

// defaultDeadline resolves the per-job timeout: the job payload's override
// if finite and positive, else the configured default (spec.md §4.6).
func defaultDeadline(timeoutSeconds *int64, defaultSeconds int64) time.Duration {
	if timeoutSeconds != nil && *timeoutSeconds > 0 {
		return time.Duration(*timeoutSeconds) * time.Second
	}
	return time.Duration(defaultSeconds) * time.Second
}
