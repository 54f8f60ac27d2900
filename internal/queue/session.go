package queue

import "time"

// Sessions are service days: the numbering epoch rolls at midnight in the
// venue's local time, restarting numbers at 1 and force-cancelling whatever
// was still waiting the day before.
func sessionKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
