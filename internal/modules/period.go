package modules

import (
	"fmt"
	"time"
)

// Period names the four rolling windows points/levels/leaderboards track.
type Period string

const (
	PeriodAll     Period = "all"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists every non-"all" period, the set that gets its own
// calendar-bucketed counter on every award.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// PeriodBucket computes the calendar bucket key component for t under
// period, in UTC: "YYYY-MM-DD" for daily, ISO week "YYYY-Www" for
// weekly, "YYYY-MM" for monthly. PeriodAll has no bucket and returns "".
func PeriodBucket(period Period, t time.Time) string {
	t = t.UTC()
	switch period {
	case PeriodDaily:
		return t.Format("2006-01-02")
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return ""
	}
}
