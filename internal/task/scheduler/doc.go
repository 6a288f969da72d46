// Package scheduler runs periodic jobs (cron, interval, daily HH:MM) on top of
// robfig/cron. A job never overlaps itself: a trigger that fires while the
// previous run is still in flight is skipped.
package scheduler
