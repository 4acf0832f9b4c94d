// Package aggregate derives reading and writing activity view-state from
// time-stamped content and progress rows: the continue-reading pointer,
// the rolling weekly word count, and the consecutive-day publish streak.
//
// All functions are pure: no I/O, no shared state, deterministic for a
// given `now`. Callers fetch the rows, the aggregator only folds them.
package aggregate

import "time"

// ContinueReading points at the most recently touched chapter position.
type ContinueReading struct {
	BookID         string  `json:"book_id"`
	ChapterID      string  `json:"chapter_id"`
	ScrollPosition float64 `json:"scroll_position"`
}

// Result is the derived activity state for one user.
type Result struct {
	ContinueReading *ContinueReading `json:"continue_reading,omitempty"`
	WeeklyWordCount int              `json:"weekly_word_count"`
	PublishStreak   int              `json:"publish_streak"`
}

// Aggregator holds the calendar conventions. The zero value is the
// documented default: weeks start Sunday, dates are taken in local time.
type Aggregator struct {
	WeekStart time.Weekday
	Loc       *time.Location
}

func (a Aggregator) loc() *time.Location {
	if a.Loc != nil {
		return a.Loc
	}
	return time.Local
}

// Aggregate computes the full result from one snapshot of both record sets.
func (a Aggregator) Aggregate(content []ContentRecord, progress []ProgressRecord, now time.Time) Result {
	return Result{
		ContinueReading: a.ContinueReading(progress),
		WeeklyWordCount: a.WeeklyWordCount(content, now),
		PublishStreak:   a.PublishStreak(content, now),
	}
}

// ContinueReading returns the progress record with the greatest updated_at
// among those that reference a concrete chapter, or nil if none do.
// Last-writer-wins by timestamp, stable on ties: the first record in input
// order keeps the slot when timestamps are equal.
func (a Aggregator) ContinueReading(progress []ProgressRecord) *ContinueReading {
	var best *ProgressRecord
	for i := range progress {
		p := &progress[i]
		if p.ChapterID == nil || *p.ChapterID == "" {
			continue
		}
		if best == nil || p.UpdatedAt.After(best.UpdatedAt) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	return &ContinueReading{
		BookID:         best.BookID,
		ChapterID:      *best.ChapterID,
		ScrollPosition: clamp01(best.ScrollPosition),
	}
}

// WeeklyWordCount sums word counts over records touched within the current
// calendar week, inclusive of the week-start instant. Timestamps after now
// count as now; negative word counts count as zero.
func (a Aggregator) WeeklyWordCount(content []ContentRecord, now time.Time) int {
	now = a.resolveNow(now)
	weekStart := a.weekStart(now)

	total := 0
	for _, c := range content {
		ts := c.UpdatedAt
		if ts.After(now) {
			ts = now
		}
		if ts.Before(weekStart) {
			continue
		}
		if c.WordCount > 0 {
			total += c.WordCount
		}
	}
	return total
}

// PublishStreak counts consecutive calendar days with at least one record,
// walking backward from today. A day with no record ends the walk; if that
// day is today, the streak is 0 regardless of earlier activity.
func (a Aggregator) PublishStreak(content []ContentRecord, now time.Time) int {
	now = a.resolveNow(now)
	loc := a.loc()

	days := make(map[string]struct{}, len(content))
	for _, c := range content {
		ts := c.UpdatedAt
		if ts.After(now) {
			ts = now
		}
		days[ts.In(loc).Format(time.DateOnly)] = struct{}{}
	}

	streak := 0
	day := startOfDay(now.In(loc))
	for {
		if _, ok := days[day.Format(time.DateOnly)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

// weekStart returns midnight of the most recent WeekStart weekday,
// counting today itself.
func (a Aggregator) weekStart(now time.Time) time.Time {
	local := now.In(a.loc())
	day := startOfDay(local)
	back := (int(local.Weekday()) - int(a.WeekStart) + 7) % 7
	return day.AddDate(0, 0, -back)
}

func (a Aggregator) resolveNow(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now()
	}
	return now
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
