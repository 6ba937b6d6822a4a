package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"smart-diet-planner/internal/planner"
)

const (
	// DefaultQuantity is the multiplier used when no quantity was submitted.
	DefaultQuantity = 1.0
	// MaxQuantity caps the multiplier of a single meal.
	MaxQuantity = 5.0
	// CompletionThreshold is the remaining calorie count at or below which today counts as done.
	CompletionThreshold = 20.0

	dateLayout = "2006-01-02"
)

var (
	// ErrNotToday is returned when saving a summary for a day other than today.
	ErrNotToday = errors.New("only today's summary can be saved")
	// ErrUnknownDay is returned when the selected day is not part of the plan.
	ErrUnknownDay = errors.New("day not in plan")
)

// Intake is what the user reported for one meal of the selected day.
type Intake struct {
	Eaten    bool
	Quantity float64
}

// Summary is the computed view of one plan day.
type Summary struct {
	Day       string
	Meals     []planner.Meal
	Planned   int
	Consumed  float64
	Remaining float64
	IsToday   bool
	Complete  bool
}

// ClampQuantity bounds q to [0, MaxQuantity]. NaN maps to DefaultQuantity.
func ClampQuantity(q float64) float64 {
	switch {
	case math.IsNaN(q):
		return DefaultQuantity
	case q < 0:
		return 0
	case q > MaxQuantity:
		return MaxQuantity
	}
	return q
}

// Planned sums the calories of meals.
func Planned(meals []planner.Meal) int {
	total := 0
	for _, m := range meals {
		total += m.Calories
	}
	return total
}

// Consumed sums calories times quantity over the meals marked eaten. Intakes
// are matched to meals by position; meals without an intake count as not eaten.
func Consumed(meals []planner.Meal, intakes []Intake) float64 {
	var total float64
	for i, m := range meals {
		if i >= len(intakes) || !intakes[i].Eaten {
			continue
		}
		total += float64(m.Calories) * ClampQuantity(intakes[i].Quantity)
	}
	return total
}

// Remaining returns planned minus consumed, never below zero.
func Remaining(planned int, consumed float64) float64 {
	return math.Max(0, float64(planned)-consumed)
}

// Tracker computes daily summaries against the current date and persists today's.
type Tracker struct {
	repo *SummaryRepository
	loc  *time.Location
	now  func() time.Time
}

// NewTracker creates a new Tracker evaluating "today" in loc.
func NewTracker(repo *SummaryRepository, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		repo: repo,
		loc:  loc,
		now:  time.Now,
	}
}

// Today returns today's date key and weekday name.
func (t *Tracker) Today() (string, string) {
	now := t.now().In(t.loc)
	return now.Format(dateLayout), planner.WeekdayOf(now)
}

// Summarize computes the summary of day in plan. Consumption only counts when
// day is today; other days are read-only and report zero.
func (t *Tracker) Summarize(plan planner.WeeklyPlan, day string, intakes []Intake) (Summary, error) {
	meals, ok := plan[day]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrUnknownDay, day)
	}
	_, today := t.Today()

	s := Summary{
		Day:     day,
		Meals:   meals,
		Planned: Planned(meals),
		IsToday: day == today,
	}
	if s.IsToday {
		s.Consumed = Consumed(meals, intakes)
	}
	s.Remaining = Remaining(s.Planned, s.Consumed)
	s.Complete = s.IsToday && s.Remaining <= CompletionThreshold
	return s, nil
}

// SaveToday writes the summary record for userID under today's date,
// replacing any record already saved today.
func (t *Tracker) SaveToday(ctx context.Context, userID, day string, planned int, consumed float64) (Record, error) {
	date, today := t.Today()
	if day != today {
		return Record{}, fmt.Errorf("%w: selected %s, today is %s", ErrNotToday, day, today)
	}

	rec := Record{
		Date:     date,
		Day:      day,
		Planned:  planned,
		Consumed: int(consumed),
	}
	if err := t.repo.Save(ctx, userID, rec); err != nil {
		return Record{}, err
	}
	slog.Info("daily summary saved",
		slog.String("user_id", userID),
		slog.String("date", date),
		slog.Int("planned", rec.Planned),
		slog.Int("consumed", rec.Consumed),
	)
	return rec, nil
}
