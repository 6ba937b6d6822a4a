package planner

import "time"

// Weekdays lists the canonical day keys of a weekly plan in display order.
var Weekdays = []string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// Meal is a single planned dish.
type Meal struct {
	Dish             string `json:"dish"`
	StandardQuantity string `json:"standard_quantity"`
	Calories         int    `json:"calories"`
}

// WeeklyPlan maps a weekday name to its ordered meals.
type WeeklyPlan map[string][]Meal

// Days returns the weekdays present in the plan, Monday first.
func (p WeeklyPlan) Days() []string {
	days := make([]string, 0, len(p))
	for _, d := range Weekdays {
		if _, ok := p[d]; ok {
			days = append(days, d)
		}
	}
	return days
}

// IsWeekday reports whether name is one of the canonical weekday keys.
func IsWeekday(name string) bool {
	for _, d := range Weekdays {
		if d == name {
			return true
		}
	}
	return false
}

// WeekdayOf returns the canonical weekday key for t.
func WeekdayOf(t time.Time) string {
	return t.Weekday().String()
}
