package planner

import (
	"encoding/json"
	"errors"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrInvalidPlan is returned when no weekday survives normalization.
var ErrInvalidPlan = errors.New("invalid AI diet output")

const defaultQuantity = "1 serving"

// Field aliases, highest priority first.
var (
	dishAliases     = []string{"dish", "meal", "name", "dish_name", "meal_name", "food", "item", "title"}
	quantityAliases = []string{"standard_quantity", "quantity", "portion", "serving", "serving_size", "qty", "amount"}
	calorieAliases  = []string{"calories", "kcal", "calorie", "cal", "energy", "calories_kcal"}
)

// DiscardReason explains why a meal entry was dropped.
type DiscardReason string

const (
	DiscardNotObject           DiscardReason = "not_object"
	DiscardMissingDish         DiscardReason = "missing_dish"
	DiscardMissingCalories     DiscardReason = "missing_calories"
	DiscardBadCalories         DiscardReason = "bad_calories"
	DiscardNonPositiveCalories DiscardReason = "non_positive_calories"
)

// NormalizeReport summarizes what normalization kept and dropped.
type NormalizeReport struct {
	Unwrapped bool
	DaysKept  int
	MealsKept int
	Discarded map[DiscardReason]int
}

var dishPolicy = bluemonday.StrictPolicy()

// Normalize validates a decoded provider response and converts it into a WeeklyPlan.
func Normalize(raw any) (WeeklyPlan, NormalizeReport, error) {
	report := NormalizeReport{Discarded: map[DiscardReason]int{}}

	root, ok := raw.(map[string]any)
	if !ok {
		return nil, report, ErrInvalidPlan
	}
	if len(root) == 1 {
		for _, v := range root {
			if inner, ok := v.(map[string]any); ok {
				root = inner
				report.Unwrapped = true
			}
		}
	}

	plan := WeeklyPlan{}
	for _, day := range Weekdays {
		entries, ok := root[day].([]any)
		if !ok {
			continue
		}

		var meals []Meal
		for _, entry := range entries {
			meal, reason := parseMeal(entry)
			if reason != "" {
				report.Discarded[reason]++
				continue
			}
			meals = append(meals, meal)
		}
		if len(meals) == 0 {
			continue
		}
		plan[day] = meals
		report.DaysKept++
		report.MealsKept += len(meals)
	}

	if len(plan) == 0 {
		return nil, report, ErrInvalidPlan
	}
	return plan, report, nil
}

func parseMeal(entry any) (Meal, DiscardReason) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return Meal{}, DiscardNotObject
	}

	dish := lookup(obj, dishAliases)
	name := ""
	switch dish.kind {
	case kindString:
		name = strings.TrimSpace(html.UnescapeString(dishPolicy.Sanitize(dish.str)))
	case kindNumber:
		if dish.num != 0 {
			name = dish.str
		}
	}
	if name == "" {
		return Meal{}, DiscardMissingDish
	}

	calories, reason := coerceCalories(lookup(obj, calorieAliases))
	if reason != "" {
		return Meal{}, reason
	}
	if calories <= 0 {
		return Meal{}, DiscardNonPositiveCalories
	}

	return Meal{
		Dish:             name,
		StandardQuantity: quantityText(lookup(obj, quantityAliases)),
		Calories:         calories,
	}, ""
}

type valueKind int

const (
	kindMissing valueKind = iota
	kindString
	kindNumber
	kindOther
)

// fieldValue is a decoded JSON scalar tagged with its kind.
type fieldValue struct {
	kind valueKind
	str  string
	num  float64
}

// lookup returns the first alias holding a non-empty value. Empty strings,
// zero, false, null and empty containers count as empty. A present zero is
// returned only when no alias has a usable value.
func lookup(obj map[string]any, aliases []string) fieldValue {
	var zero fieldValue
	for _, key := range aliases {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if fv := classify(v); fv.kind != kindMissing {
			return fv
		}
		if isZeroNumber(v) {
			zero = fieldValue{kind: kindNumber, str: "0"}
		}
	}
	return zero
}

func isZeroNumber(v any) bool {
	switch x := v.(type) {
	case float64:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	}
	return false
}

func classify(v any) fieldValue {
	switch x := v.(type) {
	case nil:
		return fieldValue{}
	case string:
		if x == "" {
			return fieldValue{}
		}
		return fieldValue{kind: kindString, str: x}
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return fieldValue{kind: kindString, str: x.String()}
		}
		if f == 0 {
			return fieldValue{}
		}
		return fieldValue{kind: kindNumber, num: f, str: x.String()}
	case float64:
		if x == 0 {
			return fieldValue{}
		}
		return fieldValue{kind: kindNumber, num: x, str: strconv.FormatFloat(x, 'f', -1, 64)}
	case bool:
		if !x {
			return fieldValue{}
		}
		return fieldValue{kind: kindOther}
	case []any:
		if len(x) == 0 {
			return fieldValue{}
		}
		return fieldValue{kind: kindOther}
	case map[string]any:
		if len(x) == 0 {
			return fieldValue{}
		}
		return fieldValue{kind: kindOther}
	default:
		return fieldValue{kind: kindOther}
	}
}

var leadingNumber = regexp.MustCompile(`^[+-]?\d+(\.\d+)?`)

func coerceCalories(v fieldValue) (int, DiscardReason) {
	switch v.kind {
	case kindMissing:
		return 0, DiscardMissingCalories
	case kindNumber:
		if math.Abs(v.num) > math.MaxInt32 {
			return 0, DiscardBadCalories
		}
		return int(math.Trunc(v.num)), ""
	case kindString:
		s := strings.ReplaceAll(strings.TrimSpace(v.str), ",", "")
		num := leadingNumber.FindString(s)
		if num == "" || strings.ContainsAny(s[len(num):], "0123456789") {
			return 0, DiscardBadCalories
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil || math.Abs(f) > math.MaxInt32 {
			return 0, DiscardBadCalories
		}
		return int(math.Trunc(f)), ""
	default:
		return 0, DiscardBadCalories
	}
}

func quantityText(v fieldValue) string {
	switch v.kind {
	case kindString:
		if s := strings.TrimSpace(v.str); s != "" {
			return s
		}
	case kindNumber:
		if v.num != 0 {
			return v.str
		}
	}
	return defaultQuantity
}
