package planner

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrInvalidProfile is returned when a profile field is outside its allowed values.
var ErrInvalidProfile = errors.New("invalid profile")

// Allowed profile options.
var (
	Goals      = []string{"Lose", "Maintain", "Gain"}
	Genders    = []string{"Male", "Female"}
	Diets      = []string{"Veg", "Non-Veg", "Both"}
	Activities = []string{"Low", "Medium", "High"}
)

// Profile holds the user attributes a plan is generated for.
type Profile struct {
	Goal     string
	Age      int
	Height   string
	Weight   float64
	Gender   string
	Diet     string
	Activity string
}

// Validate checks every field against the allowed options and ranges.
func (p Profile) Validate() error {
	switch {
	case !slices.Contains(Goals, p.Goal):
		return fmt.Errorf("%w: goal %q", ErrInvalidProfile, p.Goal)
	case p.Age < 10 || p.Age > 80:
		return fmt.Errorf("%w: age %d must be between 10 and 80", ErrInvalidProfile, p.Age)
	case strings.TrimSpace(p.Height) == "":
		return fmt.Errorf("%w: height is required", ErrInvalidProfile)
	case math.IsNaN(p.Weight) || p.Weight < 30 || p.Weight > 200:
		return fmt.Errorf("%w: weight %.1f must be between 30 and 200", ErrInvalidProfile, p.Weight)
	case !slices.Contains(Genders, p.Gender):
		return fmt.Errorf("%w: gender %q", ErrInvalidProfile, p.Gender)
	case !slices.Contains(Diets, p.Diet):
		return fmt.Errorf("%w: diet %q", ErrInvalidProfile, p.Diet)
	case !slices.Contains(Activities, p.Activity):
		return fmt.Errorf("%w: activity %q", ErrInvalidProfile, p.Activity)
	}
	return nil
}
