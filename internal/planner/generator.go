package planner

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"smart-diet-planner/internal/llm"
	"smart-diet-planner/internal/shared"
)

//go:embed prompt.md
var planPrompt string

var planTemplate = template.Must(template.New("plan").Parse(planPrompt))

// DefaultMaxAttempts is the number of request-and-extract cycles per generation.
const DefaultMaxAttempts = 2

const agentName = "PlanGenerator"

// ErrGenerationFailed is returned when no attempt produced a parseable plan.
var ErrGenerationFailed = errors.New("diet generation failed")

var errEmptyObject = errors.New("response JSON object is empty")

// GenerateResult is a normalized plan with per-attempt metadata.
type GenerateResult struct {
	Plan   WeeklyPlan
	Report NormalizeReport
	Metas  []shared.AgentMeta
}

// Generator asks a text-completion provider for a weekly diet plan.
type Generator struct {
	textGen     llm.TextGenerator
	maxAttempts int
}

// NewGenerator creates a new Generator.
func NewGenerator(textGen llm.TextGenerator) *Generator {
	return &Generator{
		textGen:     textGen,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Generate builds the prompt for profile, calls the provider and normalizes the
// first parseable response. Provider errors and unparseable output consume an
// attempt; a response that parses but normalizes to nothing is terminal.
func (g *Generator) Generate(ctx context.Context, profile Profile) (GenerateResult, error) {
	var result GenerateResult

	if err := profile.Validate(); err != nil {
		return result, err
	}
	prompt, err := BuildPrompt(profile)
	if err != nil {
		return result, err
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}

		start := time.Now()
		resp, err := g.textGen.GenerateContent(ctx, prompt)
		meta := shared.AgentMeta{
			AgentName: agentName,
			Attempt:   attempt,
			Usage:     resp.Usage,
			Latency:   time.Since(start),
		}
		if err != nil {
			meta.Failed = true
			result.Metas = append(result.Metas, meta)
			lastErr = err
			slog.Warn("plan provider call failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		raw, err := ExtractJSON(resp.Content)
		if err == nil && len(raw) == 0 {
			err = errEmptyObject
		}
		if err != nil {
			meta.Failed = true
			result.Metas = append(result.Metas, meta)
			lastErr = err
			slog.Warn("plan response had no usable JSON",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Metas = append(result.Metas, meta)

		plan, report, err := Normalize(raw)
		result.Report = report
		if err != nil {
			return result, err
		}
		slog.Info("plan normalized",
			slog.Int("attempt", attempt),
			slog.Int("days", report.DaysKept),
			slog.Int("meals", report.MealsKept),
			slog.Any("discarded", report.Discarded),
			slog.Bool("unwrapped", report.Unwrapped),
		)
		result.Plan = plan
		return result, nil
	}

	return result, fmt.Errorf("%w after %d attempts: %v", ErrGenerationFailed, g.maxAttempts, lastErr)
}

// BuildPrompt renders the plan instruction for profile.
func BuildPrompt(profile Profile) (string, error) {
	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, profile); err != nil {
		return "", fmt.Errorf("failed to render plan prompt: %w", err)
	}
	return buf.String(), nil
}
