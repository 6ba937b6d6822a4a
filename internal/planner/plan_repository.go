package planner

import (
	"context"
	"fmt"

	"smart-diet-planner/internal/storage"
)

// plansDocument maps user id to that user's current weekly plan.
type plansDocument map[string]WeeklyPlan

// PlanRepository persists one weekly plan per user in the plans document.
type PlanRepository struct {
	docs *storage.DocumentStore
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(docs *storage.DocumentStore) *PlanRepository {
	return &PlanRepository{docs: docs}
}

// Save replaces the stored plan for userID.
func (r *PlanRepository) Save(ctx context.Context, userID string, plan WeeklyPlan) error {
	err := storage.Update(r.docs, storage.PlansDocument, func(doc plansDocument) (plansDocument, error) {
		if doc == nil {
			doc = plansDocument{}
		}
		doc[userID] = plan
		return doc, nil
	})
	if err != nil {
		return fmt.Errorf("failed to save plan for user %s: %w", userID, err)
	}
	return nil
}

// Get returns the stored plan for userID, or nil when there is none.
func (r *PlanRepository) Get(ctx context.Context, userID string) (WeeklyPlan, error) {
	var doc plansDocument
	if err := r.docs.Load(storage.PlansDocument, &doc); err != nil {
		return nil, fmt.Errorf("failed to load plan for user %s: %w", userID, err)
	}
	plan := doc[userID]
	if len(plan) == 0 {
		return nil, nil
	}
	return plan, nil
}
