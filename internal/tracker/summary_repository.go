package tracker

import (
	"context"
	"fmt"
	"sort"

	"smart-diet-planner/internal/storage"
)

// Record is the saved summary of one calendar date.
type Record struct {
	Date     string `json:"-"`
	Day      string `json:"day"`
	Planned  int    `json:"planned"`
	Consumed int    `json:"consumed"`
}

// historyDocument maps user id to date to record.
type historyDocument map[string]map[string]Record

// SummaryRepository persists daily summary records in the history document.
type SummaryRepository struct {
	docs *storage.DocumentStore
}

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository(docs *storage.DocumentStore) *SummaryRepository {
	return &SummaryRepository{docs: docs}
}

// Save writes rec under (userID, rec.Date), overwriting any existing record.
func (r *SummaryRepository) Save(ctx context.Context, userID string, rec Record) error {
	err := storage.Update(r.docs, storage.HistoryDocument, func(doc historyDocument) (historyDocument, error) {
		if doc == nil {
			doc = historyDocument{}
		}
		if doc[userID] == nil {
			doc[userID] = map[string]Record{}
		}
		doc[userID][rec.Date] = rec
		return doc, nil
	})
	if err != nil {
		return fmt.Errorf("failed to save summary for user %s on %s: %w", userID, rec.Date, err)
	}
	return nil
}

// List returns all records of userID in ascending date order.
func (r *SummaryRepository) List(ctx context.Context, userID string) ([]Record, error) {
	var doc historyDocument
	if err := r.docs.Load(storage.HistoryDocument, &doc); err != nil {
		return nil, fmt.Errorf("failed to load history for user %s: %w", userID, err)
	}

	records := make([]Record, 0, len(doc[userID]))
	for date, rec := range doc[userID] {
		rec.Date = date
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})
	return records, nil
}
