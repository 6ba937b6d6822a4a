package history

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"smart-diet-planner/internal/storage"
	"smart-diet-planner/internal/tracker"
)

func TestBuildChart(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		c := BuildChart(nil)
		if c.Len() != 0 || len(c.Planned) != 0 || len(c.Consumed) != 0 {
			t.Errorf("Expected empty chart, got %+v", c)
		}
	})

	t.Run("KeepsLastSeven", func(t *testing.T) {
		var records []tracker.Record
		for d := 1; d <= 10; d++ {
			records = append(records, tracker.Record{
				Date:     fmt.Sprintf("2024-01-%02d", d),
				Planned:  1000 + d,
				Consumed: d,
			})
		}

		c := BuildChart(records)
		if c.Len() != ChartWindow || len(c.Planned) != ChartWindow || len(c.Consumed) != ChartWindow {
			t.Fatalf("Expected %d points per series, got %+v", ChartWindow, c)
		}
		if c.Dates[0] != "2024-01-04" || c.Dates[6] != "2024-01-10" {
			t.Errorf("Expected 2024-01-04..2024-01-10, got %v", c.Dates)
		}
		// 2024-01-04 is a Thursday.
		wantLabels := []string{"Thu", "Fri", "Sat", "Sun", "Mon", "Tue", "Wed"}
		if !reflect.DeepEqual(c.Labels, wantLabels) {
			t.Errorf("Expected labels %v, got %v", wantLabels, c.Labels)
		}
		if c.Planned[6] != 1010 || c.Consumed[0] != 4 {
			t.Errorf("Series misaligned: %+v", c)
		}
	})

	t.Run("NoGapFilling", func(t *testing.T) {
		c := BuildChart([]tracker.Record{
			{Date: "2024-01-01", Planned: 1, Consumed: 1},
			{Date: "2024-01-05", Planned: 2, Consumed: 2},
		})
		if c.Len() != 2 {
			t.Errorf("Expected 2 points, got %d", c.Len())
		}
	})
}

func TestServiceChart(t *testing.T) {
	ctx := context.Background()
	docs, err := storage.NewDocumentStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create document store: %v", err)
	}
	repo := tracker.NewSummaryRepository(docs)
	svc := NewService(repo)

	for _, rec := range []tracker.Record{
		{Date: "2024-01-02", Day: "Tuesday", Planned: 1800, Consumed: 1500},
		{Date: "2024-01-01", Day: "Monday", Planned: 1700, Consumed: 1650},
	} {
		if err := repo.Save(ctx, "a@x.com", rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	c, err := svc.Chart(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("Chart failed: %v", err)
	}
	if !reflect.DeepEqual(c.Labels, []string{"Mon", "Tue"}) {
		t.Errorf("Unexpected labels %v", c.Labels)
	}
	if !reflect.DeepEqual(c.Consumed, []int{1650, 1500}) {
		t.Errorf("Unexpected consumed series %v", c.Consumed)
	}
}
