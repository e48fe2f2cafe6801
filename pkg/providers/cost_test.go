package providers

import (
	"context"
	"errors"
	"testing"
)

func TestCostModel_Cost(t *testing.T) {
	lookup := func(ctx context.Context, model string) (float64, float64, bool, error) {
		switch model {
		case "gpt-4o":
			return 2.5, 10, true, nil
		case "broken":
			return 0, 0, false, errors.New("db down")
		default:
			return 0, 0, false, nil
		}
	}
	cm := NewCostModel(lookup, nil)
	ctx := context.Background()

	if got := cm.Cost(ctx, "gpt-4o", 1_000_000, 1_000_000); got != 12.5 {
		t.Errorf("expected 12.5, got %v", got)
	}
	if got := cm.Cost(ctx, "gpt-4o", 0, 0); got != 0 {
		t.Errorf("expected 0 for zero usage, got %v", got)
	}
	if got := cm.Cost(ctx, "unknown-model", 100, 100); got != 0 {
		t.Errorf("expected 0 for unconfigured model, got %v", got)
	}
	if got := cm.Cost(ctx, "broken", 100, 100); got != 0 {
		t.Errorf("expected 0 on lookup failure, got %v", got)
	}
}

func TestCostModel_NilLookup(t *testing.T) {
	cm := NewCostModel(nil, nil)
	if got := cm.Cost(context.Background(), "anything", 1000, 1000); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}
