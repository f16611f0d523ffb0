package intake

import (
	"context"
	"fmt"
	"log/slog"
)

// Line is one stock-intake line as submitted to the ledger
type Line struct {
	ItemID    int     `json:"item_id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// LineResult is the ledger's per-line verdict
type LineResult struct {
	ItemID   int    `json:"item_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Ledger is the stock-ledger collaborator. RecordIntake records a batch as
// one atomic intake operation; a returned error means the ledger could not be
// reached and nothing was recorded.
type Ledger interface {
	RecordIntake(ctx context.Context, lines []Line) ([]LineResult, error)
}

// Gateway submits finalized batches to the stock ledger. It is the only
// component in the flow with an externally visible side effect.
type Gateway struct {
	ledger Ledger
}

// NewGateway creates a new Gateway
func NewGateway(ledger Ledger) *Gateway {
	return &Gateway{ledger: ledger}
}

// Commit submits the finalized batch as one intake transaction and reports
// per-item success or failure. The batch must be submittable; passing a
// non-submittable batch is a programming error.
//
// On total ledger failure every item is marked rejected and the error is
// returned alongside the result so the caller can surface it as retryable.
// The result always has exactly one entry per submitted item.
func (g *Gateway) Commit(ctx context.Context, batch *Batch) (CommitResult, error) {
	if !batch.Submittable() {
		return nil, &PreconditionError{Msg: "commit requires a finalized, submittable batch"}
	}

	lines := make([]Line, 0, len(batch.Items))
	for _, item := range batch.Items {
		lines = append(lines, Line{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	result := make(CommitResult, len(batch.Items))

	lineResults, err := g.ledger.RecordIntake(ctx, lines)
	if err != nil {
		slog.Error("Ledger intake failed", "items", len(lines), "error", err)
		for _, item := range batch.Items {
			result[item.ID] = ItemResult{Accepted: false, Reason: "submission failed"}
		}
		return result, fmt.Errorf("recording intake: %w", err)
	}

	for _, lr := range lineResults {
		result[lr.ItemID] = ItemResult{Accepted: lr.Accepted, Reason: lr.Reason}
	}

	// The ledger must answer for every line; a missing verdict is treated as
	// a rejection rather than silently dropped.
	for _, item := range batch.Items {
		if _, ok := result[item.ID]; !ok {
			slog.Warn("Ledger returned no verdict for item", "item_id", item.ID)
			result[item.ID] = ItemResult{Accepted: false, Reason: "no verdict from ledger"}
		}
	}

	return result, nil
}
