package intake

import (
	"strings"
	"time"
)

// Origin records how an item entered the batch
type Origin string

const (
	OriginExtracted Origin = "extracted"
	OriginManual    Origin = "manual"
)

// SourceType records what kind of input produced the batch
type SourceType string

const (
	SourceImage SourceType = "image"
	SourceText  SourceType = "text"
)

// Validation holds the per-item validation outcome. Errors maps a field name
// ("name", "quantity", "unit_price", "ledger") to a human-readable message.
type Validation struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Item is one candidate stock-intake line. The ID is the item's position at
// normalization time and stays stable for the whole session, even across
// removals.
type Item struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Quantity   float64    `json:"quantity"`
	UnitPrice  float64    `json:"unit_price"`
	Validation Validation `json:"validation"`
	Origin     Origin     `json:"origin"`
}

// Batch is the ordered set of candidate items under review
type Batch struct {
	Items       []Item     `json:"items"`
	SourceType  SourceType `json:"source_type"`
	CreatedAt   time.Time  `json:"created_at"`
	ReceiptPath string     `json:"receipt_path,omitempty"`
}

// Submittable reports whether the batch may be committed: non-empty and
// every item valid.
func (b *Batch) Submittable() bool {
	if b == nil || len(b.Items) == 0 {
		return false
	}
	for _, item := range b.Items {
		if !item.Validation.Valid {
			return false
		}
	}
	return true
}

// ItemResult is the ledger's verdict for one submitted item
type ItemResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// CommitResult maps every submitted item's id to its verdict. It always has
// exactly one entry per item in the submitted batch and is never mutated
// after creation.
type CommitResult map[int]ItemResult

// AllAccepted reports whether every item in the result was accepted
func (r CommitResult) AllAccepted() bool {
	for _, res := range r {
		if !res.Accepted {
			return false
		}
	}
	return len(r) > 0
}

// validateItem applies the item invariants as a pure function of the fields:
// non-empty name after trimming, quantity > 0, unit price >= 0.
func validateItem(name string, quantity, unitPrice float64) Validation {
	errs := make(map[string]string)
	if strings.TrimSpace(name) == "" {
		errs["name"] = "name is required"
	}
	if quantity <= 0 {
		errs["quantity"] = "quantity must be greater than zero"
	}
	if unitPrice < 0 {
		errs["unit_price"] = "unit price cannot be negative"
	}
	if len(errs) == 0 {
		return Validation{Valid: true}
	}
	return Validation{Valid: false, Errors: errs}
}
