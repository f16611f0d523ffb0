package intake

import (
	"sort"
	"strings"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ItemPatch is a partial update for one candidate item. Nil fields are left
// unchanged.
type ItemPatch struct {
	Name      *string  `json:"name,omitempty"`
	Quantity  *float64 `json:"quantity,omitempty"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

// Session holds the in-progress review batch. It is empty until candidates
// are loaded, tracks per-item validation as the operator edits, and produces
// a finalized batch only when every item is valid.
//
// IDs are never renumbered after a removal and never reused within a
// session, so an edit in flight in the presentation layer cannot silently
// re-target a different row.
type Session struct {
	batch      *Batch
	nextID     int
	timeSource TimeSource
}

// NewSession creates an empty Session
func NewSession() *Session {
	return &Session{timeSource: &defaultTimeSource{}}
}

// NewSessionWithTimeSource creates a Session with a custom time source for testing
func NewSessionWithTimeSource(ts TimeSource) *Session {
	return &Session{timeSource: ts}
}

// Empty reports whether the session has no active batch
func (s *Session) Empty() bool {
	return s.batch == nil
}

// LoadItems replaces the batch with the given candidates. Loading an empty
// slice leaves the session empty.
func (s *Session) LoadItems(items []Item, source SourceType, receiptPath string) {
	if len(items) == 0 {
		s.batch = nil
		s.nextID = 0
		return
	}
	copied := make([]Item, len(items))
	copy(copied, items)
	s.batch = &Batch{
		Items:       copied,
		SourceType:  source,
		CreatedAt:   s.timeSource.Now(),
		ReceiptPath: receiptPath,
	}
	s.nextID = 0
	for _, item := range copied {
		if item.ID >= s.nextID {
			s.nextID = item.ID + 1
		}
	}
}

// UpdateItem applies the patch to the item with the given id and re-validates
// only that item.
func (s *Session) UpdateItem(id int, patch ItemPatch) (Item, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return Item{}, &NotFoundError{ID: id}
	}

	item := &s.batch.Items[idx]
	if patch.Name != nil {
		item.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		item.UnitPrice = *patch.UnitPrice
	}
	item.Validation = validateItem(item.Name, item.Quantity, item.UnitPrice)

	return *item, nil
}

// RemoveItem removes the item with the given id. Remaining ids are not
// renumbered.
func (s *Session) RemoveItem(id int) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return &NotFoundError{ID: id}
	}
	s.batch.Items = append(s.batch.Items[:idx], s.batch.Items[idx+1:]...)
	return nil
}

// AddManualItem appends a new item with a fresh id, validated with the same
// rules as extracted items.
func (s *Session) AddManualItem(name string, quantity, unitPrice float64) Item {
	if s.batch == nil {
		s.batch = &Batch{
			SourceType: SourceText,
			CreatedAt:  s.timeSource.Now(),
		}
	}

	name = strings.TrimSpace(name)
	item := Item{
		ID:         s.nextID,
		Name:       name,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Validation: validateItem(name, quantity, unitPrice),
		Origin:     OriginManual,
	}
	s.nextID++
	s.batch.Items = append(s.batch.Items, item)
	return item
}

// Submittable reports whether the batch is non-empty with every item valid
func (s *Session) Submittable() bool {
	return s.batch.Submittable()
}

// Finalize returns a snapshot of the batch if it is submittable. Otherwise it
// returns a ValidationError naming every invalid item, and the batch is left
// unchanged.
func (s *Session) Finalize() (*Batch, error) {
	if s.batch == nil || len(s.batch.Items) == 0 {
		return nil, &ValidationError{}
	}

	var invalid []ItemErrors
	for _, item := range s.batch.Items {
		if !item.Validation.Valid {
			fields := make(map[string]string, len(item.Validation.Errors))
			for k, v := range item.Validation.Errors {
				fields[k] = v
			}
			invalid = append(invalid, ItemErrors{ID: item.ID, Fields: fields})
		}
	}
	if len(invalid) > 0 {
		sort.Slice(invalid, func(i, j int) bool { return invalid[i].ID < invalid[j].ID })
		return nil, &ValidationError{Items: invalid}
	}

	return s.Snapshot(), nil
}

// ApplyCommitResult reconciles the batch with a commit outcome: accepted
// items leave the batch, rejected items stay with the ledger's reason
// attached so the operator can correct and resubmit them.
func (s *Session) ApplyCommitResult(result CommitResult) {
	if s.batch == nil {
		return
	}
	remaining := s.batch.Items[:0]
	for _, item := range s.batch.Items {
		res, ok := result[item.ID]
		if ok && res.Accepted {
			continue
		}
		if ok && !res.Accepted {
			item.Validation.Valid = false
			if item.Validation.Errors == nil {
				item.Validation.Errors = make(map[string]string)
			}
			item.Validation.Errors["ledger"] = res.Reason
		}
		remaining = append(remaining, item)
	}
	s.batch.Items = remaining
	if len(s.batch.Items) == 0 {
		s.batch = nil
		s.nextID = 0
	}
}

// Cancel discards the batch and returns the session to empty
func (s *Session) Cancel() {
	s.batch = nil
	s.nextID = 0
}

// Snapshot returns a copy of the current batch, or nil if empty
func (s *Session) Snapshot() *Batch {
	if s.batch == nil {
		return nil
	}
	items := make([]Item, len(s.batch.Items))
	copy(items, s.batch.Items)
	return &Batch{
		Items:       items,
		SourceType:  s.batch.SourceType,
		CreatedAt:   s.batch.CreatedAt,
		ReceiptPath: s.batch.ReceiptPath,
	}
}

func (s *Session) indexOf(id int) int {
	if s.batch == nil {
		return -1
	}
	for i, item := range s.batch.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
