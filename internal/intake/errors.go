package intake

import (
	"fmt"
	"sort"
	"strings"
)

// NotFoundError reports an operation against an item id that is not in the
// current batch.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item %d not found in batch", e.ID)
}

// ItemErrors lists one invalid item's field errors
type ItemErrors struct {
	ID     int               `json:"id"`
	Fields map[string]string `json:"fields"`
}

// ValidationError reports a finalize attempt on a non-submittable batch. It
// names every invalid item; an empty Items slice means the batch was empty.
type ValidationError struct {
	Items []ItemErrors
}

func (e *ValidationError) Error() string {
	if len(e.Items) == 0 {
		return "batch is empty"
	}
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		fields := make([]string, 0, len(item.Fields))
		for f := range item.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		parts = append(parts, fmt.Sprintf("item %d (%s)", item.ID, strings.Join(fields, ", ")))
	}
	return "batch has invalid items: " + strings.Join(parts, "; ")
}

// PreconditionError reports a programming-level contract violation, such as
// committing a batch that was never finalized.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return e.Msg
}

// StateError reports an operation that is not allowed in the controller's
// current phase.
type StateError struct {
	Phase Phase
	Op    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.Phase)
}
