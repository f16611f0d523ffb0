package intake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tokokita/stock-intake/internal/extraction"
)

// Phase is the controller's externally observable state
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseExtracting Phase = "extracting"
	PhaseReviewing  Phase = "reviewing"
	PhaseCommitting Phase = "committing"
	PhaseDone       Phase = "done"
)

// Snapshot is the state exposed to the presentation layer
type Snapshot struct {
	Phase       Phase  `json:"phase"`
	Batch       *Batch `json:"batch,omitempty"`
	Submittable bool   `json:"submittable"`
	LastError   string `json:"last_error,omitempty"`
}

// IDGenerator generates unique IDs for archived receipt files
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// Controller drives the ingestion flow: Idle -> Extracting -> Reviewing ->
// Committing -> Done, returning to the pre-failure phase on any error so the
// operator never loses captured work.
//
// Exactly one extraction or commit call is in flight at a time; mutating
// requests in the wrong phase are rejected, not queued. A late extraction
// result arriving after the operator cancelled is discarded rather than
// resurrecting a stale batch.
type Controller struct {
	mu          sync.Mutex
	phase       Phase
	session     *Session
	lastError   string
	generation  uint64
	extractor   extraction.Extractor
	gateway     *Gateway
	storage     Storage
	idGenerator IDGenerator
}

// NewController creates a Controller with default dependencies
func NewController(extractor extraction.Extractor, gateway *Gateway, storage Storage) *Controller {
	return &Controller{
		phase:       PhaseIdle,
		session:     NewSession(),
		extractor:   extractor,
		gateway:     gateway,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
	}
}

// NewControllerWithDeps creates a Controller with custom dependencies for testing
func NewControllerWithDeps(extractor extraction.Extractor, gateway *Gateway, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Controller {
	return &Controller{
		phase:       PhaseIdle,
		session:     NewSessionWithTimeSource(timeSrc),
		extractor:   extractor,
		gateway:     gateway,
		storage:     storage,
		idGenerator: idGen,
	}
}

// SubmitImage runs one extraction attempt over an uploaded receipt image and
// loads the normalized candidates for review. Allowed only when no batch is
// open; an open batch must be cancelled explicitly first, there is no merge.
func (c *Controller) SubmitImage(filename string, data []byte, contentType string) error {
	gen, err := c.beginExtraction()
	if err != nil {
		return err
	}

	result := c.extractor.ExtractFromImage(data, contentType)

	archive := func() string {
		name := fmt.Sprintf("%s_%s", c.idGenerator.Generate(), sanitizeFilename(filename))
		path, err := c.storage.Save(name, data)
		if err != nil {
			// The archive is an audit copy; losing it must not lose the
			// operator's extraction.
			slog.Warn("Failed to archive receipt upload", "filename", filename, "error", err)
			return ""
		}
		return path
	}

	return c.finishExtraction(gen, result, SourceImage, archive)
}

// SubmitText runs one extraction attempt over pasted receipt text
func (c *Controller) SubmitText(text string) error {
	gen, err := c.beginExtraction()
	if err != nil {
		return err
	}

	result := c.extractor.ExtractFromText(text)

	return c.finishExtraction(gen, result, SourceText, nil)
}

func (c *Controller) beginExtraction() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseIdle, PhaseDone:
		c.phase = PhaseExtracting
		return c.generation, nil
	case PhaseExtracting:
		return 0, &StateError{Phase: c.phase, Op: "start extraction"}
	case PhaseReviewing:
		return 0, &StateError{Phase: c.phase, Op: "start extraction; cancel the open batch first"}
	default:
		return 0, &StateError{Phase: c.phase, Op: "start extraction"}
	}
}

func (c *Controller) finishExtraction(gen uint64, result *extraction.Result, source SourceType, archive func() string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The operator cancelled while the call was in flight; the result is
	// stale and must not resurrect a discarded batch.
	if c.generation != gen {
		slog.Info("Discarding stale extraction result", "source", source)
		return nil
	}

	if !result.OK {
		c.phase = PhaseIdle
		c.lastError = result.ErrorMessage
		slog.Error("Extraction failed", "source", source, "error", result.ErrorMessage)
		return fmt.Errorf("extraction failed: %s", result.ErrorMessage)
	}

	items := NormalizeItems(result.Items)
	if len(items) == 0 {
		c.phase = PhaseIdle
		c.lastError = "no line items found on receipt"
		return fmt.Errorf("no line items found on receipt")
	}

	var receiptPath string
	if archive != nil {
		receiptPath = archive()
	}

	c.session.LoadItems(items, source, receiptPath)
	c.phase = PhaseReviewing
	c.lastError = ""
	slog.Info("Extraction complete", "source", source, "items", len(items))
	return nil
}

// EditItem applies a patch to one item in the open batch
func (c *Controller) EditItem(id int, patch ItemPatch) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseReviewing {
		return Item{}, &StateError{Phase: c.phase, Op: "edit item"}
	}
	return c.session.UpdateItem(id, patch)
}

// RemoveItem removes one item from the open batch
func (c *Controller) RemoveItem(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseReviewing {
		return &StateError{Phase: c.phase, Op: "remove item"}
	}
	return c.session.RemoveItem(id)
}

// AddItem appends a manually entered item. From Idle this opens a fresh
// manual batch and moves to Reviewing.
func (c *Controller) AddItem(name string, quantity, unitPrice float64) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseReviewing, PhaseIdle, PhaseDone:
	default:
		return Item{}, &StateError{Phase: c.phase, Op: "add item"}
	}

	item := c.session.AddManualItem(name, quantity, unitPrice)
	c.phase = PhaseReviewing
	return item, nil
}

// ConfirmSubmit finalizes the open batch and commits it to the stock ledger.
// On total ledger failure the batch is preserved and the phase returns to
// Reviewing; on partial failure accepted items are closed out and rejected
// items remain open for correction.
func (c *Controller) ConfirmSubmit(ctx context.Context) (CommitResult, error) {
	c.mu.Lock()

	if c.phase != PhaseReviewing {
		c.mu.Unlock()
		return nil, &StateError{Phase: c.phase, Op: "submit"}
	}

	finalized, err := c.session.Finalize()
	if err != nil {
		c.lastError = err.Error()
		c.mu.Unlock()
		return nil, err
	}

	c.phase = PhaseCommitting
	c.mu.Unlock()

	result, commitErr := c.gateway.Commit(ctx, finalized)

	c.mu.Lock()
	defer c.mu.Unlock()

	if commitErr != nil {
		c.phase = PhaseReviewing
		c.lastError = "stock ledger unavailable, batch preserved"
		return result, commitErr
	}

	c.session.ApplyCommitResult(result)

	if result.AllAccepted() {
		c.phase = PhaseDone
		c.lastError = ""
		slog.Info("Intake batch committed", "items", len(result))
		return result, nil
	}

	rejected := 0
	for _, res := range result {
		if !res.Accepted {
			rejected++
		}
	}
	c.phase = PhaseReviewing
	c.lastError = fmt.Sprintf("%d item(s) rejected by stock ledger", rejected)
	slog.Warn("Intake batch partially rejected", "rejected", rejected, "total", len(result))
	return result, nil
}

// Cancel discards the open batch. Cancelling during an in-flight extraction
// does not abort the network call; its result is discarded on arrival. A
// commit in progress cannot be cancelled.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseCommitting {
		return &StateError{Phase: c.phase, Op: "cancel"}
	}

	c.generation++
	c.session.Cancel()
	c.phase = PhaseIdle
	c.lastError = ""
	return nil
}

// Snapshot returns the current observable state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Phase:       c.phase,
		Batch:       c.session.Snapshot(),
		Submittable: c.session.Submittable(),
		LastError:   c.lastError,
	}
}
