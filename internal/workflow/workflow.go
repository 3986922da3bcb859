package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"boletodesk/internal/backend"
	"boletodesk/internal/grouping"
	"boletodesk/internal/logging"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/session"
	"boletodesk/internal/stage"
)

// Backend is the slice of the backend client a workflow drives.
type Backend interface {
	CreateOperation(ctx context.Context, fidcID, label string) (*records.Operation, error)
	UpdateOperation(ctx context.Context, id string, patch backend.OperationPatch) (*records.Operation, error)
	GetOperation(ctx context.Context, id string) (*records.Snapshot, error)
	UploadCollection(ctx context.Context, id string, paths []string) (*records.CollectionUpload, error)
	UploadFiscal(ctx context.Context, id string, paths []string) (*records.FiscalUpload, error)
	UpdateNoteEmails(ctx context.Context, id, noteID string, emails []string) (*records.FiscalNote, error)
	Process(ctx context.Context, id string) (*records.ProcessingResult, error)
	Reprocess(ctx context.Context, id string) (*records.ProcessingResult, error)
	Finalize(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	SendPreview(ctx context.Context, id string) (*records.SendPreview, error)
	Send(ctx context.Context, id string, mode records.SendMode) (*records.SendResult, error)
	SendRecords(ctx context.Context, id string) ([]records.SendRecord, error)
	MarkSent(ctx context.Context, id, recordID string) (*records.SendRecord, error)
	VerifySendStatus(ctx context.Context, id string) (*records.VerifyResult, error)
	DocumentBinary(ctx context.Context, id string, kind backend.DocumentKind, docID string) (*backend.Binary, error)
}

// Terminal records which terminal action, if any, has succeeded.
type Terminal string

const (
	TerminalNone      Terminal = ""
	TerminalFinalized Terminal = "finalized"
	TerminalCancelled Terminal = "cancelled"
	TerminalDeleted   Terminal = "deleted"
)

// State is a copy of the workflow's client-side view of its operation.
type State struct {
	SessionID   string                       `json:"session_id"`
	OperationID string                       `json:"operation_id,omitempty"`
	Label       string                       `json:"label,omitempty"`
	Fidc        records.Fidc                 `json:"fidc"`
	Status      records.OperationStatus      `json:"status,omitempty"`
	Stage       stage.Stage                  `json:"stage"`
	Documents   []records.CollectionDocument `json:"documents"`
	Notes       []records.FiscalNote         `json:"notes"`
	Result      *records.ProcessingResult    `json:"result,omitempty"`
	Preview     *records.SendPreview         `json:"preview,omitempty"`
	Sends       []records.SendRecord         `json:"sends"`
	Terminal    Terminal                     `json:"terminal,omitempty"`
}

// Facts returns the observations stage reachability depends on.
func (s State) Facts() stage.Facts {
	return stage.Facts{
		HasOperation: s.OperationID != "",
		HasDocuments: len(s.Documents) > 0,
		HasResult:    s.Result != nil,
	}
}

func (s State) clone() State {
	s.Documents = slices.Clone(s.Documents)
	s.Notes = slices.Clone(s.Notes)
	s.Sends = slices.Clone(s.Sends)
	return s
}

// Hooks are notified of workflow events. Both run outside the workflow lock.
type Hooks struct {
	// Changed receives the new state after every committed change.
	Changed func(State)
	// Closed runs after Cancel or Delete succeeds; the owner should close
	// the session.
	Closed func()
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithHooks installs event hooks.
func WithHooks(h Hooks) Option {
	return func(w *Workflow) {
		w.hooks = h
	}
}

// WithPreviewCache sets the document binary cache.
func WithPreviewCache(cache *grouping.Cache) Option {
	return func(w *Workflow) {
		if cache != nil {
			w.cache = cache
		}
	}
}

type savedFields struct {
	fidcID string
	label  string
}

// Workflow is the state machine of one session's operation.
type Workflow struct {
	backend Backend
	logger  *slog.Logger
	hooks   Hooks
	cache   *grouping.Cache

	mu       sync.Mutex
	state    State
	saved    savedFields
	resume   stage.Stage
	detached bool

	background errgroup.Group
}

// New creates the workflow of sess. A bound session starts from its stored
// label, fund and stage; call Restore to load the rest from the backend.
func New(sess session.Session, b Backend, opts ...Option) *Workflow {
	w := &Workflow{
		backend: b,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cache == nil {
		w.cache = grouping.NewCache("", w.logger)
	}
	w.logger = logging.NewComponentLogger(w.logger, "workflow").With(logging.String(logging.FieldSessionID, sess.ID))
	w.state = State{
		SessionID:   sess.ID,
		OperationID: sess.OperationID,
		Label:       sess.OperationLabel,
		Fidc:        records.Fidc{ID: sess.Fidc.ID, Name: sess.Fidc.Name, Color: sess.Fidc.Color},
		Stage:       stage.Configure,
	}
	if sess.Bound() {
		w.state.Stage = stage.Upload
		w.resume = sess.Stage
		w.saved = savedFields{fidcID: sess.Fidc.ID, label: sess.OperationLabel}
	}
	return w
}

// State returns a copy of the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// MaxStage returns the furthest stage the operator may navigate to.
func (w *Workflow) MaxStage() stage.Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return stage.Max(w.state.Facts())
}

// Navigate moves to target when it is unlocked.
func (w *Workflow) Navigate(target stage.Stage) error {
	w.mu.Lock()
	if w.detached {
		w.mu.Unlock()
		return w.closedError("navigate")
	}
	limit := stage.Max(w.state.Facts())
	if !target.Valid() || target > limit {
		current := w.state.Stage
		w.mu.Unlock()
		return services.Wrap(services.ErrStageLocked, current.String(), "navigate",
			fmt.Sprintf("%s is locked (furthest reachable: %s)", target, limit), nil)
	}
	if w.state.OperationID != "" && target == stage.Configure {
		target = stage.Upload
	}
	w.state.Stage = target
	snap := w.state.clone()
	w.mu.Unlock()
	w.notify(snap)
	return nil
}

// Detach marks the owning session closed. Responses to calls still in
// flight are discarded.
func (w *Workflow) Detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detached = true
}

// PreviewCache returns the document binary cache.
func (w *Workflow) PreviewCache() *grouping.Cache {
	return w.cache
}

// access classifies what an operation needs from a terminated workflow.
type access int

const (
	accessRead access = iota
	accessSend
	accessMutate
)

// begin checks that the workflow may run an operation and returns the
// operation id and current stage.
func (w *Workflow) begin(operation string, a access, needOperation bool) (string, stage.Stage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	current := w.state.Stage
	if w.detached {
		return "", current, w.closedError(operation)
	}
	switch terminal := w.state.Terminal; {
	case terminal == TerminalNone:
	case terminal == TerminalFinalized && a != accessMutate:
	case terminal != TerminalFinalized && a == accessRead:
	default:
		return "", current, services.Wrap(services.ErrTerminated, current.String(), operation,
			fmt.Sprintf("operation %s", terminal), nil)
	}
	if needOperation && w.state.OperationID == "" {
		return "", current, services.Wrap(services.ErrStageLocked, current.String(), operation, "no operation yet", nil)
	}
	return w.state.OperationID, current, nil
}

// commit applies a change after a successful backend call, unless the
// session was closed meanwhile.
func (w *Workflow) commit(operation string, apply func(*State)) error {
	w.mu.Lock()
	if w.detached {
		w.mu.Unlock()
		w.logger.Debug("discarding response for closed session", logging.String("operation", operation))
		return w.closedError(operation)
	}
	apply(&w.state)
	snap := w.state.clone()
	w.mu.Unlock()
	w.notify(snap)
	return nil
}

func (w *Workflow) notify(snap State) {
	if w.hooks.Changed != nil {
		w.hooks.Changed(snap)
	}
}

func (w *Workflow) closedError(operation string) error {
	return services.Wrap(services.ErrSessionClosed, "", operation, "session closed", nil)
}

func (w *Workflow) failure(current stage.Stage, operation string, err error) error {
	w.logFailure(current, operation, err)
	return services.Wrap(services.ErrTransient, current.String(), operation, "", err)
}

func (w *Workflow) logFailure(current stage.Stage, operation string, err error) {
	w.logger.Warn("backend call failed",
		logging.String(logging.FieldEventType, "backend_failure"),
		logging.String(logging.FieldStage, current.String()),
		logging.String("operation", operation),
		logging.Error(err))
}

func (w *Workflow) opLogger(operationID string) *slog.Logger {
	return w.logger.With(logging.String(logging.FieldOperationID, operationID))
}
