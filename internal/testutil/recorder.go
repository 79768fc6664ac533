package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/strata/internal/ir"
)

// Event kinds recorded by Recorder.
const (
	EventExec     = "exec"
	EventBegin    = "begin"
	EventCommit   = "commit"
	EventRollback = "rollback"
)

// Event is one backend call observed by a Recorder.
type Event struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	Statement string `json:"statement,omitempty"`

	// InTx is true for statements executed inside a transaction.
	InTx bool `json:"in_tx,omitempty"`

	// Failed is true when the call returned an error.
	Failed bool `json:"failed,omitempty"`
}

// Recorder wraps an ir.Backend and records every call in order.
//
// Failures can be injected with FailOn; the matching statement is recorded
// as failed and never reaches the wrapped backend.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder struct {
	inner ir.Backend

	mu       sync.Mutex
	seq      int64
	events   []Event
	failures map[string]error
}

var _ ir.Backend = (*Recorder)(nil)

// NewRecorder wraps inner. inner may be nil, in which case every call
// succeeds without touching a database.
func NewRecorder(inner ir.Backend) *Recorder {
	return &Recorder{
		inner:    inner,
		failures: make(map[string]error),
	}
}

// FailOn makes any statement containing substr fail with err.
func (r *Recorder) FailOn(substr string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[substr] = err
}

// ClearFailures removes all injected failures.
func (r *Recorder) ClearFailures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = make(map[string]error)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Statements returns the text of every executed statement, in order.
func (r *Recorder) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == EventExec {
			out = append(out, ev.Statement)
		}
	}
	return out
}

// Reset discards recorded events. The sequence counter restarts at 1.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.seq = 0
}

// Exec implements ir.Backend.
func (r *Recorder) Exec(ctx context.Context, statement string) error {
	err := r.injected(statement)
	if err == nil && r.inner != nil {
		err = r.inner.Exec(ctx, statement)
	}
	r.record(Event{Kind: EventExec, Statement: statement, Failed: err != nil})
	return err
}

// Begin implements ir.Backend.
func (r *Recorder) Begin(ctx context.Context) (ir.Tx, error) {
	var (
		inner ir.Tx
		err   error
	)
	if r.inner != nil {
		inner, err = r.inner.Begin(ctx)
	}
	r.record(Event{Kind: EventBegin, Failed: err != nil})
	if err != nil {
		return nil, err
	}
	return &recordedTx{r: r, inner: inner}, nil
}

func (r *Recorder) injected(statement string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for substr, err := range r.failures {
		if strings.Contains(statement, substr) {
			return fmt.Errorf("injected failure on %q: %w", substr, err)
		}
	}
	return nil
}

func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev.Seq = r.seq
	r.events = append(r.events, ev)
}

// recordedTx records calls made inside a transaction.
type recordedTx struct {
	r     *Recorder
	inner ir.Tx
	done  bool
}

func (t *recordedTx) Exec(ctx context.Context, statement string) error {
	err := t.r.injected(statement)
	if err == nil && t.inner != nil {
		err = t.inner.Exec(ctx, statement)
	}
	t.r.record(Event{Kind: EventExec, Statement: statement, InTx: true, Failed: err != nil})
	return err
}

func (t *recordedTx) Commit() error {
	var err error
	if t.inner != nil {
		err = t.inner.Commit()
	}
	t.done = true
	t.r.record(Event{Kind: EventCommit, Failed: err != nil})
	return err
}

// Rollback after Commit is a no-op and is not recorded.
func (t *recordedTx) Rollback() error {
	if t.done {
		return nil
	}
	var err error
	if t.inner != nil {
		err = t.inner.Rollback()
	}
	t.done = true
	t.r.record(Event{Kind: EventRollback, Failed: err != nil})
	return err
}
