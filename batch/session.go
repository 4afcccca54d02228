// Package batch owns the upload session: the ordered item store and the
// orchestrator driving validation, previews, transport calls, progress
// fan-in and retry. All mutation funnels through the session's entry points
// (single-writer); readers get snapshots.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chemora/batchup/preview"
	"github.com/chemora/batchup/tool"
	"github.com/chemora/batchup/transport"
	"github.com/chemora/batchup/types"
	"github.com/chemora/batchup/validate"
)

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrItemUploading = errors.New("item is uploading")
	ErrItemNotFound  = errors.New("item not found")
	ErrBatchInFlight = errors.New("a batch is still in flight")
)

// Callbacks is the caller-facing surface. OnBatchProgress fires on every
// state change; OnUploadedUrlsChanged fires once per settle with every
// uploaded location in selection order. Callbacks run with the session lock
// held and must not call back into the session.
type Callbacks struct {
	OnBatchProgress       func(types.BatchProgress)
	OnUploadedUrlsChanged func(urls []string)
}

// Config wires a new session.
type Config struct {
	ID          string
	Policy      types.Policy
	Options     types.SendOptions
	Destination string
	Client      transport.Client
	Callbacks   Callbacks
}

// Session exclusively owns its upload items and their preview handles.
// Created on first selection, destroyed by Close (clear-all or caller
// teardown), which releases every preview and aborts in-flight transfers.
type Session struct {
	ID string

	mu       sync.Mutex
	items    []*UploadItem
	inflight int
	closed   bool

	policy      types.Policy
	opts        types.SendOptions
	destination string
	client      transport.Client
	previews    *preview.Store
	callbacks   Callbacks

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = tool.GenerateShortSessionID()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:          cfg.ID,
		policy:      cfg.Policy,
		opts:        cfg.Options,
		destination: cfg.Destination,
		client:      cfg.Client,
		previews:    preview.NewStore(),
		callbacks:   cfg.Callbacks,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit validates the candidates in selection order, creates a Pending item
// with a preview handle for each accepted file, then dispatches the accepted
// set as one logical transport call. Rejections are returned immediately and
// never reach the network.
func (s *Session) Submit(candidates []types.FileMeta) ([]types.ItemSnapshot, []validate.Rejection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return nil, nil, ErrSessionClosed
	}

	accepted, rejected := validate.Partition(candidates, s.policy, len(s.items))

	batch := make([]*UploadItem, 0, len(accepted))
	snapshots := make([]types.ItemSnapshot, 0, len(accepted))
	for _, meta := range accepted {
		item := &UploadItem{
			ID:         tool.GenerateRandomUUID(),
			SourceName: meta.Name,
			SourceKind: meta.Kind,
			SourceSize: meta.Size,
			Preview:    s.previews.Acquire(meta.Name, meta.Kind, meta.Bytes),
			State:      types.StatePending,
			payload:    meta.Bytes,
		}
		s.items = append(s.items, item)
		batch = append(batch, item)
		snapshots = append(snapshots, item.snapshot())
	}

	if len(batch) > 0 {
		s.dispatchLocked(batch)
		s.emitProgressLocked()
	}
	return snapshots, rejected, nil
}

// RetryFailed re-dispatches exactly the failed items. Items already uploaded
// are never re-sent. Calling it when nothing is failed is a no-op: no state
// change, no callback.
func (s *Session) RetryFailed() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if s.inflight > 0 {
		return ErrBatchInFlight
	}

	var failed []*UploadItem
	for _, item := range s.items {
		if item.State == types.StateFailed {
			failed = append(failed, item)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	s.dispatchLocked(failed)
	s.emitProgressLocked()
	return nil
}

// Cancel signals the cancellation token. In-flight transfers stop reporting
// progress; items still uploading settle as Failed/cancelled. One-shot.
func (s *Session) Cancel() {
	s.cancel()
}

// Remove deletes an item and releases its preview handle. Items currently
// uploading cannot be removed; cancel first.
func (s *Session) Remove(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ID != itemID {
			continue
		}
		if item.State == types.StateUploading {
			return ErrItemUploading
		}
		s.previews.Release(item.Preview)
		s.items = append(s.items[:i], s.items[i+1:]...)
		s.emitProgressLocked()
		return nil
	}
	return ErrItemNotFound
}

// Close tears the session down: aborts in-flight work and releases every
// preview handle. Idempotent.
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.previews.ReleaseAll()
}

// Snapshot returns the caller-visible view of the session. Safe to call from
// any goroutine; the view is consistent at the instant it was taken.
func (s *Session) Snapshot() types.BatchProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Previews exposes the preview store for the serving layer.
func (s *Session) Previews() *preview.Store {
	return s.previews
}

// Settled reports whether every item reached a terminal state.
func (s *Session) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settledLocked()
}

// dispatchLocked transitions the items to Uploading and launches the logical
// transport call. Caller holds s.mu.
func (s *Session) dispatchLocked(items []*UploadItem) {
	metas := make([]types.FileMeta, len(items))
	for i, item := range items {
		item.markUploading()
		metas[i] = item.meta()
	}
	s.inflight++
	go s.run(items, metas)
}

// run awaits one logical transport call. The only other mutation path while
// it is blocked is the progress fan-in below, both funnelled through s.mu.
func (s *Session) run(items []*UploadItem, metas []types.FileMeta) {
	outcomes, err := s.client.Send(s.ctx, metas, s.destination, s.opts, func(pct int) {
		s.fanInProgress(items, pct)
	})
	s.settle(items, outcomes, err)
}

// fanInProgress redistributes the batch-level percentage onto the in-flight
// items, size-weighted: the multipart body carries the files in order, so
// batch bytes fill item progress sequentially.
func (s *Session) fanInProgress(items []*UploadItem, pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// no state mutation after cancellation is observed
	if s.ctx.Err() != nil || s.closed {
		return
	}

	var total int64
	for _, item := range items {
		total += item.SourceSize
	}
	if total <= 0 {
		return
	}
	done := total * int64(pct) / 100

	var prefix int64
	for _, item := range items {
		if item.State != types.StateUploading {
			prefix += item.SourceSize
			continue
		}
		var p int
		switch {
		case done <= prefix:
			p = 0
		case done >= prefix+item.SourceSize:
			p = 100
		default:
			p = int((done - prefix) * 100 / item.SourceSize)
		}
		if p > item.Progress {
			item.Progress = p
		}
		prefix += item.SourceSize
	}
	s.emitProgressLocked()
}

// settle applies the per-position outcomes of one logical call.
func (s *Session) settle(items []*UploadItem, outcomes []types.Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--

	switch {
	case s.ctx.Err() != nil:
		// cancellation observed: no uploads may complete past this point
		for _, item := range items {
			if item.State == types.StateUploading {
				item.markFailed(types.ReasonCancelled)
			}
		}
	case err != nil:
		reason := types.ReasonNetworkFailure
		var inv *transport.InvariantError
		if errors.As(err, &inv) {
			// contract breach by the transport, not a recoverable network issue
			tool.DefaultLogger.Errorf("Transport contract breach in session %s: %v", s.ID, err)
			reason = types.ReasonInvariantViolation
		} else {
			tool.DefaultLogger.Warnf("Batch call failed in session %s: %v", s.ID, err)
		}
		for _, item := range items {
			if item.State == types.StateUploading {
				item.markFailed(reason)
			}
		}
	case len(outcomes) != len(items):
		tool.DefaultLogger.Errorf("Transport contract breach in session %s: %d outcomes for %d items", s.ID, len(outcomes), len(items))
		for _, item := range items {
			if item.State == types.StateUploading {
				item.markFailed(types.ReasonInvariantViolation)
			}
		}
	default:
		for i, item := range items {
			if item.State != types.StateUploading {
				continue
			}
			outcome := outcomes[i]
			if outcome.Err != nil {
				item.markFailed(failReasonOf(outcome.Err))
				continue
			}
			item.markUploaded(outcome.Location)
		}
	}

	s.emitProgressLocked()
	if s.settledLocked() && s.callbacks.OnUploadedUrlsChanged != nil {
		s.callbacks.OnUploadedUrlsChanged(s.uploadedURLsLocked())
	}
}

func failReasonOf(err error) types.FailReason {
	var itemErr *transport.ItemError
	if errors.As(err, &itemErr) {
		return itemErr.Reason
	}
	return types.ReasonServerRejected
}

func (s *Session) settledLocked() bool {
	if len(s.items) == 0 {
		return false
	}
	if s.inflight > 0 {
		return false
	}
	for _, item := range s.items {
		if !item.terminal() {
			return false
		}
	}
	return true
}

// uploadedURLsLocked returns every uploaded location in insertion order,
// independent of which responses resolved first.
func (s *Session) uploadedURLsLocked() []string {
	urls := make([]string, 0, len(s.items))
	for _, item := range s.items {
		if item.State == types.StateUploaded {
			urls = append(urls, item.RemoteLocation)
		}
	}
	return urls
}

// snapshotLocked derives the aggregate view. OverallProgress is always
// recomputed from item progress, never stored.
func (s *Session) snapshotLocked() types.BatchProgress {
	snapshot := types.BatchProgress{
		SessionID:  s.ID,
		TotalFiles: len(s.items),
		Items:      make([]types.ItemSnapshot, 0, len(s.items)),
		Settled:    s.settledLocked(),
	}
	sum := 0
	for _, item := range s.items {
		snapshot.Items = append(snapshot.Items, item.snapshot())
		sum += item.Progress
		if item.terminal() {
			snapshot.CompletedFiles++
		}
		if item.State == types.StateFailed {
			snapshot.Errors = append(snapshot.Errors, types.ItemError{
				ID:       item.ID,
				FileName: item.SourceName,
				Reason:   string(item.ErrorReason),
			})
		}
	}
	if len(s.items) > 0 {
		snapshot.OverallProgress = sum / len(s.items)
	}
	return snapshot
}

func (s *Session) emitProgressLocked() {
	if s.callbacks.OnBatchProgress == nil {
		return
	}
	s.callbacks.OnBatchProgress(s.snapshotLocked())
}

// UploadedURLs returns the settled locations in insertion order.
func (s *Session) UploadedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadedURLsLocked()
}

// String implements fmt.Stringer for log lines.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("session %s (%d items, %d in flight)", s.ID, len(s.items), s.inflight)
}
