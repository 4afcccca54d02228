package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chemora/batchup/transport"
	"github.com/chemora/batchup/types"
)

// fakeClient is a scriptable transport. respond maps the files of one logical
// call to outcomes; progress percentages are fed before responding; a non-nil
// block channel holds the call open until closed or the context dies.
type fakeClient struct {
	mu    sync.Mutex
	calls [][]types.FileMeta

	progress []int
	respond  func(files []types.FileMeta) ([]types.Outcome, error)
	block    chan struct{}
}

func (f *fakeClient) Send(ctx context.Context, files []types.FileMeta, destination string, opts types.SendOptions, onProgress func(pct int)) ([]types.Outcome, error) {
	f.mu.Lock()
	copied := make([]types.FileMeta, len(files))
	copy(copied, files)
	f.calls = append(f.calls, copied)
	block := f.block
	respond := f.respond
	f.mu.Unlock()

	for _, pct := range f.progress {
		if onProgress != nil {
			onProgress(pct)
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return respond(files)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) call(i int) []types.FileMeta {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func allUploaded(files []types.FileMeta) ([]types.Outcome, error) {
	outcomes := make([]types.Outcome, len(files))
	for i, f := range files {
		outcomes[i] = types.Outcome{Location: "https://cdn.example.com/" + f.Name}
	}
	return outcomes, nil
}

func rejectNamed(bad ...string) func(files []types.FileMeta) ([]types.Outcome, error) {
	rejected := make(map[string]bool, len(bad))
	for _, name := range bad {
		rejected[name] = true
	}
	return func(files []types.FileMeta) ([]types.Outcome, error) {
		outcomes := make([]types.Outcome, len(files))
		for i, f := range files {
			if rejected[f.Name] {
				outcomes[i] = types.Outcome{Err: &transport.ItemError{Reason: types.ReasonServerRejected, Message: "rejected"}}
				continue
			}
			outcomes[i] = types.Outcome{Location: "https://cdn.example.com/" + f.Name}
		}
		return outcomes, nil
	}
}

func newTestSession(client transport.Client, cb Callbacks) *Session {
	return New(Config{
		ID:          "test-session",
		Policy:      types.Policy{MinSize: 1, MaxSize: 1 << 20, Capacity: 10},
		Destination: "products",
		Client:      client,
		Callbacks:   cb,
	})
}

func candidates(sizes map[string]int64) []types.FileMeta {
	// deterministic order matters; build from a fixed name list
	names := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}
	metas := make([]types.FileMeta, 0, len(sizes))
	for _, name := range names {
		size, ok := sizes[name]
		if !ok {
			continue
		}
		metas = append(metas, types.FileMeta{Name: name, Kind: "image/jpeg", Size: size, Bytes: make([]byte, size)})
	}
	return metas
}

func waitSettled(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Settled() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session did not settle: %s", s)
}

func itemStates(s *Session) map[string]types.ItemSnapshot {
	byName := make(map[string]types.ItemSnapshot)
	for _, item := range s.Snapshot().Items {
		byName[item.FileName] = item
	}
	return byName
}

func TestSubmitAllSucceed(t *testing.T) {
	client := &fakeClient{respond: allUploaded}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	snapshots, rejected, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 200, "c.jpg": 300}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}
	for _, snap := range snapshots {
		if snap.PreviewID == "" {
			t.Fatalf("accepted item %s has no preview handle", snap.FileName)
		}
	}

	waitSettled(t, s)

	if client.callCount() != 1 {
		t.Fatalf("expected 1 logical call, got %d", client.callCount())
	}
	progress := s.Snapshot()
	if progress.CompletedFiles != 3 || progress.OverallProgress != 100 {
		t.Fatalf("snapshot = %+v", progress)
	}
	for _, item := range progress.Items {
		if item.State != types.StateUploaded {
			t.Fatalf("item %s state = %s", item.FileName, item.State)
		}
	}
	want := []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg", "https://cdn.example.com/c.jpg"}
	got := s.UploadedURLs()
	if len(got) != len(want) {
		t.Fatalf("UploadedURLs = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UploadedURLs[%d] = %q, want %q (insertion order)", i, got[i], want[i])
		}
	}
}

func TestSubmitRejectionsNeverReachTransport(t *testing.T) {
	client := &fakeClient{respond: allUploaded}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	metas := candidates(map[string]int64{"a.jpg": 100, "b.jpg": 2 << 20, "c.jpg": 100})
	snapshots, rejected, err := s.Submit(metas)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(snapshots) != 2 || len(rejected) != 1 {
		t.Fatalf("partition = %d accepted / %d rejected", len(snapshots), len(rejected))
	}
	if rejected[0].Meta.Name != "b.jpg" {
		t.Fatalf("rejected = %v", rejected)
	}

	waitSettled(t, s)

	sent := client.call(0)
	if len(sent) != 2 || sent[0].Name != "a.jpg" || sent[1].Name != "c.jpg" {
		t.Fatalf("transport saw %v", sent)
	}
}

func TestSubmitAllRejectedIsNoDispatch(t *testing.T) {
	var emissions int
	client := &fakeClient{respond: allUploaded}
	s := newTestSession(client, Callbacks{OnBatchProgress: func(types.BatchProgress) { emissions++ }})
	defer s.Close()

	snapshots, rejected, err := s.Submit(candidates(map[string]int64{"a.jpg": 2 << 20}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(snapshots) != 0 || len(rejected) != 1 {
		t.Fatalf("partition = %d/%d", len(snapshots), len(rejected))
	}
	if client.callCount() != 0 {
		t.Fatalf("empty batch must not hit the transport")
	}
	if emissions != 0 {
		t.Fatalf("no state changed, no callback expected, got %d", emissions)
	}
}

func TestPartialFailureAndRetry(t *testing.T) {
	client := &fakeClient{respond: rejectNamed("b.jpg")}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100, "c.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	states := itemStates(s)
	if states["b.jpg"].State != types.StateFailed || states["b.jpg"].ErrorReason != string(types.ReasonServerRejected) {
		t.Fatalf("b.jpg = %+v", states["b.jpg"])
	}
	if states["a.jpg"].State != types.StateUploaded || states["c.jpg"].State != types.StateUploaded {
		t.Fatalf("siblings must settle independently: %+v", states)
	}
	snapshot := s.Snapshot()
	if len(snapshot.Errors) != 1 || snapshot.Errors[0].FileName != "b.jpg" {
		t.Fatalf("errors = %v", snapshot.Errors)
	}

	// retry re-sends exactly the failed item
	client.mu.Lock()
	client.respond = allUploaded
	client.mu.Unlock()
	if err := s.RetryFailed(); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	waitSettled(t, s)

	if client.callCount() != 2 {
		t.Fatalf("expected 2 logical calls, got %d", client.callCount())
	}
	retried := client.call(1)
	if len(retried) != 1 || retried[0].Name != "b.jpg" {
		t.Fatalf("retry sent %v, want only b.jpg", retried)
	}
	states = itemStates(s)
	for name, item := range states {
		if item.State != types.StateUploaded {
			t.Fatalf("%s state = %s after retry", name, item.State)
		}
	}
	// insertion order survives the out-of-order settle
	urls := s.UploadedURLs()
	want := []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg", "https://cdn.example.com/c.jpg"}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("UploadedURLs[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestRetryWithNothingFailedIsNoOp(t *testing.T) {
	var emissions int
	client := &fakeClient{respond: allUploaded}
	s := newTestSession(client, Callbacks{OnBatchProgress: func(types.BatchProgress) { emissions++ }})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	before := emissions
	if err := s.RetryFailed(); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if client.callCount() != 1 {
		t.Fatalf("no-op retry must not call the transport")
	}
	if emissions != before {
		t.Fatalf("no-op retry must not emit progress")
	}
}

func TestRetryWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	client := &fakeClient{respond: allUploaded, block: block}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.RetryFailed(); !errors.Is(err, ErrBatchInFlight) {
		t.Fatalf("expected ErrBatchInFlight, got %v", err)
	}
	close(block)
	waitSettled(t, s)
}

func TestCancelFailsInFlightItems(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	client := &fakeClient{respond: allUploaded, block: block}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Cancel()
	waitSettled(t, s)

	for name, item := range itemStates(s) {
		if item.State != types.StateFailed || item.ErrorReason != string(types.ReasonCancelled) {
			t.Fatalf("%s = %+v, want failed/cancelled", name, item)
		}
	}

	// the session is spent: no new work, no retry
	if _, _, err := s.Submit(candidates(map[string]int64{"c.jpg": 100})); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Submit after cancel = %v, want ErrSessionClosed", err)
	}
	if err := s.RetryFailed(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("RetryFailed after cancel = %v, want ErrSessionClosed", err)
	}
}

func TestTransportErrorFailsWholeBatch(t *testing.T) {
	client := &fakeClient{respond: func([]types.FileMeta) ([]types.Outcome, error) {
		return nil, errors.New("connection refused")
	}}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	for name, item := range itemStates(s) {
		if item.State != types.StateFailed || item.ErrorReason != string(types.ReasonNetworkFailure) {
			t.Fatalf("%s = %+v, want failed/networkFailure", name, item)
		}
	}
}

func TestOutcomeCountMismatchIsInvariantViolation(t *testing.T) {
	client := &fakeClient{respond: func(files []types.FileMeta) ([]types.Outcome, error) {
		return []types.Outcome{{Location: "https://cdn.example.com/only"}}, nil
	}}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	for name, item := range itemStates(s) {
		if item.State != types.StateFailed || item.ErrorReason != string(types.ReasonInvariantViolation) {
			t.Fatalf("%s = %+v, want failed/invariantViolation", name, item)
		}
	}
}

func TestInvariantErrorFromTransport(t *testing.T) {
	client := &fakeClient{respond: func([]types.FileMeta) ([]types.Outcome, error) {
		return nil, &transport.InvariantError{Want: 2, Got: 5}
	}}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	for name, item := range itemStates(s) {
		if item.ErrorReason != string(types.ReasonInvariantViolation) {
			t.Fatalf("%s reason = %s, want invariantViolation", name, item.ErrorReason)
		}
	}
}

func TestProgressFanInIsSizeWeighted(t *testing.T) {
	var mu sync.Mutex
	var snapshots []types.BatchProgress
	client := &fakeClient{
		progress: []int{50},
		respond:  allUploaded,
	}
	s := newTestSession(client, Callbacks{OnBatchProgress: func(p types.BatchProgress) {
		mu.Lock()
		snapshots = append(snapshots, p)
		mu.Unlock()
	}})
	defer s.Close()

	// 100 + 300 bytes; at 50% the first file is fully sent, the second is at 33
	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 300})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	mu.Lock()
	defer mu.Unlock()
	var mid *types.BatchProgress
	for i := range snapshots {
		items := snapshots[i].Items
		if len(items) == 2 && items[0].Progress == 100 && items[1].State == types.StateUploading {
			mid = &snapshots[i]
			break
		}
	}
	if mid == nil {
		t.Fatalf("never observed the mid-transfer snapshot, got %d snapshots", len(snapshots))
	}
	if mid.Items[1].Progress != 33 {
		t.Fatalf("second item progress = %d, want 33", mid.Items[1].Progress)
	}
	if want := (100 + 33) / 2; mid.OverallProgress != want {
		t.Fatalf("overall progress = %d, want %d (recomputed mean)", mid.OverallProgress, want)
	}

	final := snapshots[len(snapshots)-1]
	if !final.Settled || final.OverallProgress != 100 {
		t.Fatalf("final snapshot = %+v", final)
	}
}

func TestSettleEmitsUploadedURLsOnce(t *testing.T) {
	var mu sync.Mutex
	var emissions [][]string
	client := &fakeClient{respond: allUploaded}
	s := newTestSession(client, Callbacks{OnUploadedUrlsChanged: func(urls []string) {
		mu.Lock()
		emissions = append(emissions, urls)
		mu.Unlock()
	}})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(emissions) != 1 {
		t.Fatalf("expected 1 settle emission, got %d", len(emissions))
	}
	if len(emissions[0]) != 2 {
		t.Fatalf("settle emission = %v", emissions[0])
	}
}

func TestRemoveItem(t *testing.T) {
	client := &fakeClient{respond: rejectNamed("b.jpg")}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	failed := itemStates(s)["b.jpg"]
	if err := s.Remove(failed.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, _, ok := s.Previews().Get(failed.PreviewID); ok {
		t.Fatalf("removed item's preview still live")
	}
	if got := s.Snapshot().TotalFiles; got != 1 {
		t.Fatalf("TotalFiles = %d after remove", got)
	}
	if err := s.Remove("missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("Remove(missing) = %v", err)
	}
}

func TestRemoveUploadingItemIsRefused(t *testing.T) {
	block := make(chan struct{})
	client := &fakeClient{respond: allUploaded, block: block}
	s := newTestSession(client, Callbacks{})
	defer s.Close()

	snapshots, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Remove(snapshots[0].ID); !errors.Is(err, ErrItemUploading) {
		t.Fatalf("Remove(uploading) = %v, want ErrItemUploading", err)
	}
	close(block)
	waitSettled(t, s)
}

func TestCloseReleasesEveryPreview(t *testing.T) {
	client := &fakeClient{respond: allUploaded}
	s := newTestSession(client, Callbacks{})

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100, "c.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	s.Close()
	s.Close() // idempotent

	if s.Previews().Live() != 0 {
		t.Fatalf("live previews after close: %d", s.Previews().Live())
	}
	acquired, released := s.Previews().Stats()
	if acquired != released {
		t.Fatalf("preview acquire/release unbalanced: %d/%d", acquired, released)
	}
	if _, _, err := s.Submit(candidates(map[string]int64{"d.jpg": 100})); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Submit after close = %v", err)
	}
}

func TestCapacitySpansSubmissions(t *testing.T) {
	client := &fakeClient{respond: allUploaded}
	s := New(Config{
		ID:     "cap",
		Policy: types.Policy{MinSize: 1, MaxSize: 1 << 20, Capacity: 3},
		Client: client,
	})
	defer s.Close()

	if _, _, err := s.Submit(candidates(map[string]int64{"a.jpg": 100, "b.jpg": 100})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitSettled(t, s)

	snapshots, rejected, err := s.Submit(candidates(map[string]int64{"c.jpg": 100, "d.jpg": 100}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(snapshots) != 1 || len(rejected) != 1 {
		t.Fatalf("second submit = %d accepted / %d rejected, want 1/1", len(snapshots), len(rejected))
	}
	if string(rejected[0].Reason) != "capacityExceeded" {
		t.Fatalf("rejected reason = %s", rejected[0].Reason)
	}
	waitSettled(t, s)
}
