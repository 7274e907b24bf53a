package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/moyoez/productshot/types"
)

func newTask(id string) types.UploadTask {
	return types.UploadTask{
		ID:        id,
		ProductID: 1,
		File:      types.FileInfo{Path: "/tmp/" + id + ".jpg", FileName: id + ".jpg", Size: 100, ContentType: "image/jpeg"},
		Category:  types.CategoryBarcode,
		SectionID: "barcode-0",
	}
}

func waitResults(t *testing.T, d *Dispatcher) []types.UploadResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := d.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return results
}

// gateUploader blocks every task until its gate is released.
type gateUploader struct {
	started chan string
	mu      sync.Mutex
	gates   map[string]chan struct{}
}

func newGateUploader(buffer int) *gateUploader {
	return &gateUploader{
		started: make(chan string, buffer),
		gates:   make(map[string]chan struct{}),
	}
}

func (g *gateUploader) gate(id string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[id]
	if !ok {
		ch = make(chan struct{})
		g.gates[id] = ch
	}
	return ch
}

func (g *gateUploader) release(id string) {
	close(g.gate(id))
}

func (g *gateUploader) Upload(ctx context.Context, task types.UploadTask, onProgress func(int)) (*types.UploadResponse, error) {
	g.started <- task.ID
	<-g.gate(task.ID)
	return &types.UploadResponse{Success: true, ImageID: 1, ImageURL: "/media/" + task.ID}, nil
}

func expectStart(t *testing.T, started <-chan string) string {
	t.Helper()
	select {
	case id := <-started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("expected a task to start")
		return ""
	}
}

func expectNoStart(t *testing.T, started <-chan string) {
	t.Helper()
	select {
	case id := <-started:
		t.Fatalf("task %s started while the dispatcher was at its ceiling", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherNeverExceedsCeiling(t *testing.T) {
	var current, peak atomic.Int32
	hold := make(chan struct{})
	uploader := UploaderFunc(func(ctx context.Context, task types.UploadTask, onProgress func(int)) (*types.UploadResponse, error) {
		<-hold
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return &types.UploadResponse{Success: true, ImageID: 9}, nil
	})

	d := New(uploader, WithConcurrency(4))
	for i := range 20 {
		d.Enqueue(newTask(fmt.Sprintf("t%d", i)))
	}
	close(hold)
	results := waitResults(t, d)

	if len(results) != 20 {
		t.Errorf("Expected 20 results, got %d", len(results))
	}
	if got := peak.Load(); got > 4 {
		t.Errorf("Expected at most 4 concurrent uploads, got %d", got)
	}
	if d.Busy() {
		t.Error("Expected dispatcher to be idle after drain")
	}
}

func TestDispatcherConcurrencyBelowOneMeansOne(t *testing.T) {
	d := New(UploaderFunc(func(context.Context, types.UploadTask, func(int)) (*types.UploadResponse, error) {
		return &types.UploadResponse{Success: true}, nil
	}), WithConcurrency(0))
	if d.Ceiling() != 1 {
		t.Errorf("Expected ceiling 1, got %d", d.Ceiling())
	}
}

func TestDispatcherAdmitsQueuedTasksOnCompletion(t *testing.T) {
	g := newGateUploader(5)
	d := New(g, WithConcurrency(3))
	for i := 1; i <= 5; i++ {
		d.Enqueue(newTask(fmt.Sprintf("t%d", i)))
	}

	first := []string{expectStart(t, g.started), expectStart(t, g.started), expectStart(t, g.started)}
	expectNoStart(t, g.started)
	if d.InFlight() != 3 || d.Pending() != 2 {
		t.Fatalf("Expected 3 in flight and 2 pending, got %d and %d", d.InFlight(), d.Pending())
	}

	g.release(first[1])
	if id := expectStart(t, g.started); id != "t4" {
		t.Errorf("Expected t4 to start after the first completion, got %s", id)
	}
	expectNoStart(t, g.started)

	g.release(first[0])
	if id := expectStart(t, g.started); id != "t5" {
		t.Errorf("Expected t5 to start after the second completion, got %s", id)
	}

	g.release(first[2])
	g.release("t4")
	g.release("t5")
	results := waitResults(t, d)
	if len(results) != 5 {
		t.Errorf("Expected 5 results, got %d", len(results))
	}
}

func TestDispatcherStartsInEnqueueOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	d := New(UploaderFunc(func(ctx context.Context, task types.UploadTask, onProgress func(int)) (*types.UploadResponse, error) {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return &types.UploadResponse{Success: true}, nil
	}), WithConcurrency(1))

	want := []string{"a", "b", "c", "d"}
	for _, id := range want {
		d.Enqueue(newTask(id))
	}
	waitResults(t, d)

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("start order mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcherExactlyOneResultPerTask(t *testing.T) {
	hold := make(chan struct{})
	uploader := UploaderFunc(func(ctx context.Context, task types.UploadTask, onProgress func(int)) (*types.UploadResponse, error) {
		<-hold
		switch task.ID {
		case "transport":
			return nil, errors.New("connection refused")
		case "rejected":
			return &types.UploadResponse{Success: false, Error: "Invalid image type"}, nil
		case "empty":
			return nil, nil
		}
		return &types.UploadResponse{Success: true, ImageID: 7, ImageURL: "/x/7"}, nil
	})

	var mu sync.Mutex
	seen := make(map[string]int)
	d := New(uploader, WithConcurrency(2), OnResult(func(r types.UploadResult) {
		mu.Lock()
		seen[r.Task.ID]++
		mu.Unlock()
	}))
	ids := []string{"ok1", "transport", "rejected", "empty", "ok2"}
	for _, id := range ids {
		d.Enqueue(newTask(id))
	}
	close(hold)
	results := waitResults(t, d)

	if len(results) != len(ids) {
		t.Fatalf("Expected %d results, got %d", len(ids), len(results))
	}
	byID := make(map[string]types.UploadResult)
	for _, r := range results {
		byID[r.Task.ID] = r
	}
	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("Expected one result callback for %s, got %d", id, seen[id])
		}
	}

	if r := byID["ok1"]; !r.Success || r.ImageID != 7 || r.ImageURL != "/x/7" {
		t.Errorf("Unexpected success result: %+v", r)
	}
	if r := byID["transport"]; r.Success || r.Error != "connection refused" {
		t.Errorf("Unexpected transport result: %+v", r)
	}
	if r := byID["rejected"]; r.Success || r.Error != "Invalid image type" {
		t.Errorf("Unexpected rejected result: %+v", r)
	}
	if r := byID["empty"]; r.Success || r.Error == "" {
		t.Errorf("Expected empty response to fail with a message: %+v", r)
	}
}

func TestDispatcherCompletionFiresOncePerCycle(t *testing.T) {
	var completions atomic.Int32
	var busyAtCompletion atomic.Bool
	hold := make(chan struct{})
	var d *Dispatcher
	d = New(UploaderFunc(func(context.Context, types.UploadTask, func(int)) (*types.UploadResponse, error) {
		<-hold
		return &types.UploadResponse{Success: true}, nil
	}), WithConcurrency(2), OnComplete(func(results []types.UploadResult) {
		completions.Add(1)
		if d.Busy() {
			busyAtCompletion.Store(true)
		}
	}))

	for i := range 6 {
		d.Enqueue(newTask(fmt.Sprintf("first%d", i)))
	}
	close(hold)
	first := waitResults(t, d)
	if len(first) != 6 {
		t.Errorf("Expected 6 results in the first cycle, got %d", len(first))
	}
	if got := completions.Load(); got != 1 {
		t.Errorf("Expected 1 completion, got %d", got)
	}

	d.Enqueue(newTask("second"))
	second := waitResults(t, d)
	if len(second) != 1 || second[0].Task.ID != "second" {
		t.Errorf("Expected the accumulator to reset between cycles, got %+v", second)
	}
	if got := completions.Load(); got != 2 {
		t.Errorf("Expected 2 completions, got %d", got)
	}
	if busyAtCompletion.Load() {
		t.Error("Expected an empty queue when the completion callback fires")
	}
}

func TestDispatcherWaitWhenIdle(t *testing.T) {
	d := New(UploaderFunc(func(context.Context, types.UploadTask, func(int)) (*types.UploadResponse, error) {
		return &types.UploadResponse{Success: true}, nil
	}))
	results, err := d.Wait(context.Background())
	if err != nil || results != nil {
		t.Errorf("Expected no results from an unused dispatcher, got %v, %v", results, err)
	}
}

func TestDispatcherWaitHonorsContext(t *testing.T) {
	g := newGateUploader(1)
	d := New(g)
	d.Enqueue(newTask("slow"))
	expectStart(t, g.started)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	g.release("slow")
	waitResults(t, d)
}

func TestDispatcherProgressDeduplicated(t *testing.T) {
	var mu sync.Mutex
	events := make(map[string][]int)
	d := New(UploaderFunc(func(ctx context.Context, task types.UploadTask, onProgress func(int)) (*types.UploadResponse, error) {
		if task.ID == "known" {
			for _, p := range []int{0, 0, 50, 50, 120} {
				onProgress(p)
			}
		}
		return &types.UploadResponse{Success: true}, nil
	}), OnProgress(func(task types.UploadTask, percent int) {
		mu.Lock()
		events[task.ID] = append(events[task.ID], percent)
		mu.Unlock()
	}))

	d.Enqueue(newTask("known"))
	d.Enqueue(newTask("unknown"))
	waitResults(t, d)

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]int{0, 50, 100}, events["known"]); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	if len(events["unknown"]) != 0 {
		t.Errorf("Expected no progress without a known total, got %v", events["unknown"])
	}
}

func TestDispatcherRetryEnqueuesFreshTask(t *testing.T) {
	var calls atomic.Int32
	d := New(UploaderFunc(func(ctx context.Context, task types.UploadTask, onProgress func(int)) (*types.UploadResponse, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("network down")
		}
		return &types.UploadResponse{Success: true, ImageID: 3}, nil
	}))

	task := newTask("orig")
	task.Metadata = map[string]string{"barcode_number": "0123"}
	d.Enqueue(task)
	failed := waitResults(t, d)
	if len(failed) != 1 || failed[0].Success {
		t.Fatalf("Expected a single failed result, got %+v", failed)
	}

	retried, err := d.Retry(failed[0])
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if retried.ID == "" || retried.ID == "orig" {
		t.Errorf("Expected a fresh task ID, got %q", retried.ID)
	}
	if retried.SectionID != task.SectionID || retried.File.Path != task.File.Path || retried.Metadata["barcode_number"] != "0123" {
		t.Errorf("Expected the retry to keep file and destination, got %+v", retried)
	}

	results := waitResults(t, d)
	if len(results) != 1 || !results[0].Success || results[0].Task.ID != retried.ID {
		t.Errorf("Expected the retried task to succeed, got %+v", results)
	}

	if _, err := d.Retry(results[0]); !errors.Is(err, ErrNotFailed) {
		t.Errorf("Expected ErrNotFailed for a successful result, got %v", err)
	}
}

func TestDispatcherCallbackMayEnqueue(t *testing.T) {
	var once sync.Once
	var d *Dispatcher
	d = New(UploaderFunc(func(context.Context, types.UploadTask, func(int)) (*types.UploadResponse, error) {
		return &types.UploadResponse{Success: true}, nil
	}), OnResult(func(r types.UploadResult) {
		once.Do(func() {
			d.Enqueue(newTask("follow-up"))
		})
	}))

	d.Enqueue(newTask("first"))
	first := waitResults(t, d)
	if len(first) != 1 || first[0].Task.ID != "first" {
		t.Fatalf("Expected the first cycle to hold only the first task, got %+v", first)
	}

	// The follow-up was enqueued before the first cycle's completion callback, so it opened a new cycle.
	second := waitResults(t, d)
	if len(second) != 1 || second[0].Task.ID != "follow-up" {
		t.Errorf("Expected the follow-up in the next cycle, got %+v", second)
	}
}

func TestDispatcherEnqueueAssignsIDAndCopiesMetadata(t *testing.T) {
	g := newGateUploader(1)
	d := New(g)
	meta := map[string]string{"notes": "before"}
	task := newTask("")
	task.Metadata = meta
	queued := d.Enqueue(task)
	meta["notes"] = "after"

	if queued.ID == "" {
		t.Error("Expected an ID to be assigned")
	}
	if queued.Metadata["notes"] != "before" {
		t.Errorf("Expected enqueued metadata to be immutable, got %q", queued.Metadata["notes"])
	}
	expectStart(t, g.started)
	g.release(queued.ID)
	waitResults(t, d)
}

func TestDispatcherEnqueueAllIsOneCycle(t *testing.T) {
	var completions atomic.Int32
	d := New(UploaderFunc(func(context.Context, types.UploadTask, func(int)) (*types.UploadResponse, error) {
		return nil, errors.New("network down")
	}), WithConcurrency(1), OnComplete(func([]types.UploadResult) {
		completions.Add(1)
	}))

	var batch []types.UploadTask
	for i := range 6 {
		batch = append(batch, newTask(fmt.Sprintf("t%d", i)))
	}
	queued := d.EnqueueAll(batch...)
	if len(queued) != 6 {
		t.Fatalf("Expected 6 queued tasks, got %d", len(queued))
	}

	results := waitResults(t, d)
	if len(results) != 6 {
		t.Errorf("Expected all 6 results in one cycle, got %d", len(results))
	}
	if n := completions.Load(); n != 1 {
		t.Errorf("Expected one completion, got %d", n)
	}
	if got := d.EnqueueAll(); len(got) != 0 {
		t.Errorf("Expected an empty batch to queue nothing, got %v", got)
	}
}

func TestDispatcherRetryAllSkipsSuccesses(t *testing.T) {
	d := New(UploaderFunc(func(context.Context, types.UploadTask, func(int)) (*types.UploadResponse, error) {
		return &types.UploadResponse{Success: true, ImageID: 8}, nil
	}))
	results := []types.UploadResult{
		{Task: newTask("ok"), Success: true},
		{Task: newTask("bad1"), Error: "Upload failed"},
		{Task: newTask("bad2"), Error: "Upload failed"},
	}

	retried := d.RetryAll(results...)
	if len(retried) != 2 {
		t.Fatalf("Expected 2 retried tasks, got %d", len(retried))
	}
	for _, task := range retried {
		if task.ID == "bad1" || task.ID == "bad2" || task.ID == "" {
			t.Errorf("Expected a fresh ID, got %q", task.ID)
		}
	}
	if got := waitResults(t, d); len(got) != 2 {
		t.Errorf("Expected both retries in one cycle, got %d", len(got))
	}
}
