// Package dispatcher runs upload tasks with bounded parallelism.
//
// Tasks are admitted in FIFO enqueue order while fewer than the concurrency
// ceiling are in flight; every admitted task produces exactly one
// UploadResult, and the completion callback fires once each time the queue
// drains (nothing pending, nothing in flight).
//
// Callbacks are delivered by a single notifier in the order the state
// transitions happened, never while the dispatcher lock is held, so a
// callback may call Enqueue or Retry.
package dispatcher

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moyoez/productshot/metrics"
	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

const tracerName = "github.com/moyoez/productshot/dispatcher"

// ErrNotFailed is returned by Retry for a result that succeeded.
var ErrNotFailed = errors.New("only failed uploads can be retried")

// Uploader performs one upload request. onProgress receives 0-100 when the
// transport knows the total size and is never called otherwise.
type Uploader interface {
	Upload(ctx context.Context, task types.UploadTask, onProgress func(percent int)) (*types.UploadResponse, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, task types.UploadTask, onProgress func(percent int)) (*types.UploadResponse, error)

func (f UploaderFunc) Upload(ctx context.Context, task types.UploadTask, onProgress func(percent int)) (*types.UploadResponse, error) {
	return f(ctx, task, onProgress)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency sets the concurrency ceiling. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.ceiling = n
	}
}

// WithContext sets the context every upload request runs under.
func WithContext(ctx context.Context) Option {
	return func(d *Dispatcher) {
		d.ctx = ctx
	}
}

// OnProgress registers the per-task progress callback.
func OnProgress(fn func(task types.UploadTask, percent int)) Option {
	return func(d *Dispatcher) {
		d.onProgress = fn
	}
}

// OnResult registers the callback invoked once per terminal result.
func OnResult(fn func(result types.UploadResult)) Option {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// OnComplete registers the callback invoked once per drain cycle with that cycle's results.
func OnComplete(fn func(results []types.UploadResult)) Option {
	return func(d *Dispatcher) {
		d.onComplete = fn
	}
}

// WithMetrics records queue depth and results.
func WithMetrics(m *metrics.Uploads) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer overrides the tracer used for per-task spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// cycle is one fill-and-drain period of the queue.
type cycle struct {
	results []types.UploadResult
	done    chan struct{} // closed after the completion callback ran
}

// Dispatcher owns the pending queue, the in-flight count and the result accumulator.
type Dispatcher struct {
	uploader Uploader
	ceiling  int
	ctx      context.Context
	tracer   trace.Tracer
	metrics  *metrics.Uploads

	onProgress func(types.UploadTask, int)
	onResult   func(types.UploadResult)
	onComplete func([]types.UploadResult)

	mu       sync.Mutex
	pending  []types.UploadTask
	inFlight int
	active   map[string]struct{}
	current  *cycle
	last     *cycle

	callbacks []func()
	flushing  bool
}

// New creates a dispatcher in front of uploader.
func New(uploader Uploader, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		uploader: uploader,
		ceiling:  tool.DefaultConcurrency,
		ctx:      context.Background(),
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	return d
}

// Enqueue appends task to the pending queue and admits work. A task without an
// ID gets one; the returned task is the copy that was queued.
func (d *Dispatcher) Enqueue(task types.UploadTask) types.UploadTask {
	return d.EnqueueAll(task)[0]
}

// EnqueueAll appends every task under one lock before admitting, so a batch
// always belongs to a single drain cycle. The returned tasks are the queued copies.
func (d *Dispatcher) EnqueueAll(tasks ...types.UploadTask) []types.UploadTask {
	queued := make([]types.UploadTask, len(tasks))
	for i, task := range tasks {
		if task.ID == "" {
			task.ID = tool.GenerateTaskID()
		}
		task.Metadata = maps.Clone(task.Metadata)
		queued[i] = task
	}
	if len(queued) == 0 {
		return queued
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		d.current = &cycle{done: make(chan struct{})}
	}
	for _, task := range queued {
		d.pending = append(d.pending, task)
		tool.DefaultLogger.Debugf("[Dispatcher] Enqueued task %s: %s -> %s (%s)", task.ID, task.File.FileName, task.Category, task.SectionID)
	}
	d.admit()
	return queued
}

// Retry re-enqueues a fresh task for the same file and destination as a failed result.
func (d *Dispatcher) Retry(result types.UploadResult) (types.UploadTask, error) {
	if result.Success {
		return types.UploadTask{}, ErrNotFailed
	}
	return d.RetryAll(result)[0], nil
}

// RetryAll queues fresh tasks for every failed result in one batch and skips successes.
func (d *Dispatcher) RetryAll(results ...types.UploadResult) []types.UploadTask {
	var tasks []types.UploadTask
	for _, result := range results {
		if result.Success {
			continue
		}
		task := result.Task
		task.ID = ""
		tool.DefaultLogger.Infof("[Dispatcher] Retrying %s (%s) as a new task", task.File.FileName, task.SectionID)
		tasks = append(tasks, task)
	}
	return d.EnqueueAll(tasks...)
}

// admit starts pending tasks, oldest first, while below the ceiling. d.mu must be held.
func (d *Dispatcher) admit() {
	for len(d.pending) > 0 && d.inFlight < d.ceiling {
		task := d.pending[0]
		d.pending[0] = types.UploadTask{}
		d.pending = d.pending[1:]
		d.inFlight++
		d.active[task.ID] = struct{}{}
		go d.run(task)
	}
	d.metrics.SetQueue(len(d.pending), d.inFlight)
}

func (d *Dispatcher) run(task types.UploadTask) {
	start := time.Now()
	ctx, span := d.tracer.Start(d.ctx, "dispatcher.upload", trace.WithAttributes(
		attribute.String("upload.task_id", task.ID),
		attribute.String("upload.category", string(task.Category)),
		attribute.String("upload.section", task.SectionID),
		attribute.Int64("upload.size", task.File.Size),
	))

	var lastPercent atomic.Int32
	lastPercent.Store(-1)
	resp, err := d.uploader.Upload(ctx, task, func(percent int) {
		percent = min(max(percent, 0), 100)
		if lastPercent.Swap(int32(percent)) == int32(percent) {
			return
		}
		d.progress(task, percent)
	})

	result := newResult(task, resp, err)
	if result.Success {
		span.SetAttributes(attribute.Int64("upload.image_id", result.ImageID))
	} else {
		span.SetStatus(codes.Error, result.Error)
	}
	span.End()
	d.metrics.Observe(string(task.Category), result.Success, time.Since(start))
	d.finish(result)
}

func newResult(task types.UploadTask, resp *types.UploadResponse, err error) types.UploadResult {
	result := types.UploadResult{Task: task}
	switch {
	case err != nil:
		result.Error = err.Error()
	case resp == nil:
		result.Error = "Upload failed: empty response"
	case !resp.Success:
		result.Error = resp.Error
		if result.Error == "" {
			result.Error = "Upload failed"
		}
	default:
		result.Success = true
		result.ImageID = resp.ImageID
		result.ImageURL = resp.ImageURL
	}
	return result
}

func (d *Dispatcher) progress(task types.UploadTask, percent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[task.ID]; !ok || d.onProgress == nil {
		return
	}
	onProgress := d.onProgress
	d.emit(func() { onProgress(task, percent) })
}

// finish records the terminal event of an admitted task.
func (d *Dispatcher) finish(result types.UploadResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inFlight--
	delete(d.active, result.Task.ID)
	d.current.results = append(d.current.results, result)
	if result.Success {
		tool.DefaultLogger.Infof("[Dispatcher] Task %s uploaded: image %d", result.Task.ID, result.ImageID)
	} else {
		tool.DefaultLogger.Warnf("[Dispatcher] Task %s failed: %s", result.Task.ID, result.Error)
	}
	if d.onResult != nil {
		onResult := d.onResult
		d.emit(func() { onResult(result) })
	}

	d.admit()
	if len(d.pending) > 0 || d.inFlight > 0 {
		return
	}

	drained := d.current
	d.current = nil
	d.last = drained
	onComplete := d.onComplete
	tool.DefaultLogger.Debugf("[Dispatcher] Queue drained with %d results", len(drained.results))
	d.emit(func() {
		if onComplete != nil {
			onComplete(drained.results)
		}
		close(drained.done)
	})
}

// emit queues a callback for the notifier. d.mu must be held.
func (d *Dispatcher) emit(fn func()) {
	d.callbacks = append(d.callbacks, fn)
	if !d.flushing {
		d.flushing = true
		go d.flush()
	}
}

func (d *Dispatcher) flush() {
	for {
		d.mu.Lock()
		if len(d.callbacks) == 0 {
			d.flushing = false
			d.mu.Unlock()
			return
		}
		fn := d.callbacks[0]
		d.callbacks[0] = nil
		d.callbacks = d.callbacks[1:]
		d.mu.Unlock()
		fn()
	}
}

// Wait blocks until the current drain cycle completes, including its
// completion callback, and returns that cycle's results. When the dispatcher
// is idle it returns the results of the last cycle.
func (d *Dispatcher) Wait(ctx context.Context) ([]types.UploadResult, error) {
	d.mu.Lock()
	c := d.current
	if c == nil {
		c = d.last
	}
	d.mu.Unlock()
	if c == nil {
		return nil, nil
	}
	select {
	case <-c.done:
		return c.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight returns the number of admitted, unfinished tasks.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Pending returns the number of tasks waiting for admission.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Busy reports whether any task is pending or in flight.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0 || d.inFlight > 0
}

// Ceiling returns the concurrency ceiling.
func (d *Dispatcher) Ceiling() int {
	return d.ceiling
}
