package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/term"

	"github.com/moyoez/productshot/dispatcher"
	"github.com/moyoez/productshot/form"
	"github.com/moyoez/productshot/metrics"
	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/transfer"
	"github.com/moyoez/productshot/types"
	"github.com/moyoez/productshot/ui"
)

const tracerName = "github.com/moyoez/productshot/cli"

type uploadOptions struct {
	productID       int64
	category        string
	barcodeNumber   string
	notes           string
	tui             bool
	retry           bool
	metricsTextfile string
}

func (o *uploadOptions) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int64Var(&o.productID, "product", 0, "product id (required)")
	flags.StringVar(&o.category, "category", "", "destination of every file: barcode, nutrition, ingredients, front, back, side, other")
	flags.StringVar(&o.barcodeNumber, "barcode-number", "", "barcode number sent with barcode images")
	flags.StringVar(&o.notes, "notes", "", "notes sent with every image")
	_ = cmd.MarkFlagRequired("product")
}

func (a *app) uploadCmd() *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload --product N [--category C] files...",
		Short: "Upload images to a product in the background",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := form.New(opts.productID)
			if err := prepareForm(f, args, opts); err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			run := newUploadRun(a.client(ctx), f, a.cfg.Client.Concurrency, opts.tui,
				metrics.NewUploads(metrics.WithRegistry(registry)))
			err := run.execute(ctx, opts.retry)

			if opts.metricsTextfile != "" {
				if werr := prometheus.WriteToTextfile(opts.metricsTextfile, registry); werr != nil {
					tool.DefaultLogger.Warnf("Failed to write metrics: %v", werr)
				}
			}
			if err != nil {
				return err
			}
			if failed := printSections(f); failed > 0 {
				return errFailed
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show a progress view")
	cmd.Flags().BoolVar(&opts.retry, "retry", false, "retry failed uploads once as new tasks")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write upload metrics in Prometheus text format to this file")
	return cmd
}

// prepareForm attaches files to sections: all to --category, or one at a time through the destination prompt.
func prepareForm(f *form.Form, paths []string, opts *uploadOptions) error {
	files := make([]types.FileInfo, 0, len(paths))
	for _, p := range paths {
		info, err := tool.GetFileInfoFromPath(p, false)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if !info.IsImage() {
			tool.DefaultLogger.Warnf("%s is %s, no preview will be available", info.FileName, info.ContentType)
		}
		files = append(files, info)
	}

	switch {
	case opts.category != "":
		c, err := types.ParseCategory(opts.category)
		if err != nil {
			return err
		}
		for _, file := range files {
			if _, err := f.Assign(c, file); err != nil {
				return err
			}
		}
	case term.IsTerminal(int(os.Stdin.Fd())):
		if _, err := f.Distribute(files, promptDestination); err != nil {
			return err
		}
	default:
		return errors.New("--category is required when stdin is not a terminal")
	}

	for _, s := range f.Sections() {
		if s.File == nil {
			continue
		}
		if err := f.SetMetadata(s.ID, opts.barcodeNumber, opts.notes); err != nil {
			return err
		}
	}
	return nil
}

// promptDestination asks where the first remaining file goes.
func promptDestination(remaining []types.FileInfo) (types.Category, bool) {
	options := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		options[i] = c.DisplayName()
	}
	var choice int
	prompt := &survey.Select{
		Message: fmt.Sprintf("Destination for %s (%d left):", remaining[0].FileName, len(remaining)),
		Options: options,
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", false
	}
	return types.Categories[choice], true
}

// uploadRun feeds a form's tasks through a dispatcher and reports results
// either to a progress view or to the log.
type uploadRun struct {
	form       *form.Form
	dispatcher *dispatcher.Dispatcher
	tui        bool

	mu      sync.Mutex
	program *tea.Program

	// applyMu orders a retry's Track before its result is applied
	applyMu sync.Mutex
}

func newUploadRun(client *transfer.Client, f *form.Form, concurrency int, tui bool, m *metrics.Uploads) *uploadRun {
	r := &uploadRun{form: f, tui: tui}
	onProgress, onResult, onComplete := ui.Callbacks(r)
	r.dispatcher = dispatcher.New(client,
		dispatcher.WithConcurrency(concurrency),
		dispatcher.WithMetrics(m),
		dispatcher.WithTracer(otel.Tracer(tracerName)),
		dispatcher.OnProgress(onProgress),
		dispatcher.OnResult(func(res types.UploadResult) {
			r.applyMu.Lock()
			f.Apply(res)
			r.applyMu.Unlock()
			onResult(res)
		}),
		dispatcher.OnComplete(onComplete),
	)
	return r
}

// Send forwards to the progress view when one runs, otherwise logs.
func (r *uploadRun) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
		return
	}
	switch m := msg.(type) {
	case ui.ProgressMsg:
		tool.DefaultLogger.Debugf("[Upload] %s %d%%", m.TaskID, m.Percent)
	case ui.ResultMsg:
		if m.Success {
			tool.DefaultLogger.Infof("[Upload] %s -> %s: image %d", m.Task.File.FileName, m.Task.SectionID, m.ImageID)
		} else {
			tool.DefaultLogger.Errorf("[Upload] %s -> %s: %s", m.Task.File.FileName, m.Task.SectionID, m.Error)
		}
	}
}

func (r *uploadRun) setProgram(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.program = p
}

// execute runs one drain cycle and, when retry is set, a second one for the failures.
func (r *uploadRun) execute(ctx context.Context, retry bool) error {
	results, err := r.queue(ctx, "Uploading", r.form.Tasks())
	if err != nil {
		return err
	}
	summary := types.Summarize(results)
	tool.DefaultLogger.Infof("[Upload] %d/%d uploaded, %d failed", summary.Success, summary.Total, summary.Failed)
	if !retry || summary.Failed == 0 {
		return nil
	}

	_, err = r.cycle(ctx, "Retrying failed uploads", nil, func() []types.UploadTask {
		r.applyMu.Lock()
		defer r.applyMu.Unlock()
		retried := r.dispatcher.RetryAll(results...)
		for _, task := range retried {
			if err := r.form.Track(task); err != nil {
				tool.DefaultLogger.Warnf("[Upload] %v", err)
			}
		}
		return retried
	})
	return err
}

// queue runs tasks as one batch and returns every result of it.
func (r *uploadRun) queue(ctx context.Context, title string, tasks []types.UploadTask) ([]types.UploadResult, error) {
	return r.cycle(ctx, title, tasks, func() []types.UploadTask {
		return r.dispatcher.EnqueueAll(tasks...)
	})
}

// cycle enqueues through start and waits for the drain. Known tasks are shown
// from the beginning; others appear in the view once start returns them.
func (r *uploadRun) cycle(ctx context.Context, title string, known []types.UploadTask, start func() []types.UploadTask) ([]types.UploadResult, error) {
	if !r.tui {
		if len(start()) == 0 {
			return nil, nil
		}
		return r.dispatcher.Wait(ctx)
	}

	p := tea.NewProgram(ui.New(title, known), tea.WithContext(ctx))
	r.setProgram(p)
	started := make(chan int, 1)
	go func() {
		tasks := start()
		started <- len(tasks)
		if len(tasks) == 0 {
			p.Quit()
			return
		}
		for _, t := range tasks {
			p.Send(ui.TaskMsg(t))
		}
	}()
	final, err := p.Run()
	r.setProgram(nil)
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		tool.DefaultLogger.Warnf("Progress view stopped: %v", err)
	}
	if n := <-started; n == 0 {
		return nil, nil
	}
	if m, ok := final.(ui.Model); ok && m.Interrupted() {
		tool.DefaultLogger.Infof("Progress view closed, waiting for uploads to finish")
	}
	return r.dispatcher.Wait(ctx)
}

// printSections writes one line per section holding a file and returns how many failed.
func printSections(f *form.Form) int {
	failed := 0
	for _, s := range f.Sections() {
		if s.File == nil {
			continue
		}
		switch {
		case s.Uploaded:
			fmt.Printf("ok      %-16s %-32s image %d %s\n", s.ID, s.File.FileName, s.ImageID, s.ImageURL)
		case s.Error != "":
			failed++
			fmt.Printf("failed  %-16s %-32s %s\n", s.ID, s.File.FileName, s.Error)
		default:
			fmt.Printf("pending %-16s %s\n", s.ID, s.File.FileName)
		}
	}
	return failed
}
