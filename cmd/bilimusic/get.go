package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/download"
	"github.com/openmusicplayer/bilimusic/internal/relay"
)

func getCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <url>...",
		Short: "Download the audio of one or more videos and wait for them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return get(ctx, cfg, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&cfg.MaxParallel, "parallel", "p", cfg.MaxParallel, "maximum concurrent downloads (0 = unlimited)")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "extraction attempts per job")
	return cmd
}

func get(ctx context.Context, cfg *config.Config, urls []string, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	reqs := make([]download.Request, 0, len(urls))
	for _, u := range urls {
		reqs = append(reqs, download.Request{URL: u, Directory: cfg.DownloadDir})
	}

	console := newConsoleSink(out)
	a.relay.Add(console)
	a.start(ctx)

	ids, err := a.scheduler.SubmitBatch(reqs)
	console.expect(ids)
	if err != nil {
		a.Close(context.WithoutCancel(ctx))
		return err
	}

	select {
	case <-console.done:
	case <-ctx.Done():
		fmt.Fprintln(out, "interrupted, cancelling downloads")
	}

	// Cancels whatever is left and flushes the relay
	a.Close(context.WithoutCancel(ctx))

	if failed := console.failures(); failed > 0 {
		return fmt.Errorf("%d of %d downloads did not complete", failed, len(ids))
	}
	return nil
}

// consoleSink prints job progress for the get command and signals once every
// expected job has emitted its final event.
type consoleSink struct {
	out io.Writer

	mu       sync.Mutex
	labels   map[download.JobID]string
	pending  map[download.JobID]bool
	lastTens map[download.JobID]int
	failed   int
	finished map[download.JobID]bool
	done     chan struct{}
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{
		out:      out,
		labels:   make(map[download.JobID]string),
		pending:  make(map[download.JobID]bool),
		lastTens: make(map[download.JobID]int),
		finished: make(map[download.JobID]bool),
		done:     make(chan struct{}),
	}
}

// expect registers the jobs to wait for. Events for a job may arrive before
// expect runs, so final events seen earlier are honoured here.
func (c *consoleSink) expect(ids []download.JobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		c.labels[id] = fmt.Sprintf("[%d/%d]", i+1, len(ids))
		if !c.finished[id] {
			c.pending[id] = true
		}
	}
	if len(c.pending) == 0 {
		close(c.done)
	}
}

func (c *consoleSink) failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed + len(c.pending)
}

func (c *consoleSink) Name() string { return "console" }

func (c *consoleSink) Handle(ctx context.Context, ev download.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	label := c.labels[ev.JobID]
	if label == "" {
		label = "[" + shortID(ev.JobID) + "]"
	}

	switch ev.Kind {
	case download.EventStatus:
		switch ev.State {
		case download.StateCompleted:
		case download.StateCancelled:
			fmt.Fprintf(c.out, "%s cancelled\n", label)
			c.failed++
		case download.StateFailed:
		default:
			fmt.Fprintf(c.out, "%s %s\n", label, ev.Message)
		}
	case download.EventProgress:
		// One line per 10% keeps logs readable when piped
		if tens := ev.Percent / 10; tens > c.lastTens[ev.JobID] && ev.State == download.StateDownloading {
			c.lastTens[ev.JobID] = tens
			fmt.Fprintf(c.out, "%s %3d%%\n", label, ev.Percent)
		}
	case download.EventFinished:
		fmt.Fprintf(c.out, "%s saved %s\n", label, filepath.Base(ev.Path))
	case download.EventError:
		fmt.Fprintf(c.out, "%s failed: %s (%s)\n", label, ev.Message, ev.Code)
		c.failed++
	}

	if relay.IsFinal(ev) {
		delete(c.lastTens, ev.JobID)
		c.finished[ev.JobID] = true
		if c.pending[ev.JobID] {
			delete(c.pending, ev.JobID)
			if len(c.pending) == 0 {
				close(c.done)
			}
		}
	}
	return nil
}

func shortID(id download.JobID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}
