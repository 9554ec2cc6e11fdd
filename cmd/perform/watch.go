package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/linkcache"
	"github.com/wippyai/dsp-runtime/metrics"
	"github.com/wippyai/dsp-runtime/program"
)

var watchFlags struct {
	debounce    time.Duration
	metricsAddr string
	cacheSize   int
}

var watchCmd = &cobra.Command{
	Use:   "watch <program.yaml>",
	Short: "Relink a program every time it changes",
	Long: `Load and link a program, then reload it whenever the file is saved.

Linked artifacts are kept in an in-memory linker cache, so reverting an edit
relinks from the cache. With --metrics-addr, performer and cache metrics are
served in the Prometheus text format on /metrics.

Examples:
  perform watch tremolo.yaml
  perform watch tremolo.yaml -b jit --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchFlags.debounce, "debounce", 100*time.Millisecond, "wait this long after the last change before reloading")
	watchCmd.Flags().StringVar(&watchFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().IntVar(&watchFlags.cacheSize, "cache-entries", linkcache.DefaultMaxEntries, "linker cache capacity")
}

// reloader reloads one program file into one performer.
type reloader struct {
	path  string
	perf  dspruntime.Performer
	cache *linkcache.Memory
	opts  dspruntime.LinkOptions
	out   io.Writer
}

func (r *reloader) reload() error {
	start := time.Now()
	prog, err := program.DecodeFile(r.path)
	if err != nil {
		r.perf.Unload()
		return err
	}

	before := r.cache.Stats()
	var msgs diag.List
	err = prepare(r.perf, &msgs, prog, r.opts, r.cache, nil)
	printMessages(r.out, &msgs)
	if err != nil {
		return err
	}

	source := "compiled"
	if r.cache.Stats().Hits > before.Hits {
		source = "cached"
	}
	p := newPainter(r.out)
	fmt.Fprintf(r.out, "%s %s linked (%s) in %s\n",
		p.paint(nameStyle, prog.Name()), p.paint(helpStyle, prog.ID()), source, time.Since(start).Round(time.Microsecond))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	opts, err := linkOptions()
	if err != nil {
		return err
	}
	factory, release, err := newFactory(ctx, rootFlags.backend)
	if err != nil {
		return err
	}
	defer release()

	cache := linkcache.NewMemory(&linkcache.Config{MaxEntries: watchFlags.cacheSize})
	if watchFlags.metricsAddr != "" {
		m := metrics.New(nil, nil)
		m.RegisterCache("watch", cache)
		factory = m.Instrument(factory)

		srv := &http.Server{
			Addr:              watchFlags.metricsAddr,
			Handler:           promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				dspruntime.Logger().Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	r := &reloader{
		path:  path,
		perf:  factory.CreatePerformer(),
		cache: cache,
		opts:  opts,
		out:   cmd.OutOrStdout(),
	}
	defer r.perf.Unload()
	if err := r.reload(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}

	return watchFile(ctx, path, watchFlags.debounce, func() {
		if err := r.reload(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	})
}

// watchFile calls onChange on the calling goroutine after path changes and
// stays quiet for the debounce interval. It returns when ctx is done.
// The parent directory is watched so editors that replace the file on save
// are followed.
func watchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != path || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			dspruntime.Logger().Debug("program file changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			timer.Reset(debounce)

		case <-timer.C:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			dspruntime.Logger().Warn("file watcher error", zap.Error(err))
		}
	}
}
