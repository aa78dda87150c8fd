package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"pmctrace/internal/counters"
	etwmain "pmctrace/internal/etw"
	"pmctrace/internal/logger"
	"pmctrace/internal/metrics"
	"pmctrace/internal/pmc"
	"pmctrace/internal/tracer"
)

type runOptions struct {
	workload
	format string
	serve  bool
	linger time.Duration
}

func (a *app) runCmd() *cobra.Command {
	opts := runOptions{workload: workload{seed: 1}}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Measure a branchy buffer scan on several threads with the live kernel trace",
		Long: `run starts a kernel trace session with the configured counters, has each ` +
			`worker thread measure repeated scans of its own random buffer and prints ` +
			`the best result per worker. Requires Windows and administrator rights.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("serve") {
				opts.serve = a.cfg.Server.Enabled
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "number of measuring threads")
	cmd.Flags().IntVarP(&opts.regions, "regions", "n", 100, "regions measured per worker")
	cmd.Flags().IntVar(&opts.bufferSize, "buffer-size", 1<<20, "bytes scanned per region")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "output format: table or csv")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "serve metrics and the diagnostic log while running")
	cmd.Flags().DurationVar(&opts.linger, "linger", 0, "keep serving this long after the workers finish")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, opts runOptions) error {
	if opts.workers < 1 || opts.regions < 1 || opts.bufferSize < 1 {
		return errors.New("workers, regions and buffer-size must be positive")
	}
	tc := a.cfg.Tracer

	cat, err := counters.ForCatalog(tc.Catalog)
	if err != nil {
		return err
	}
	mapping, err := tracer.ResolveCounters(cat, tc.Counters)
	if err != nil {
		return err
	}

	src, err := etwmain.NewSource(tc.SessionName)
	if err != nil {
		return err
	}

	backoff, _ := tc.Wait.BackoffDuration()
	diagBytes := 0
	if tc.Diagnostics.Enabled {
		diagBytes = tc.Diagnostics.MaxBytes
	}
	s, err := tracer.BeginSession(mapping, src, tracer.Options{
		CPUCount:        tc.CPUCount,
		RegionTable:     tc.RegionTable,
		DiagnosticBytes: diagBytes,
		Wait:            pmc.WaitPolicy{SpinLimit: tc.Wait.SpinLimit, Backoff: backoff},
		Logger:          logger.NewLoggerWithContext("session"),
	})
	if err != nil {
		return err
	}
	atexit.Register(func() { _ = s.End() })
	defer s.End()

	a.log.Info().Str("session", s.ID().String()).Strs("counters", mapping.Names).
		Int("cpus", s.CPUCount()).Int("workers", opts.workers).Msg("Measuring")

	var srv *http.Server
	if opts.serve {
		reg := prometheus.NewRegistry()
		engine := metrics.NewEngineCollector()
		engine.Add(s.ID().String(), s)
		reg.MustRegister(engine, etwmain.NewETWStatsCollector(src))
		srv = newServer(a.cfg.Server, reg, s.DiagnosticLog)
		go func() {
			a.log.Info().Str("address", srv.Addr).Msg("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	results, werr := opts.workload.run(ctx, s)

	if srv != nil {
		if opts.linger > 0 && werr == nil {
			a.log.Info().Dur("linger", opts.linger).Msg("Workers finished, still serving")
			select {
			case <-time.After(opts.linger):
			case <-ctx.Done():
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
		cancel()
	}

	if err := s.End(); err != nil {
		return err
	}
	if err := s.Err(); err != nil {
		return err
	}
	if werr != nil {
		return werr
	}

	w, err := newResultWriter(opts.format, out)
	if err != nil {
		return err
	}
	writeWorkerResults(w, mapping.Names, results)
	return nil
}

func writeWorkerResults(w ResultWriter, names []string, results []workerResult) {
	header := []string{"Worker", "Thread", "Regions", "Best cycles", "Switches"}
	w.SetHeader(append(header, names...))
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Worker),
			strconv.FormatUint(uint64(r.Thread), 10),
			strconv.Itoa(r.Measured),
			strconv.FormatUint(r.Best.CyclesElapsed, 10),
			strconv.FormatUint(r.Best.ContextSwitchCount, 10),
		}
		for _, v := range r.Best.Values() {
			row = append(row, strconv.FormatUint(v, 10))
		}
		w.Append(row)
	}
	w.Render()
}
