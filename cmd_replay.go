package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"pmctrace/internal/scenario"
)

type replayOptions struct {
	regionTable string
	format      string
	diagnostics bool
	noCheck     bool
}

func (a *app) replayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <scenario.toml>...",
		Short: "Replay scripted event streams through the correlation engine",
		Long: `replay feeds each scenario's markers and kernel events through a real ` +
			`session and prints the totals of every region. Scenarios that declare ` +
			`expectations are checked unless --no-check is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("region-table") {
				opts.regionTable = a.cfg.Tracer.RegionTable
			}
			return a.replay(cmd.OutOrStdout(), args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.regionTable, "region-table", "", "concurrent map backing the region table")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "output format: table or csv")
	cmd.Flags().BoolVar(&opts.diagnostics, "diagnostics", false, "print each session's diagnostic log")
	cmd.Flags().BoolVar(&opts.noCheck, "no-check", false, "print totals without checking expectations")
	return cmd
}

func (a *app) replay(out io.Writer, files []string, opts replayOptions) error {
	w, err := newResultWriter(opts.format, out)
	if err != nil {
		return err
	}

	diagBytes := 0
	if opts.diagnostics {
		diagBytes = a.cfg.Tracer.Diagnostics.MaxBytes
	}

	type outcome struct {
		name string
		log  string
		err  error
	}
	var outcomes []outcome

	w.SetHeader([]string{"Scenario", "Region", "Complete", "Cycles", "Switches", "Counters"})
	for _, file := range files {
		sc, err := scenario.Load(file)
		if err != nil {
			return err
		}
		res, err := scenario.Run(sc, scenario.RunOptions{
			RegionTable:     opts.regionTable,
			DiagnosticBytes: diagBytes,
			Logger:          a.log,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}

		for _, name := range sc.Regions() {
			r := res.Regions[name]
			row := []string{sc.Name, name, strconv.FormatBool(r.Complete), "-", "-", "-"}
			if r.Complete {
				row[3] = strconv.FormatUint(r.Totals.CyclesElapsed, 10)
				row[4] = strconv.FormatUint(r.Totals.ContextSwitchCount, 10)
				row[5] = fmt.Sprint(r.Totals.Values())
			}
			w.Append(row)
		}

		o := outcome{name: sc.Name, log: res.DiagnosticLog}
		if !opts.noCheck {
			o.err = sc.Check(res)
		} else if res.Err != nil {
			o.err = res.Err
		}
		outcomes = append(outcomes, o)
	}
	w.Render()

	failed := 0
	for _, o := range outcomes {
		if opts.diagnostics {
			fmt.Fprintf(out, "\n--- %s diagnostic log ---\n%s", o.name, o.log)
		}
		if o.err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", o.name, o.err)
			continue
		}
		a.log.Debug().Str("scenario", o.name).Msg("Scenario passed")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(outcomes))
	}
	fmt.Fprintf(out, "ok: %d scenarios\n", len(outcomes))
	return nil
}
