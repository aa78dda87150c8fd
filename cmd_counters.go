package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"pmctrace/internal/counters"
)

func (a *app) countersCmd() *cobra.Command {
	var (
		catalog string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "List the hardware counters this machine can attach to trace events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("catalog") {
				catalog = a.cfg.Tracer.Catalog
			}
			cat, err := counters.ForCatalog(catalog)
			if err != nil {
				return err
			}
			sources, err := cat.Sources()
			if err != nil {
				return fmt.Errorf("failed to list %s counters: %w", cat.Name(), err)
			}

			w, err := newResultWriter(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			writeSources(w, counters.Sorted(sources))
			return nil
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "auto", "counter catalog: auto, etw or perf")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or csv")
	return cmd
}

func writeSources(w ResultWriter, sources []counters.Source) {
	w.SetHeader([]string{"Name", "Index", "Min interval", "Max interval"})
	for _, s := range sources {
		w.Append([]string{
			s.Name,
			strconv.FormatUint(uint64(s.Index), 10),
			strconv.FormatUint(uint64(s.MinInterval), 10),
			strconv.FormatUint(uint64(s.MaxInterval), 10),
		})
	}
	w.Render()
}
