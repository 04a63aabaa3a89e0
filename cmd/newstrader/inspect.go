package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"newstrader/internal/market"
	"newstrader/internal/report"
	"newstrader/internal/state"
	"newstrader/internal/universe"
)

func newStateCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state [symbol]",
		Short: "Print the persisted state document, or one symbol of it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			store := state.NewStore(cfg.App.StateFile, cfg.News.MaxSeenPerSymbol, cfg.Price.HistoryPoints)
			if err := store.Load(); err != nil {
				return err
			}
			var out any = store.Export()
			if len(args) == 1 {
				out = store.Snapshot(strings.ToUpper(args[0]))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newUniverseCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "universe",
		Short: "Resolve and print the symbol universe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			var watchlist *universe.Watchlist
			if cfg.Universe.WatchlistFile != "" {
				if watchlist, err = universe.LoadWatchlist(cfg.Universe.WatchlistFile); err != nil {
					return err
				}
			}
			var fetcher *universe.Fetcher
			if cfg.Universe.SP500 {
				fetcher = universe.NewFetcher()
			}
			r := universe.NewResolver(cfg.Universe, fetcher, watchlist)
			r.Load(cmd.Context())
			for _, sym := range r.Symbols() {
				fmt.Fprintln(cmd.OutOrStdout(), sym)
			}
			return nil
		},
	}
}

func newChartCmd(ro *rootOptions) *cobra.Command {
	var (
		out string
		png bool
	)
	cmd := &cobra.Command{
		Use:   "chart <symbol>",
		Short: "Render the recorded price series and brackets of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			store := state.NewStore(cfg.App.StateFile, cfg.News.MaxSeenPerSymbol, cfg.Price.HistoryPoints)
			if err := store.Load(); err != nil {
				return err
			}
			sym := strings.ToUpper(args[0])
			html, err := report.RenderHTML(report.ChartInput{
				Symbol:   sym,
				State:    store.Snapshot(sym),
				Location: market.NewHours(cfg.Price.MarketTimezone).Location(),
			})
			if err != nil {
				return err
			}
			body, ext := html, ".html"
			if png {
				if body, err = report.RenderPNG(cmd.Context(), html); err != nil {
					return err
				}
				ext = ".png"
			}
			if out == "" {
				out = sym + ext
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <SYMBOL>.html or .png)")
	cmd.Flags().BoolVar(&png, "png", false, "render a PNG screenshot through headless Chrome")
	return cmd
}
