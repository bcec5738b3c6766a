package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/deckdoctor/internal"
	"github.com/starford/deckdoctor/internal/analysis"
	"github.com/starford/deckdoctor/internal/collection"
	"github.com/starford/deckdoctor/internal/deckservice"
	"github.com/starford/deckdoctor/internal/mcpserver"
	"github.com/starford/deckdoctor/internal/models"
	pkgconfig "github.com/starford/deckdoctor/pkg/config"
)

var stdout io.Writer = os.Stdout

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	path := cmd.String("config")
	cfg := internal.NewDefaultConfig()
	read, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !read {
		slog.Warn("config file not found, using defaults", slog.String("path", path))
	}
	return cfg, nil
}

// openApp loads the config and wires the application. One-shot commands log
// to stderr so stdout carries only their output.
func openApp(cmd *cli.Command) (*internal.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.New(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(kind, raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s id is required", kind)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}

// resolveDeck accepts a deck id or a deck name.
func resolveDeck(svc *deckservice.Service, ref string) (int64, error) {
	if ref == "" {
		return 0, errors.New("--deck is required")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	deck, err := svc.ResolveDeck(ref)
	if err != nil {
		return 0, err
	}
	return deck.ID, nil
}

func deckFlag() cli.Flag {
	return &cli.StringFlag{Name: "deck", Aliases: []string{"d"}, Usage: "Deck name or id"}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the REST API with live collection reloads",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
				return fmt.Errorf("app run error: %w", err)
			}
			return nil
		},
	}
}

func decksCommand() *cli.Command {
	return &cli.Command{
		Name:  "decks",
		Usage: "List decks, or the cards of one deck",
		Flags: []cli.Flag{deckFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if ref := cmd.String("deck"); ref != "" {
				id, err := resolveDeck(app.Service, ref)
				if err != nil {
					return err
				}
				cards, err := app.Service.DeckCards(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "ID\tQUESTION")
				for _, c := range cards {
					fmt.Fprintf(tw, "%d\t%s\n", c.ID, firstLine(c.Question))
				}
				return nil
			}

			fmt.Fprintln(tw, "ID\tNAME\tCARDS")
			for _, d := range app.Service.Decks(ctx) {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", d.ID, d.Name, d.Cards)
			}
			return nil
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a card as JSON with media inlined",
		ArgsUsage: "<card-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := parseID("card", cmd.Args().First())
			if err != nil {
				return err
			}
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			rc, err := app.Service.RenderCard(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(rc)
		},
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Review one card or a whole deck",
		Flags: []cli.Flag{
			deckFlag(),
			&cli.StringFlag{Name: "card", Usage: "Card id; overrides --deck"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Re-run the deck analysis whenever the collection changes"},
			&cli.BoolFlag{Name: "json", Usage: "Print results as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if raw := cmd.String("card"); raw != "" {
				id, err := parseID("card", raw)
				if err != nil {
					return err
				}
				review, err := app.Service.AnalyzeCard(ctx, id)
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(review)
				}
				return printResults([]models.CardAnalysis{review.Analysis})
			}

			deckID, err := resolveDeck(app.Service, cmd.String("deck"))
			if err != nil {
				return err
			}
			run := func() error {
				res, err := app.Service.AnalyzeDeck(ctx, deckID, reportProgress)
				if cmd.Bool("json") {
					if perr := printJSON(res); perr != nil {
						return perr
					}
				} else if perr := printResults(res.Results); perr != nil {
					return perr
				}
				fmt.Fprintf(os.Stderr, "status: %s\n", res.Status)
				return err
			}

			if err := run(); err != nil || !cmd.Bool("watch") {
				return err
			}

			cfg := app.Config.Collection
			return collection.Watch(ctx, cfg.Path, cfg.MediaDir, app.Logger, func() {
				if err := app.Service.Reload(ctx); err != nil {
					app.Logger.Warn("collection reload failed, keeping previous snapshot", slog.String("error", err.Error()))
					return
				}
				if err := run(); err != nil {
					app.Logger.Warn("deck analysis failed", slog.String("error", err.Error()))
				}
			})
		},
	}
}

func reportProgress(p analysis.Progress) {
	switch p.Kind {
	case analysis.ProgressCached:
		fmt.Fprintf(os.Stderr, "[%d/%d] card %d (cached)\n", p.Done, p.Total, p.CardID)
	case analysis.ProgressCompleted:
		fmt.Fprintf(os.Stderr, "[%d/%d] card %d\n", p.Done, p.Total, p.CardID)
	}
}

func printResults(results []models.CardAnalysis) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CARD\tSCORE\tISSUES\tSUGGESTED\tNOTE")
	for _, r := range results {
		if !r.OK() {
			fmt.Fprintf(tw, "%d\t-\t-\t-\t%s\n", r.CardID, r.Error)
			continue
		}
		note := ""
		switch {
		case r.Result.DeleteOriginal:
			note = "replace: " + r.Result.DeleteReason
		case r.FromCache:
			note = "cached"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\n", r.CardID, r.Result.Feedback.OverallScore,
			len(r.Result.Feedback.Issues), len(r.Result.SuggestedCards), note)
	}
	return tw.Flush()
}

func insightCommand() *cli.Command {
	return &cli.Command{
		Name:  "insight",
		Usage: "Aggregate a deck's reviews into a knowledge coverage report",
		Flags: []cli.Flag{deckFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			deckID, err := resolveDeck(app.Service, cmd.String("deck"))
			if err != nil {
				return err
			}
			res, err := app.Service.DeckInsight(ctx, deckID)
			if perr := printJSON(res); perr != nil {
				return perr
			}
			return err
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the analysis cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cache sizes",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					app, err := openApp(cmd)
					if err != nil {
						return err
					}
					defer app.Close()

					stats, err := app.Service.CacheStats(ctx)
					if err != nil {
						return err
					}
					return printJSON(stats)
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every cached review",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					app, err := openApp(cmd)
					if err != nil {
						return err
					}
					defer app.Close()

					if err := app.Service.ClearCache(ctx); err != nil {
						return err
					}
					fmt.Fprintln(stdout, "cache cleared")
					return nil
				},
			},
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio",
		Action: func(_ context.Context, cmd *cli.Command) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			return mcpserver.New(app.Service, version).ServeStdio()
		},
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
