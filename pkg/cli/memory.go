package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/memory"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/m-mizutani/notecraft/pkg/usecase/compose"
	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect and manage memorized posts",
		Commands: []*cli.Command{
			memoryListCommand(),
			memoryShowCommand(),
			memorySearchCommand(),
			memoryBestCommand(),
			memoryDeleteCommand(),
			memoryClearCommand(),
			memoryStatsCommand(),
		},
	}
}

func memoryStore(ctx context.Context, cfg *config) (*memory.Store, error) {
	return cfg.newMemory(ctx, cfg.logger())
}

func memoryListCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "list",
		Usage: "List all memorized posts, most recent first",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := memoryStore(ctx, &cfg)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, store.GetAll())
		},
	}
}

func memoryShowCommand() *cli.Command {
	var (
		cfg config
		id  string
	)

	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Memory ID",
			Required:    true,
			Destination: &id,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show one memorized post",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := memoryStore(ctx, &cfg)
			if err != nil {
				return err
			}

			rec := store.GetByID(model.MemoryID(id))
			if rec == nil {
				return goerr.New("memory not found", goerr.V("id", id))
			}
			return printJSON(c.Root().Writer, rec)
		},
	}
}

func memorySearchCommand() *cli.Command {
	var (
		cfg   config
		query string
		limit int64
	)

	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Similarity query text",
			Required:    true,
			Destination: &query,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum results",
			Value:       5,
			Destination: &limit,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Find memorized posts similar to a query",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := memoryStore(ctx, &cfg)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, store.RetrieveSimilar(query, int(limit)))
		},
	}
}

func memoryBestCommand() *cli.Command {
	var (
		cfg      config
		minScore float64
		limit    int64
	)

	flags := append([]cli.Flag{
		&cli.FloatFlag{
			Name:        "min-score",
			Usage:       "Minimum quality score",
			Value:       compose.QualityThreshold,
			Destination: &minScore,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum results",
			Value:       10,
			Destination: &limit,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "best",
		Usage: "List the highest scored posts",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := memoryStore(ctx, &cfg)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, store.HighQuality(minScore, int(limit)))
		},
	}
}

func memoryDeleteCommand() *cli.Command {
	var (
		cfg config
		id  string
	)

	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Memory ID",
			Required:    true,
			Destination: &id,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "delete",
		Usage: "Delete one memorized post",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := memoryStore(ctx, &cfg)
			if err != nil {
				return err
			}

			store.Delete(ctx, model.MemoryID(id))
			return printJSON(c.Root().Writer, map[string]any{"deleted": id})
		},
	}
}

func memoryClearCommand() *cli.Command {
	var (
		cfg   config
		force bool
	)

	flags := append([]cli.Flag{
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "Skip confirmation",
			Destination: &force,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every memorized post",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if !force {
				return goerr.New("refusing to clear memory without --force")
			}

			store, err := memoryStore(ctx, &cfg)
			if err != nil {
				return err
			}

			count := store.Len()
			store.Clear(ctx)
			return printJSON(c.Root().Writer, map[string]any{"cleared": count})
		},
	}
}

func memoryStatsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize the memory store",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := memoryStore(ctx, &cfg)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, store.Stats())
		},
	}
}
