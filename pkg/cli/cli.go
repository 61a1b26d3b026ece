// Package cli wires the command line interface: flag parsing, dependency
// construction and JSON output for every command.
package cli

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// Local development convenience; a missing .env is fine
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "notecraft",
		Usage: "Content generation assistant for Xiaohongshu-style posts",
		Commands: []*cli.Command{
			generateCommand(),
			quickCommand(),
			fullCommand(),
			refineCommand(),
			memoryCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
