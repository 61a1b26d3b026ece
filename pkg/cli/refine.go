package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/urfave/cli/v3"
)

func refineCommand() *cli.Command {
	var (
		cfg       config
		input     model.GenerateInput
		fromStdin bool
	)

	flags := inputFlags(&input)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "Content to refine (reads stdin with --stdin)",
			Destination: &input.ExistingContent,
		},
		&cli.BoolFlag{
			Name:        "stdin",
			Usage:       "Read initial content from stdin",
			Destination: &fromStdin,
		},
	)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "refine",
		Usage: "Interactively rewrite content against your feedback",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			content := input.ExistingContent
			if fromStdin {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return goerr.Wrap(err, "failed to read stdin")
				}
				content = string(data)
			}
			if strings.TrimSpace(content) == "" {
				return goerr.New("content is required (use --content or --stdin)")
			}

			agent, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			rl, err := readline.New("feedback> ")
			if err != nil {
				return goerr.Wrap(err, "failed to open terminal")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "%s\n\n", content)
			fmt.Fprintln(c.Root().Writer, "Enter feedback to refine, empty line or 'exit' to finish.")

			for {
				line, err := rl.Readline()
				if err != nil { // io.EOF or readline.ErrInterrupt
					break
				}

				feedback := strings.TrimSpace(line)
				if feedback == "" || feedback == "exit" {
					break
				}

				var refined string
				var refineErr error
				withSpinner("refining...", func() {
					refined, refineErr = agent.Refine(ctx, content, feedback, input.Framework)
				})
				if refineErr != nil {
					return goerr.Wrap(refineErr, "refinement failed")
				}

				content = refined
				fmt.Fprintf(c.Root().Writer, "\n%s\n\n", content)
			}

			fmt.Fprintln(c.Root().Writer, "\nFinal content:")
			fmt.Fprintln(c.Root().Writer, content)
			return nil
		},
	}
}
