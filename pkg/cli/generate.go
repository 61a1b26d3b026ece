package cli

import (
	"context"

	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/m-mizutani/notecraft/pkg/usecase/compose"
	"github.com/urfave/cli/v3"
)

// inputFlags covers the shared generation inputs
func inputFlags(input *model.GenerateInput) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "keywords",
			Aliases:     []string{"k"},
			Usage:       "Topic keywords, separated by comma",
			Destination: &input.Keywords,
		},
		&cli.StringFlag{
			Name:        "message",
			Aliases:     []string{"m"},
			Usage:       "Free-form description of what to write",
			Destination: &input.UserMessage,
		},
		&cli.StringFlag{
			Name:        "image",
			Aliases:     []string{"i"},
			Usage:       "Reference image (gs:// URI or data URI)",
			Destination: &input.UploadedImageURL,
		},
		&cli.StringFlag{
			Name:        "framework",
			Aliases:     []string{"f"},
			Usage:       "Pin a content framework instead of auto-matching",
			Destination: &input.Framework,
		},
	}
}

func generateCommand() *cli.Command {
	var (
		cfg   config
		input model.GenerateInput
	)

	flags := inputFlags(&input)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "generate",
		Usage: "Run the full generation pipeline once",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			agent, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			var resp *compose.Response
			withSpinner("generating content...", func() {
				resp = agent.Execute(ctx, &input)
			})

			return printJSON(c.Root().Writer, resp)
		},
	}
}

func quickCommand() *cli.Command {
	var (
		cfg   config
		input model.GenerateInput
	)

	flags := inputFlags(&input)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "quick",
		Usage: "Draft content in a single call, no quality gate or images",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			agent, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			var resp *compose.Response
			withSpinner("drafting...", func() {
				resp = agent.Quick(ctx, &input)
			})

			return printJSON(c.Root().Writer, resp)
		},
	}
}

func fullCommand() *cli.Command {
	var (
		cfg   config
		input model.GenerateInput
	)

	flags := inputFlags(&input)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "full",
		Usage: "Iterate generation until the quality threshold is reached",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			agent, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			var resp *compose.Response
			withSpinner("generating with quality loop...", func() {
				resp = agent.Full(ctx, &input)
			})

			return printJSON(c.Root().Writer, resp)
		},
	}
}
