package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func contextCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session to inspect",
			Sources:     cli.EnvVars("TANDEM_SESSION_ID"),
			Destination: &sessionID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "context",
		Usage: "Show the conversational memory of a session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			record, err := memory.New(repo, gemini).Get(ctx, model.SessionID(sessionID))
			if err != nil {
				return goerr.Wrap(err, "failed to load context")
			}
			if record == nil {
				fmt.Fprintf(c.Root().Writer, "No context found for session %s\n", sessionID)
				return nil
			}

			fmt.Fprintf(c.Root().Writer, "mode: %s\n", record.Mode)
			if record.Mode == model.ContextModeSummary {
				fmt.Fprintf(c.Root().Writer, "\nsummary:\n%s\n", record.Summary)
			}

			visible := record.Visible()
			if len(visible) > 0 {
				fmt.Fprintf(c.Root().Writer, "\nrecent turns:\n")
				for _, e := range visible {
					fmt.Fprintf(c.Root().Writer, "[%s] Q: %s\n          A: %s\n",
						e.Timestamp.Format("2006-01-02 15:04:05"), e.Query, e.Response)
				}
			}

			return nil
		},
	}
}
