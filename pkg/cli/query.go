package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/urfave/cli/v3"
)

func queryCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		stream    bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session to continue (empty starts a new one)",
			Sources:     cli.EnvVars("TANDEM_SESSION_ID"),
			Destination: &sessionID,
		},
		&cli.BoolFlag{
			Name:        "stream",
			Usage:       "Print the answer incrementally",
			Destination: &stream,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, searchFlags(&cfg)...)

	return &cli.Command{
		Name:      "query",
		Usage:     "Ask one question",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.New("question is required")
			}

			ctx = cfg.withLogger(ctx)

			orchestrator, _, _, _, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			if stream {
				result, err := orchestrator.StreamInvoke(ctx, model.SessionID(sessionID), question, func(text string) {
					fmt.Fprint(c.Root().Writer, text)
				})
				if err != nil {
					return goerr.Wrap(err, "query failed")
				}
				fmt.Fprintf(c.Root().Writer, "\n\nsession: %s\n", result.SessionID)
				return nil
			}

			result, err := orchestrator.Invoke(ctx, model.SessionID(sessionID), question)
			if err != nil {
				return goerr.Wrap(err, "query failed")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", result.FinalResponse)
			fmt.Fprintf(c.Root().Writer, "\nsession: %s\n", result.SessionID)
			fmt.Fprintf(c.Root().Writer, "reasoning: %s\n", result.Reasoning)
			if len(result.Sources) > 0 {
				fmt.Fprintf(c.Root().Writer, "sources: %s\n", strings.Join(result.Sources, ", "))
			}
			return nil
		},
	}
}
