package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		limit     int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session to list search histories for",
			Sources:     cli.EnvVars("TANDEM_SESSION_ID"),
			Destination: &sessionID,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of rows (0 for all)",
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "List web search audit rows for a session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			histories, err := repo.ListSearchHistory(ctx, model.SessionID(sessionID), int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list search histories")
			}

			if len(histories) == 0 {
				fmt.Fprintf(c.Root().Writer, "No search histories found for session %s\n", sessionID)
				return nil
			}

			for _, h := range histories {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\n",
					h.ID,
					h.CreatedAt.Format("2006-01-02 15:04:05"),
					h.Query,
					strings.Join(h.SourceURLs, ","),
				)
			}

			return nil
		},
	}
}
