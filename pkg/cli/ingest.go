package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var (
		cfg      config
		manifest string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "manifest",
			Aliases:     []string{"m"},
			Usage:       "YAML manifest listing documents to ingest",
			Destination: &manifest,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest documents into the internal knowledge base",
		ArgsUsage: "[file ...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			files := c.Args().Slice()
			if manifest == "" && len(files) == 0 {
				return goerr.New("either a manifest or at least one file is required")
			}

			ctx = cfg.withLogger(ctx)

			ingestor, err := cfg.newIngestor(ctx)
			if err != nil {
				return err
			}

			total := 0
			if manifest != "" {
				n, err := ingestor.IngestManifest(ctx, manifest)
				if err != nil {
					return goerr.Wrap(err, "manifest ingestion failed")
				}
				total += n
			}

			for _, file := range files {
				n, err := ingestor.IngestFile(ctx, file)
				if err != nil {
					return goerr.Wrap(err, "file ingestion failed", goerr.V("file", file))
				}
				total += n
			}

			fmt.Fprintf(c.Root().Writer, "Ingested %d chunks\n", total)
			return nil
		},
	}
}
