package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/ingest"
	"github.com/tandemlab/tandem/pkg/server"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("TANDEM_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, searchFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			logger := logging.From(ctx)

			orchestrator, compactor, index, gemini, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			handler := server.New(server.Input{
				Orchestrator: orchestrator,
				Compactor:    compactor,
				Ingestor:     ingest.New(index, gemini),
			})

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", addr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "server failed")
				}
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "graceful shutdown failed")
				}
			}

			return nil
		},
	}
}
