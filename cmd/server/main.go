package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"respkv/internal/config"
	"respkv/internal/server"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Default()

	root := &cobra.Command{
		Use:   "respkv",
		Short: "A RESP-compatible in-memory key-value server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg, logger)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.Dir, "dir", "", "directory containing the RDB file to load at startup")
	flags.StringVar(&cfg.DBFilename, "dbfilename", "", "RDB filename within --dir")
	flags.IntVar(&cfg.Port, "port", 6379, "TCP port to listen on")
	flags.StringVar(&cfg.ReplicaOf, "replicaof", "", `replicate from "<host> <port>"`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		logger.WithError(err).Fatal("server failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	srv := server.New(cfg, logger)
	return srv.Run(ctx)
}
