// Command prune-stream is an AWS Lambda function that cascades deletes for
// items removed from primary tables, as delivered by DynamoDB Streams.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/viper"

	"github.com/jacentio/prune/cascade"
	"github.com/jacentio/prune/internal/config"
	"github.com/jacentio/prune/store"
	"github.com/jacentio/prune/stream"
)

func main() {
	handler, err := newHandler(context.Background())
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	lambda.Start(handler.HandleRemove)
}

func newHandler(ctx context.Context) (*stream.Handler, error) {
	v := viper.New()
	if err := config.InitConfig(v, os.Getenv("PRUNE_CONFIG")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))

	client, err := cfg.AWS.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	s := store.New(client, cfg.StoreConfig())
	return stream.NewHandler(cascade.NewFromStore(s, logger), cfg.Registry(), cfg.Store.IDAttribute, logger), nil
}
