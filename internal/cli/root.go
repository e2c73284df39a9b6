// Package cli implements the prune command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/prune/cascade"
	"github.com/jacentio/prune/internal/config"
	"github.com/jacentio/prune/store"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=...".
var version = "dev"

// cfgFile is the --config flag.
var cfgFile string

// newAPI creates the DynamoDB client. Tests replace it with a fake.
var newAPI = func(ctx context.Context, c config.AWSConfig) (store.API, error) {
	return c.NewClient(ctx)
}

var rootCmd = &cobra.Command{
	Use:   "prune",
	Short: "Cascading deletes for DynamoDB relationship and chunk tables",
	Long: `prune deletes entities from their DynamoDB table together with every
relationship record that references them and, for binary-backed kinds,
their chunks. Relationship tables are discovered from the table catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./prune.yaml)")
	rootCmd.PersistentFlags().String("region", "", "AWS region")
	rootCmd.PersistentFlags().String("endpoint", "", "DynamoDB endpoint override")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// services holds what a command needs to talk to DynamoDB.
type services struct {
	config  *config.Config
	store   *store.Store
	deleter *cascade.Deleter
	kinds   *store.Registry
}

// loadServices reads configuration and connects to DynamoDB.
func loadServices(cmd *cobra.Command) (*services, error) {
	v := viper.New()
	if err := v.BindPFlag("aws.region", cmd.Root().PersistentFlags().Lookup("region")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("aws.endpoint", cmd.Root().PersistentFlags().Lookup("endpoint")); err != nil {
		return nil, err
	}
	if err := config.InitConfig(v, cfgFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	api, err := newAPI(cmd.Context(), cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
	s := store.New(api, cfg.StoreConfig())
	return &services{
		config:  cfg,
		store:   s,
		deleter: cascade.NewFromStore(s, logger),
		kinds:   cfg.Registry(),
	}, nil
}

// kind returns the configured kind for an entity type.
func (s *services) kind(entityType string) (store.Kind, error) {
	if entityType == "" {
		return nil, fmt.Errorf("--type is required")
	}
	k, ok := s.kinds.Lookup(entityType)
	if !ok {
		var known []string
		for _, k := range s.kinds.Kinds() {
			known = append(known, k.EntityType())
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown entity type %q (configured: %s)", entityType, strings.Join(known, ", "))
	}
	return k, nil
}
