package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/inkwell/internal/config"
	"github.com/debemdeboas/inkwell/internal/draftcache"
	"github.com/debemdeboas/inkwell/internal/util/compression"
)

type commandContext struct {
	configPath string
	store      *draftcache.Store

	// openStore is replaced in tests.
	openStore func(cfg *config.Config) (*draftcache.Store, error)
}

func newCommandContext() *commandContext {
	return &commandContext{openStore: openConfiguredStore}
}

func openConfiguredStore(cfg *config.Config) (*draftcache.Store, error) {
	compressor, err := compression.New(cfg.Cache.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Backend != config.CacheBadger {
		return nil, fmt.Errorf("cache backend %q is not persistent", cfg.Cache.Backend)
	}
	kv, err := draftcache.OpenBadger(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open draft cache at %s: %w", cfg.Cache.Path, err)
	}
	return draftcache.NewStore(kv, compressor), nil
}

func (c *commandContext) ensureStore() (*draftcache.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	if err := config.LoadConfig(c.configPath); err != nil {
		return nil, err
	}
	store, err := c.openStore(config.AppConfig)
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

func (c *commandContext) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "draftctl",
		Short:         "Inspect the editor draft cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "config.yaml", "Configuration file path")

	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newDiscardCommand(ctx))

	return rootCmd
}
