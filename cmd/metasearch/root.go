package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "metasearch",
		Short: "Meta-search engine aggregating results from many upstream engines",
		Long: `metasearch sends one query to many search engines concurrently, merges
their answers into a single ranked list and serves it as JSON.

Configuration is read from --config (default ./config.yaml, or
$METASEARCH_CONFIG). METASEARCH_* variables override config values.`,
		Version:       version,
		SilenceUsage:  true,
	}
	cmd.SetVersionTemplate("metasearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newEncryptCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv("METASEARCH_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
