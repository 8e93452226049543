// Command catalogd runs the schema operation dispatcher as a standalone
// process: it loads configuration, wires the entity store, catalog
// registry and dispatcher core together, and serves an ops-only
// health/metrics surface. It never exposes the five dispatcher operations
// over HTTP or CLI; that façade is out of scope for this module.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/metabridge/catalogd/internal/clusterinfo"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "catalogd",
		Short: "Schema operation dispatcher for a federated metadata catalog service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the dispatcher's YAML configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher and its ops-only health/metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("catalogd %s (commit: %s, built: %s, %s)\n",
				clusterinfo.Version, clusterinfo.GitCommit, clusterinfo.BuildTime, runtime.Version())
		},
	}

	root.AddCommand(serveCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
