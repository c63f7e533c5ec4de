package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "photobook",
		Short:        "Photo ingestion and thumbnail derivation service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	root.AddCommand(serveCommand(), workerCommand(), migrateCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
