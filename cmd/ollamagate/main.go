package main

import (
	"log"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "ollamagate",
		Short:        "Gateway that converts vendor-neutral prompts for Ollama",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (env vars override it)")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newConvertCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
