package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ollamagate/internal/config"
	"ollamagate/internal/ollama"
	"ollamagate/internal/prompt"
)

func newConvertCmd(root *rootOptions) *cobra.Command {
	var (
		file            string
		systemMode      string
		legacyFunctions bool
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Print the Ollama chat messages for a prompt read from a file or stdin",
		Long: "Reads a JSON array of vendor-neutral messages and prints the chat\n" +
			"messages the gateway would send to Ollama. Nothing is sent.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			opts := cfg.Conversion
			if cmd.Flags().Changed("system-mode") {
				mode, err := ollama.ParseSystemMessageMode(systemMode)
				if err != nil {
					return err
				}
				opts.SystemMessageMode = mode
			}
			if cmd.Flags().Changed("legacy-functions") {
				opts.UseLegacyFunctionCalling = legacyFunctions
			}

			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			return runConvert(in, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "prompt JSON file (default stdin)")
	cmd.Flags().StringVar(&systemMode, "system-mode", "", "system message mode: system, developer or remove")
	cmd.Flags().BoolVar(&legacyFunctions, "legacy-functions", false, "emit function_call / function messages instead of tool_calls")
	return cmd
}

func runConvert(in io.Reader, out io.Writer, opts ollama.ConvertOptions) error {
	var p prompt.Prompt
	if err := json.NewDecoder(in).Decode(&p); err != nil {
		return fmt.Errorf("decode prompt: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	messages, err := ollama.ConvertToChatMessages(p, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(messages)
}
