// Package main is the entry point for the patina CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/postrv/patina/internal/config"
	"github.com/postrv/patina/internal/tool"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "patina",
		Short:         "A policy-enforcing tool execution pipeline for terminal agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(versionCmd(), execCmd(), runCmd(), serversCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("patina %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func execCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <tool> [json-args]",
		Short: "Run a single tool call through the pipeline",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			input := json.RawMessage(`{}`)
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("arguments are not valid JSON: %s", args[1])
				}
				input = json.RawMessage(args[1])
			}

			results := app.Run(cmd.Context(), []tool.Call{
				{ID: "exec-1", Name: args[0], Input: input},
			})
			return printResults(results)
		},
	}
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [batch-file]",
		Short: "Run a batch of tool calls from a JSON file or stdin",
		Long: "Reads a JSON array of {id, name, input} objects and runs them as one " +
			"batch: read-only calls fan out, mutating calls serialize.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readBatch(args)
			if err != nil {
				return err
			}

			var batch []tool.Call
			if err := json.Unmarshal(raw, &batch); err != nil {
				return fmt.Errorf("batch is not a JSON array of calls: %w", err)
			}
			if len(batch) == 0 {
				return fmt.Errorf("batch is empty")
			}

			app, err := buildApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			return printResults(app.Run(cmd.Context(), batch))
		},
	}
	return cmd
}

func serversCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Capability server management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Connect configured capability servers and list their tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Router.Start(cmd.Context()); err != nil {
				fmt.Fprintln(os.Stderr, "warning:", err)
			}
			for _, st := range app.Router.Statuses() {
				state := "disabled"
				switch {
				case st.Down:
					state = "down: " + st.LastError
				case st.Connected:
					state = fmt.Sprintf("connected, %d tools", st.Tools)
				case st.Enabled:
					state = "not connected"
				}
				fmt.Printf("%-20s %s\n", st.Name, state)
			}
			for _, rt := range app.Router.Catalog() {
				fmt.Printf("  %-30s %s\n", rt.FullName(), rt.Description)
			}
			return nil
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Configuration OK (%d hook events, %d servers)\n", len(cfg.Hooks), len(cfg.Servers))
			return nil
		},
	})
	return cmd
}

func readBatch(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("reading batch file: %w", err)
		}
		return raw, nil
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading batch from stdin: %w", err)
	}
	return raw, nil
}

func printResults(results []tool.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}
	for _, res := range results {
		if res.Status != tool.StatusSuccess {
			return fmt.Errorf("%d of %d calls did not succeed", countFailed(results), len(results))
		}
	}
	return nil
}

func countFailed(results []tool.Result) int {
	n := 0
	for _, res := range results {
		if res.Status != tool.StatusSuccess {
			n++
		}
	}
	return n
}

// resolveConfigPath searches for a config file in standard locations:
// $XDG_CONFIG_HOME/patina/patina.yaml first, then ./patina.yaml.
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "patina", "patina.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "patina", "patina.yaml"))
	}

	candidates = append(candidates, "patina.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
