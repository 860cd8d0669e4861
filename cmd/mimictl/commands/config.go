package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/mimiclaw/internal/config"
	"github.com/jholhewres/mimiclaw/internal/secrets"
)

// NewConfigCmd builds the `mimictl config` command family: init/show/
// validate/set-key/delete-key/key-status, adapted from the teacher's own
// config command tree but driven by internal/config and internal/secrets
// instead of the teacher's copilot.Config APIs.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the runtime configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigSetKeyCmd())
	cmd.AddCommand(newConfigDeleteKeyCmd())
	cmd.AddCommand(newConfigKeyStatusCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = "config.yaml"
			}
			cfg := config.DefaultConfig()
			if err := config.SaveToFile(cfg, path); err != nil {
				return fmt.Errorf("writing default config: %w", err)
			}
			fmt.Printf("wrote default config to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "output path (default config.yaml)")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Printf("assistant_name: %s\n", cfg.AssistantName)
			fmt.Printf("session_db_path: %s\n", cfg.SessionDBPath)
			fmt.Printf("memory_db_path: %s\n", cfg.MemoryDBPath)
			fmt.Printf("llm.base_url: %s\n", cfg.LLM.BaseURL)
			fmt.Printf("llm.model: %s\n", cfg.LLM.Model)
			fmt.Printf("websocket_addr: %s\n", cfg.WebSocketAddr)
			fmt.Printf("bus.queue_len: %d\n", cfg.Bus.QueueLen)
			fmt.Printf("control_plane.max_alarms: %d\n", cfg.ControlPlane.MaxAlarms)
			fmt.Printf("control_plane.max_temp_rules: %d\n", cfg.ControlPlane.MaxTempRules)
			fmt.Printf("orchestrator.max_context_bytes: %d\n", cfg.Orchestrator.MaxContextBytes)
			fmt.Printf("orchestrator.turn_timeout_ms: %d\n", cfg.Orchestrator.TurnTimeoutMs)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the config and report any errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.AssistantName == "" {
				return fmt.Errorf("assistant_name must not be empty")
			}
			if cfg.Bus.QueueLen <= 0 {
				return fmt.Errorf("bus.bus_queue_len must be positive")
			}
			if cfg.Orchestrator.MaxContextBytes <= 0 {
				return fmt.Errorf("orchestrator.max_context_bytes must be positive")
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key [api-key]",
		Short: "Store the LLM API key in the OS keyring",
		Long:  "Store the LLM API key in the OS keyring. If omitted, the key is read from a hidden terminal prompt instead of appearing in shell history.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			if !secrets.Available() {
				return fmt.Errorf("OS keyring is not available on this system")
			}

			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				entered, err := promptForKey()
				if err != nil {
					return err
				}
				key = entered
			}
			if key == "" {
				return fmt.Errorf("no API key given")
			}

			if err := secrets.MigrateToKeyring(key, logger); err != nil {
				return err
			}
			fmt.Println("API key stored in OS keyring")
			return nil
		},
	}
}

// promptForKey reads the API key from the controlling terminal without
// echoing it, so it never appears in shell history or process listings.
func promptForKey() (string, error) {
	fmt.Print("API key: ")
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading key from terminal: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the LLM API key from the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secrets.Delete("api_key"); err != nil {
				return fmt.Errorf("deleting key from keyring: %w", err)
			}
			fmt.Println("API key removed from OS keyring")
			return nil
		},
	}
}

func newConfigKeyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key-status",
		Short: "Report where the LLM API key is currently sourced from",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("keyring available: %v\n", secrets.Available())
			if v := secrets.Get("api_key"); v != "" {
				fmt.Println("api key source: OS keyring")
				return nil
			}
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			secrets.ResolveAPIKey(cfg, newLogger(cmd))
			if cfg.LLM.APIKey != "" {
				fmt.Println("api key source: config file / environment")
				return nil
			}
			fmt.Println("api key source: none found")
			return nil
		},
	}
}
