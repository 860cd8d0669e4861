// Command mimictl runs the on-device personal voice/chat assistant runtime:
// the message bus, deterministic control plane, turn orchestrator, and
// outbound dispatcher, wired together and fronted by a small CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jholhewres/mimiclaw/cmd/mimictl/commands"
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "mimictl",
		Short: "Run and manage the Mimi assistant runtime",
	}
	root.PersistentFlags().String("config", "", "path to config.yaml (auto-discovered if unset)")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")

	root.AddCommand(commands.NewServeCmd())
	root.AddCommand(commands.NewConfigCmd())
	root.AddCommand(commands.NewReplCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
