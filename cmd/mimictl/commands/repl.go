package commands

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jholhewres/mimiclaw/internal/bus"
)

// NewReplCmd builds `mimictl repl`, an interactive CLI channel: it wires a
// full runtime exactly like `serve` does, then feeds typed lines into the
// bus as cli-channel inbound messages. Replies are printed by the runtime's
// own LoggingChatSender for bus.ChannelCLI, so this command's only job is
// driving stdin and shutting the runtime down on exit.
func NewReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive chat session against the assistant runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			go rt.run(ctx)

			rl, err := readline.New("mimi> ")
			if err != nil {
				return fmt.Errorf("starting readline: %w", err)
			}
			defer rl.Close()

			chatID := uuid.NewString()
			for {
				line, err := rl.Readline()
				if err != nil {
					if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				msg := bus.Message{
					Channel:   bus.ChannelCLI,
					ChatID:    chatID,
					MediaType: bus.MediaText,
					Content:   line,
				}
				if err := rt.bus.PushInbound(ctx, msg); err != nil {
					fmt.Printf("(dropped: %v)\n", err)
				}
			}
		},
	}
}
