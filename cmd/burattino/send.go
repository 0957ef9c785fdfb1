package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/burattino/pkg/blocks"
	"github.com/go-go-golems/burattino/pkg/chat"
)

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <message>",
	Short: "Send a message and stream the assistant's reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRun(cmd.Context(), args[0], func(a *app) (*chat.Run, error) {
			return a.service.Send(args[0], args[1], viper.GetString("model"))
		})
	},
}

var continueCmd = &cobra.Command{
	Use:   "continue <chat-id> <message-id>",
	Short: "Resume an incomplete assistant message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRun(cmd.Context(), args[0], func(a *app) (*chat.Run, error) {
			return a.service.Continue(args[0], args[1])
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <chat-id> <message-id>",
	Short: "Regenerate an assistant message as a new sibling",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRun(cmd.Context(), args[0], func(a *app) (*chat.Run, error) {
			return a.service.Retry(args[0], args[1], viper.GetString("model"))
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <chat-id> <message-id> <new-content>",
	Short: "Edit a user message and regenerate the conversation after it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRun(cmd.Context(), args[0], func(a *app) (*chat.Run, error) {
			return a.service.Edit(args[0], args[1], args[2], viper.GetString("model"))
		})
	},
}

// withRun builds the app, loads the chat, starts a run through start and
// renders its coalesced updates until the run settles.
func withRun(ctx context.Context, chatID string, start func(*app) (*chat.Run, error)) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	r := &renderer{out: os.Stdout}
	a.router.AddHandler("render", updateTopic, func(msg *message.Message) error {
		var update chat.RunUpdate
		if err := json.Unmarshal(msg.Payload, &update); err != nil {
			log.Warn().Err(err).Msg("undecodable run update")
			return nil
		}
		r.render(update)
		return nil
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return a.router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-a.router.Running()

		if err := a.service.OpenChat(ctx, chatID); err != nil {
			return err
		}
		run, err := start(a)
		if err != nil {
			return err
		}
		select {
		case <-run.Done():
		case <-ctx.Done():
		}
		return run.Err()
	})

	defer func() {
		_ = a.router.Close()
	}()
	return eg.Wait()
}

// renderer prints the streamed reconstruction incrementally: each update
// carries the full block list, so it prints only the suffix that appeared
// since the previous update.
type renderer struct {
	out     *os.File
	printed int
}

func (r *renderer) render(update chat.RunUpdate) {
	text := renderBlocks(update.Blocks)
	if len(text) > r.printed {
		fmt.Fprint(r.out, text[r.printed:])
		r.printed = len(text)
	}
	if update.State.Terminal() {
		fmt.Fprintln(r.out)
		if update.State != chat.RunStateCompleted {
			fmt.Fprintf(r.out, "[%s]\n", update.State)
		}
	}
}

func renderBlocks(bs []blocks.ContentBlock) string {
	var sb strings.Builder
	for _, b := range bs {
		switch b.Type {
		case blocks.BlockTypeText:
			sb.WriteString(b.Content)
		case blocks.BlockTypeReasoning:
			// reasoning is kept out of the transcript body
		case blocks.BlockTypeToolCall:
			status := "running"
			if b.IsCompleted {
				status = "done"
			}
			sb.WriteString(fmt.Sprintf("\n[tool %s: %s]\n", b.ToolName, status))
		case blocks.BlockTypeError:
			sb.WriteString(fmt.Sprintf("\n[error: %s]\n", b.Content))
		}
	}
	return sb.String()
}
