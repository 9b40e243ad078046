package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/black-roland/homeassistant-yandexgpt/agent"
	"github.com/black-roland/homeassistant-yandexgpt/conversation"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var entry string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to an agent from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			rt, err := a.runtime(entry)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), func(ctx context.Context, log *conversation.ChatLog, text string) (agent.Result, error) {
				return rt.Converse(ctx, log, agent.Input{Text: text})
			})
		},
	}
	cmd.Flags().StringVarP(&entry, "entry", "e", "", "entry id (defaults to the first one)")
	return cmd
}

type turnFunc func(ctx context.Context, log *conversation.ChatLog, text string) (agent.Result, error)

func runChat(ctx context.Context, in io.Reader, out io.Writer, turn turnFunc) error {
	fmt.Fprintln(out, "Type /exit to quit, /clear to start a new conversation.")
	log := conversation.NewChatLog("")
	log.OnDelta = func(d conversation.DeltaEvent) {
		if d.Kind == conversation.TextDelta {
			fmt.Fprint(out, d.Content)
		}
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		text := strings.TrimSpace(sc.Text())
		switch text {
		case "":
			continue
		case "/exit", "exit", "quit":
			return nil
		case "/clear":
			onDelta := log.OnDelta
			log = conversation.NewChatLog("")
			log.OnDelta = onDelta
			fmt.Fprintln(out, "context cleared")
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		_, err := turn(turnCtx, log, text)
		cancel()
		fmt.Fprintln(out)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
