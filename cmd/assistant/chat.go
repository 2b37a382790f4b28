package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/session"
)

func newChatCommand() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a live chat session with the assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" {
				clientID = uuid.NewString()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, clientID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client identifier (random when empty)")
	return cmd
}

func runChat(ctx context.Context, clientID string, in io.Reader, out io.Writer) error {
	m := session.New(cfg.Session)
	defer m.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := m.Messages(ctx)
	states := m.ConnectionState(ctx)
	errs := m.Errors(ctx)

	fmt.Fprintf(out, "client %s, connecting to %s (type /quit to leave)\n", clientID, m.Endpoint(clientID))
	m.Connect(clientID)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-messages.C:
				if !ok {
					return nil
				}
				printMessage(out, msg)
			case connected, ok := <-states.C:
				if !ok {
					return nil
				}
				if connected {
					fmt.Fprintln(out, "* connected")
				} else {
					fmt.Fprintln(out, "* disconnected")
				}
			case err, ok := <-errs.C:
				if !ok {
					return nil
				}
				if errors.Is(err, session.ErrReconnectExhausted) {
					return err
				}
				log.Debug().Err(err).Msg("session error")
			}
		}
	})

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	eg.Go(func() error {
		defer cancel()
		defer m.Disconnect()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-readErr:
				return err
			case line := <-lines:
				switch line {
				case "":
					continue
				case "/quit":
					return nil
				}
				if err := m.SendMessage(line); err != nil {
					fmt.Fprintf(out, "! not sent: %v\n", err)
				}
			}
		}
	})

	return eg.Wait()
}

func printMessage(out io.Writer, msg chat.InboundMessage) {
	ts := msg.Timestamp.Local().Format("15:04:05")
	switch msg.SenderType {
	case chat.SenderSystem:
		fmt.Fprintf(out, "[%s] * %s\n", ts, msg.Content)
	case chat.SenderUser:
		fmt.Fprintf(out, "[%s] you: %s\n", ts, msg.Content)
	default:
		fmt.Fprintf(out, "[%s] assistant: %s\n", ts, msg.Content)
	}
}
