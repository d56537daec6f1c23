package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pario-ai/leadchat/pkg/conversation"
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func newChatCmd(opts *globalOptions) *cobra.Command {
	var exportDir string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive lead generation conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			h := conversation.NewHandler(a.client, conversation.WithExportDir(exportDir))
			return runREPL(ctx, h, cmd.InOrStdin(), cmd.OutOrStdout(), isTerminal(os.Stdin))
		},
	}
	cmd.Flags().StringVar(&exportDir, "export-dir", ".", "directory for /export-csv and /export-json")
	return cmd
}

// runREPL reads one line at a time until EOF, "/quit" or cancellation.
// Failed turns are reported inline and do not end the session.
func runREPL(ctx context.Context, h *conversation.Handler, in io.Reader, out io.Writer, prompt bool) error {
	if err := h.Start(ctx, out); err != nil {
		return err
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "/quit" || line == "/exit" {
			return nil
		}
		_ = h.Handle(ctx, line, out)
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintln(out)
	}
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a single message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			h := conversation.NewHandler(a.client)
			if model != "" {
				h.Session().Model = model
			}
			return h.Handle(cmd.Context(), strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model id (defaults to the configured model)")
	return cmd
}
