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

	"github.com/Abhay-404/Eternal-Memory/internal/router"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask about your memories",
	Long: `Ask about your memories. With a question, answers it and exits; without
one, starts an interactive session where earlier turns are remembered.
Type "exit" or "quit" to leave.

Examples:
  eternal ask "what did I do last weekend?"
  eternal ask`,
	RunE: func(cmd *cobra.Command, args []string) error {
		showTools, _ := cmd.Flags().GetBool("show-tools")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		session := a.router.NewSession()
		if len(args) > 0 {
			return answerOnce(ctx, os.Stdout, session, strings.Join(args, " "), showTools)
		}
		return askLoop(ctx, os.Stdin, os.Stdout, session, showTools)
	},
}

func init() {
	askCmd.Flags().Bool("show-tools", false, "print which memory tools were used")
}

type asker interface {
	Ask(ctx context.Context, question string) (router.Answer, error)
}

func answerOnce(ctx context.Context, w io.Writer, s asker, question string, showTools bool) error {
	ans, err := s.Ask(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, ans.Text)
	if showTools && len(ans.ToolsUsed) > 0 {
		fmt.Fprintln(w, colorize(colorCyan, "(used "+strings.Join(ans.ToolsUsed, ", ")+")"))
	}
	return nil
}

// askLoop reads questions line by line until EOF or an exit command. A
// failed answer is reported and the session continues.
func askLoop(ctx context.Context, in io.Reader, w io.Writer, s asker, showTools bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(w, colorize(colorBold, "you> "))
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := answerOnce(ctx, w, s, line, showTools); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printError("%v", err)
		}
	}
}
