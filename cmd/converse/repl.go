package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/aschepis/backscratcher/converse/chat"
	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/aschepis/backscratcher/converse/functions/builtin"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/charmbracelet/lipgloss"
)

const helpText = `Commands:
  /help     show this help
  /history  print the conversation so far
  /reset    start a new conversation
  /exit     quit`

// conversation is the part of chat.Session the REPL drives.
type conversation interface {
	Send(ctx context.Context, text string) (*chat.Turn, error)
	Reset()
	History() []llm.Message
}

type styles struct {
	prompt    lipgloss.Style
	assistant lipgloss.Style
	function  lipgloss.Style
	debug     lipgloss.Style
	err       lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		prompt:    r.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		assistant: r.NewStyle().Foreground(lipgloss.Color("#86AAEC")),
		function:  r.NewStyle().Foreground(lipgloss.Color("214")),
		debug:     r.NewStyle().Faint(true),
		err:       r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

type repl struct {
	conv    conversation
	in      io.Reader
	out     io.Writer
	verbose bool
	styles  styles
}

func newREPL(conv conversation, in io.Reader, out io.Writer, verbose bool) *repl {
	return &repl{conv: conv, in: in, out: out, verbose: verbose, styles: newStyles(out)}
}

// run reads user lines until EOF, /exit, an end_conversation hint, or ctx is done.
func (r *repl) run(ctx context.Context) error {
	if r.verbose {
		ctx = functions.WithDebugCallback(ctx, func(msg string) {
			fmt.Fprintln(r.out, r.styles.debug.Render("  "+msg))
		})
	}

	fmt.Fprintln(r.out, "Type /help for commands.")
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, r.styles.prompt.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(r.out, helpText)
			continue
		case "/reset":
			r.conv.Reset()
			fmt.Fprintln(r.out, "Started a new conversation.")
			continue
		case "/history":
			r.printHistory()
			continue
		}

		turn, err := r.conv.Send(ctx, line)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			fmt.Fprintln(r.out, r.styles.err.Render("error: ")+err.Error())
			continue
		}
		r.printTurn(turn)

		if slices.Contains(turn.Hints, builtin.EndConversation) {
			fmt.Fprintln(r.out, "Conversation ended.")
			return nil
		}
	}
}

func (r *repl) printTurn(turn *chat.Turn) {
	if r.verbose {
		for _, c := range turn.Calls {
			fmt.Fprintf(r.out, "%s %s\n", r.styles.function.Render("→ "+c.Call.Name), describeResult(c.Result))
		}
	}
	if turn.Reply.Content != "" {
		fmt.Fprintln(r.out, r.styles.assistant.Render(turn.Reply.Content))
	}
}

func (r *repl) printHistory() {
	history := r.conv.History()
	if len(history) == 0 {
		fmt.Fprintln(r.out, "(empty)")
		return
	}
	for _, msg := range history {
		switch {
		case msg.FunctionCall != nil:
			fmt.Fprintf(r.out, "%s: call %s(%s)\n", msg.Role, msg.FunctionCall.Name, msg.FunctionCall.Arguments)
		case msg.Role == llm.RoleFunction:
			fmt.Fprintf(r.out, "%s %s: %s\n", msg.Role, msg.Name, msg.Content)
		default:
			fmt.Fprintf(r.out, "%s: %s\n", msg.Role, msg.Content)
		}
	}
}

func describeResult(result functions.Result) string {
	return functions.Match(result,
		func(r functions.Invalid) string { return "rejected: " + r.Message },
		func(r functions.Succeeded) string { return "ok" },
		func(r functions.Threw) string {
			if r.Err == nil {
				return "failed"
			}
			return "failed: " + r.Err.Error()
		},
	)
}
