package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"opensim-assistant/internal/answer"
	"opensim-assistant/internal/app"
)

const (
	prompt         = "Enter your query: "
	maxAnswerRunes = 500
	clearScreen    = "\033[H\033[2J"
)

type Asker interface {
	Ask(ctx context.Context, question string) (answer.Response, error)
}

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask a question about OpenSim",
	Long: `Answers a single question given as arguments. Without arguments it
reads questions line by line until "exit", "quit" or end of input.`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
		asker := deps.Answerer()
		out := cmd.OutOrStdout()

		if len(args) > 0 {
			resp, err := asker.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			PrintResponse(out, resp)
			return nil
		}

		in := cmd.InOrStdin()
		return RunLoop(ctx, asker, in, out, isTerminal(in))
	})
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
}

// RunLoop answers one question per input line. interactive turns on the
// prompt and screen clearing.
func RunLoop(ctx context.Context, asker Asker, in io.Reader, out io.Writer, interactive bool) error {
	st := newStyles(out)
	fmt.Fprintln(out, st.heading.Render("OpenSim documentation assistant is ready for queries!"))
	fmt.Fprintln(out, st.muted.Render("Type 'exit' to quit, 'clear' to clear chat history"))

	sc := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if interactive {
			fmt.Fprint(out, "\n"+prompt)
		}
		if !sc.Scan() {
			break
		}

		q := strings.TrimSpace(sc.Text())
		switch strings.ToLower(q) {
		case "exit", "quit":
			fmt.Fprintln(out, "\nThanks for using the OpenSim documentation assistant!")
			return nil
		case "clear":
			if interactive {
				fmt.Fprint(out, clearScreen)
			}
			fmt.Fprintln(out, "Chat history cleared")
			continue
		}

		resp, err := asker.Ask(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "query failed", "error", err)
			fmt.Fprintln(out, st.warn.Render("Error: "+err.Error()))
			continue
		}
		PrintResponse(out, resp)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(out, "\nThanks for using the OpenSim documentation assistant!")
	return nil
}

// PrintResponse writes the answer, cut to 500 runes, and its numbered sources.
func PrintResponse(out io.Writer, resp answer.Response) {
	st := newStyles(out)

	fmt.Fprintln(out, "\n"+st.heading.Render("Answer:"))
	text := answer.Truncate(resp.Answer, maxAnswerRunes)
	if resp.Status == answer.StatusOK {
		fmt.Fprintln(out, text)
	} else {
		fmt.Fprintln(out, st.warn.Render(text))
	}

	if len(resp.Sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\n"+st.heading.Render("Sources:"))
	for i, src := range resp.Sources {
		fmt.Fprintf(out, "%d. %s (%s)\n", i+1, src.Title, src.Type)
		fmt.Fprintf(out, "   Source: %s\n", st.source.Render(src.URL))
	}
}

type styles struct {
	heading lipgloss.Style
	source  lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
}

// newStyles binds styles to w so colour is dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		source:  r.NewStyle().Foreground(lipgloss.Color("#06B6D4")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
	}
}
