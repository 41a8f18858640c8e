// Package console is a terminal transport: replies are printed with
// numbered buttons and typed lines become queries or button presses.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"tunegrab/internal/core/domain"
	"tunegrab/internal/core/ports"
)

const helpText = `Type a song name to search, or the number of a button to press it.
Commands: /start, /help, /quit`

// Console implements ports.Messenger for a single local owner.
type Console struct {
	owner domain.OwnerID
	out   io.Writer

	mu      sync.Mutex
	buttons []domain.Button

	bot    *color.Color
	button *color.Color
	dim    *color.Color
}

// New creates a Console writing to out. noColor disables ANSI colors.
func New(owner domain.OwnerID, out io.Writer, noColor bool) *Console {
	c := &Console{
		owner:  owner,
		out:    out,
		bot:    color.New(color.FgGreen, color.Bold),
		button: color.New(color.FgCyan),
		dim:    color.New(color.FgHiBlack),
	}
	if noColor {
		for _, col := range []*color.Color{c.bot, c.button, c.dim} {
			col.DisableColor()
		}
	}
	return c
}

// Owner returns the owner this console speaks for.
func (c *Console) Owner() domain.OwnerID {
	return c.owner
}

// SendText prints text. A non-empty button set replaces the selectable
// buttons.
func (c *Console) SendText(_ context.Context, owner domain.OwnerID, text string, buttons ...domain.Button) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if owner != c.owner {
		return fmt.Errorf("console cannot reach owner %q", owner)
	}
	fmt.Fprintf(c.out, "%s %s\n", c.bot.Sprint("bot ›"), text)
	if len(buttons) == 0 {
		return nil
	}
	c.buttons = append(c.buttons[:0], buttons...)
	for i, b := range buttons {
		fmt.Fprintf(c.out, "  %s %s\n", c.button.Sprintf("[%d]", i+1), b.Label)
	}
	return nil
}

// Token returns the token of the n-th (1-based) button on screen.
func (c *Console) Token(n int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.buttons) {
		return "", false
	}
	return c.buttons[n-1].Token, true
}

// Run reads lines from in and dispatches them to h until EOF, /quit or
// ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader, h ports.ChatHandler) error {
	if err := h.OnStart(ctx, c.owner); err != nil {
		return err
	}

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var err error
		switch line {
		case "/quit", "/exit":
			return nil
		case "/help":
			c.print(helpText)
		case "/start":
			err = h.OnStart(ctx, c.owner)
		default:
			err = c.dispatch(ctx, line, h)
		}
		if err != nil {
			return err
		}
	}
	return sc.Err()
}

func (c *Console) dispatch(ctx context.Context, line string, h ports.ChatHandler) error {
	if n, convErr := strconv.Atoi(line); convErr == nil {
		if token, ok := c.Token(n); ok {
			return h.OnCallback(ctx, c.owner, token)
		}
		c.print(fmt.Sprintf("no button %d, searching instead", n))
	}
	return h.OnQuery(ctx, c.owner, line)
}

func (c *Console) print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.dim.Sprint(text))
}
