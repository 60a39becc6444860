package dialog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const maxTerminalAttempts = 3

// Terminal asks on a text stream. Used when no graphical helper exists.
type Terminal struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// One reader goroutine serves every prompt so a cancelled prompt does not
// leave a competing read behind.
func (t *Terminal) start() {
	t.once.Do(func() {
		t.lines = make(chan string)
		go func() {
			sc := bufio.NewScanner(t.in)
			for sc.Scan() {
				t.lines <- sc.Text()
			}
			close(t.lines)
		}()
	})
}

func (t *Terminal) Ask(ctx context.Context, p Prompt) (Choice, error) {
	if len(p.Choices) == 0 {
		return ChoiceCancel, nil
	}
	t.start()

	fmt.Fprintf(t.out, "\n%s\n%s\n", p.Title, p.Text)
	for i, c := range p.Choices {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, c.Label())
	}
	for attempt := 0; attempt < maxTerminalAttempts; attempt++ {
		fmt.Fprintf(t.out, "Choice [1]: ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return p.dismissal(), ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				return p.dismissal(), nil
			}
			if c, ok := parseAnswer(p, line); ok {
				return c, nil
			}
			fmt.Fprintf(t.out, "Please answer 1-%d.\n", len(p.Choices))
		}
	}
	return p.dismissal(), nil
}

func parseAnswer(p Prompt, line string) (Choice, bool) {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return p.Choices[0], true
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n >= 1 && n <= len(p.Choices) {
			return p.Choices[n-1], true
		}
		return "", false
	}
	var match Choice
	for _, c := range p.Choices {
		if strings.HasPrefix(string(c), line) {
			if match != "" {
				return "", false
			}
			match = c
		}
	}
	return match, match != ""
}

func (t *Terminal) Inform(_ context.Context, m Message) error {
	prefix := m.Title
	if m.Level == LevelError {
		prefix = "error: " + m.Title
	}
	_, err := fmt.Fprintf(t.out, "%s: %s\n", prefix, m.Text)
	return err
}
