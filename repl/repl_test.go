package repl

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct {
	io.Writer
	closed bool
}

func (n *nopWriteCloser) Close() error {
	n.closed = true
	return nil
}

func TestRunEchoesUntilQuit(t *testing.T) {
	in := io.NopCloser(strings.NewReader("status\n\nquit\nnever\n"))
	var buf bytes.Buffer
	out := &nopWriteCloser{Writer: &buf}

	var seen []string
	r := NewRepl(in, out)
	err := r.Run(func(msg string, _ *Repl) (string, error) {
		seen = append(seen, msg)
		if msg == "quit" {
			return "bye", ErrQuit
		}
		return "ok " + msg, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "quit"}, seen)
	assert.Equal(t, "ok status\nbye\n", buf.String())
	assert.True(t, out.closed)
}

func TestRunStopsOnHandlerError(t *testing.T) {
	in := io.NopCloser(strings.NewReader("boom\nafter\n"))
	out := &nopWriteCloser{Writer: io.Discard}
	broken := errors.New("broken")

	err := NewRepl(in, out).Run(func(string, *Repl) (string, error) {
		return "", broken
	})
	assert.ErrorIs(t, err, broken)
}

func TestPrompt(t *testing.T) {
	in := io.NopCloser(strings.NewReader("a\n"))
	var buf bytes.Buffer
	r := NewRepl(in, &nopWriteCloser{Writer: &buf})
	r.Prompt = "> "

	require.NoError(t, r.Run(func(msg string, _ *Repl) (string, error) { return msg, nil }))
	assert.Equal(t, "> a\n> ", buf.String())
}
