package dialog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var presentPrompt = Prompt{
	Title:   "Foo",
	Text:    "Foo is already installed.",
	Choices: []Choice{ChoiceLaunch, ChoiceUninstall, ChoiceCancel},
}

type fakeHelper struct {
	out  string
	code int
	err  error
	bin  string
	args []string
}

func (f *fakeHelper) run(_ context.Context, bin string, args ...string) (string, int, error) {
	f.bin = bin
	f.args = args
	return f.out, f.code, f.err
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestChoiceLabel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Uninstall", ChoiceUninstall.Label())
	assert.Equal(t, "", Choice("").Label())
}

func TestZenityAsk(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		out  string
		code int
		want Choice
	}{
		{name: "ok button", code: 0, want: ChoiceLaunch},
		{name: "extra button", out: "Uninstall", code: 1, want: ChoiceUninstall},
		{name: "cancel button", code: 1, want: ChoiceCancel},
		{name: "timeout", code: 5, want: ChoiceCancel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := &fakeHelper{out: tc.out, code: tc.code}
			z := &Zenity{run: h.run}
			got, err := z.Ask(context.Background(), presentPrompt)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, "zenity", h.bin)
			assert.Equal(t, "Launch", argValue(h.args, "--ok-label"))
			assert.Equal(t, "Cancel", argValue(h.args, "--cancel-label"))
			assert.Equal(t, "Uninstall", argValue(h.args, "--extra-button"))
			assert.Empty(t, argValue(h.args, "--timeout"))
		})
	}
}

func TestZenityAskPassesTimeout(t *testing.T) {
	t.Parallel()
	h := &fakeHelper{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := (&Zenity{run: h.run}).Ask(ctx, presentPrompt)
	require.NoError(t, err)
	assert.Equal(t, "30", argValue(h.args, "--timeout"))
}

func TestZenityHelperFailure(t *testing.T) {
	t.Parallel()
	h := &fakeHelper{err: errors.New("boom")}
	got, err := (&Zenity{run: h.run}).Ask(context.Background(), presentPrompt)
	require.Error(t, err)
	assert.Equal(t, ChoiceCancel, got)
}

func TestZenityInform(t *testing.T) {
	t.Parallel()
	h := &fakeHelper{}
	require.NoError(t, (&Zenity{run: h.run}).Inform(context.Background(), Message{Title: "t", Text: "oops", Level: LevelError}))
	assert.Equal(t, "--error", h.args[0])
	assert.Equal(t, "oops", argValue(h.args, "--text"))
}

func TestKDialogAsk(t *testing.T) {
	t.Parallel()
	for code, want := range map[int]Choice{0: ChoiceLaunch, 1: ChoiceUninstall, 2: ChoiceCancel, 9: ChoiceCancel} {
		h := &fakeHelper{code: code}
		got, err := (&KDialog{run: h.run}).Ask(context.Background(), presentPrompt)
		require.NoError(t, err)
		assert.Equal(t, want, got, "exit code %d", code)
		assert.Contains(t, h.args, "--yesnocancel")
	}

	h := &fakeHelper{code: 1}
	got, err := (&KDialog{run: h.run}).Ask(context.Background(), Prompt{Title: "Foo", Choices: []Choice{ChoiceInstall, ChoiceCancel}})
	require.NoError(t, err)
	assert.Equal(t, ChoiceCancel, got)
	assert.Contains(t, h.args, "--yesno")
	assert.Equal(t, "Install", argValue(h.args, "--yes-label"))
}

func TestKDialogMenuForManyChoices(t *testing.T) {
	t.Parallel()
	p := Prompt{Title: "Foo", Choices: []Choice{ChoiceInstall, ChoiceLaunch, ChoiceUninstall, ChoiceCancel}}
	h := &fakeHelper{out: "launch"}
	got, err := (&KDialog{run: h.run}).Ask(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, ChoiceLaunch, got)
	assert.Contains(t, h.args, "--menu")

	h = &fakeHelper{out: "bogus"}
	got, err = (&KDialog{run: h.run}).Ask(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, ChoiceCancel, got)
}

func TestTerminalAsk(t *testing.T) {
	t.Parallel()
	cases := map[string]Choice{
		"\n":           ChoiceLaunch,
		"2\n":          ChoiceUninstall,
		"cancel\n":     ChoiceCancel,
		"u\n":          ChoiceUninstall,
		"7\nx\nl\n":    ChoiceLaunch,
		"9\n9\n9\n1\n": ChoiceCancel,
		"":             ChoiceCancel,
	}
	for input, want := range cases {
		var out bytes.Buffer
		term := NewTerminal(strings.NewReader(input), &out)
		got, err := term.Ask(context.Background(), presentPrompt)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
		assert.Contains(t, out.String(), "2) Uninstall")
	}
}

func TestTerminalAskHonorsContext(t *testing.T) {
	t.Parallel()
	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	got, err := NewTerminal(r, io.Discard).Ask(ctx, presentPrompt)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ChoiceCancel, got)
}

func TestSilentDismisses(t *testing.T) {
	t.Parallel()
	got, err := Silent{}.Ask(context.Background(), presentPrompt)
	require.NoError(t, err)
	assert.Equal(t, ChoiceCancel, got)
	require.NoError(t, Silent{}.Inform(context.Background(), Message{Title: "t", Text: "x"}))
}

type fakeNotifier struct {
	err  error
	sent []Message
}

func (f *fakeNotifier) Notify(_ context.Context, m Message) error {
	f.sent = append(f.sent, m)
	return f.err
}

type recordingDialog struct {
	Silent
	informed []Message
}

func (r *recordingDialog) Inform(_ context.Context, m Message) error {
	r.informed = append(r.informed, m)
	return nil
}

func TestWithNotifications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := &recordingDialog{}
	n := &fakeNotifier{}
	d := WithNotifications(base, n)
	require.NoError(t, d.Inform(ctx, Message{Title: "ok"}))
	require.NoError(t, d.Inform(ctx, Message{Title: "bad", Level: LevelError}))
	assert.Len(t, n.sent, 1)
	require.Len(t, base.informed, 1)
	assert.Equal(t, "bad", base.informed[0].Title)

	base = &recordingDialog{}
	d = WithNotifications(base, &fakeNotifier{err: errors.New("no bus")})
	require.NoError(t, d.Inform(ctx, Message{Title: "ok"}))
	assert.Len(t, base.informed, 1)

	assert.Same(t, base, WithNotifications(base, nil))
}

func TestNewBackends(t *testing.T) {
	t.Parallel()
	d, err := New("none")
	require.NoError(t, err)
	assert.IsType(t, Silent{}, d)

	d, err = New("terminal")
	require.NoError(t, err)
	assert.IsType(t, &Terminal{}, d)

	_, err = New("carrier-pigeon")
	require.Error(t, err)
}
