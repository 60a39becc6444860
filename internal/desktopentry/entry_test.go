package desktopentry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fooEntry = `# comment
[Desktop Entry]
Type=Application
Name=Foo
Name[de]=Fuu
Comment=Edits: text; fast
Exec=foo --flag=1 %U
Icon=foo
Categories=Development;IDE;
MimeType=text/plain;
Terminal=false
X-AppImage-Version=1.2

[Desktop Action New]
Name=New Window
Exec=foo --new
`

func TestParse(t *testing.T) {
	t.Parallel()
	e, err := Parse([]byte(fooEntry))
	require.NoError(t, err)

	assert.Equal(t, "Foo", e.Get("Name"))
	assert.Equal(t, "Fuu", e.Get("Name[de]"))
	assert.Equal(t, "Edits: text; fast", e.Get("Comment"))
	assert.Equal(t, "foo --flag=1 %U", e.Get("Exec"))
	assert.Equal(t, []string{"Development", "IDE"}, e.List("Categories"))
	assert.Equal(t, []string{"text/plain"}, e.List("MimeType"))
	assert.False(t, e.Bool("Terminal"))
	assert.Equal(t, "1.2", e.Get("X-AppImage-Version"))
	assert.Equal(t, "", e.Get("Missing"))
	assert.Nil(t, e.List("Missing"))
}

func TestParseWithoutGroup(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("Name=Foo\n"))
	assert.ErrorIs(t, err, ErrNoSection)

	_, err = Parse([]byte("[Other]\nName=Foo\n"))
	assert.ErrorIs(t, err, ErrNoSection)
}

func TestParseStripsByteOrderMark(t *testing.T) {
	t.Parallel()
	e, err := Parse([]byte("\xef\xbb\xbf[Desktop Entry]\nName=Foo\n"))
	require.NoError(t, err)
	assert.Equal(t, "Foo", e.Get("Name"))
}

func TestRenderRoundTrip(t *testing.T) {
	t.Parallel()
	e := New()
	e.Set("Name", "Foo Studio")
	e.Set("Comment", "line one\nline two")
	e.Set("Exec", QuoteExecArg("/home/u/My Apps/Foo.AppImage")+" %U")
	e.SetList("Categories", []string{"Development", "IDE"})
	e.SetBool("Terminal", false)

	data, err := e.Bytes()
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "[Desktop Entry]\n"), text)
	assert.Contains(t, text, "Type=Application\n")
	assert.Contains(t, text, "Name=Foo Studio\n")
	assert.Contains(t, text, "Categories=Development;IDE;\n")
	assert.Contains(t, text, "Terminal=false\n")
	assert.Contains(t, text, `Comment=line one\nline two`)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", back.Get("Comment"))
	assert.Equal(t, `"/home/u/My Apps/Foo.AppImage" %U`, back.Get("Exec"))
	assert.Equal(t, []string{"Development", "IDE"}, back.List("Categories"))
}

func TestQuoteExecArg(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"/opt/Foo.AppImage": "/opt/Foo.AppImage",
		"/opt/My Apps/Foo":  `"/opt/My Apps/Foo"`,
		`/opt/$HOME/"x"`:    `"/opt/\$HOME/\"x\""`,
		"":                  `""`,
	}
	for in, want := range tests {
		assert.Equal(t, want, QuoteExecArg(in), in)
	}
}
