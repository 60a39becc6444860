// Package desktopentry reads and writes freedesktop.org desktop entry files.
package desktopentry

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Section is the group every desktop entry must carry.
const Section = "Desktop Entry"

var ErrNoSection = errors.New("no [Desktop Entry] group")

func init() {
	// Desktop entries are written as key=value with no alignment padding.
	ini.PrettyFormat = false
}

var loadOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	PreserveSurroundedQuote: true,
	KeyValueDelimiters:      "=",
}

// Entry is one desktop entry file.
type Entry struct {
	file    *ini.File
	section *ini.Section
}

// Parse reads data and requires the [Desktop Entry] group.
func Parse(data []byte) (*Entry, error) {
	f, err := ini.LoadSources(loadOptions, bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if err != nil {
		return nil, fmt.Errorf("parse desktop entry: %w", err)
	}
	sec, err := f.GetSection(Section)
	if err != nil {
		return nil, ErrNoSection
	}
	return &Entry{file: f, section: sec}, nil
}

// New returns an empty entry of Type=Application.
func New() *Entry {
	f := ini.Empty(loadOptions)
	sec, _ := f.NewSection(Section)
	e := &Entry{file: f, section: sec}
	e.Set("Type", "Application")
	return e
}

// Get returns the unlocalized value of key, unescaped.
func (e *Entry) Get(key string) string {
	if !e.section.HasKey(key) {
		return ""
	}
	return unescape(strings.TrimSpace(e.section.Key(key).String()))
}

// List splits a semicolon separated value, dropping empty items.
func (e *Entry) List(key string) []string {
	var out []string
	for _, item := range strings.Split(e.Get(key), ";") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Bool reads a boolean key; anything but "true" is false.
func (e *Entry) Bool(key string) bool {
	return strings.EqualFold(e.Get(key), "true")
}

// Set stores a string value, escaping it for the file format.
func (e *Entry) Set(key, value string) {
	e.setRaw(key, escape(value))
}

// SetList stores values as a semicolon terminated list.
func (e *Entry) SetList(key string, values []string) {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strings.ReplaceAll(escape(v), ";", `\;`))
		b.WriteByte(';')
	}
	e.setRaw(key, b.String())
}

// SetBool stores true or false.
func (e *Entry) SetBool(key string, value bool) {
	e.setRaw(key, fmt.Sprintf("%t", value))
}

func (e *Entry) setRaw(key, value string) {
	if e.section.HasKey(key) {
		e.section.Key(key).SetValue(value)
		return
	}
	_, _ = e.section.NewKey(key, value)
}

// Bytes renders the entry.
func (e *Entry) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.file.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render desktop entry: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	unescaper = strings.NewReplacer(`\s`, " ", `\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`)
	escaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "\r", `\r`)
)

func unescape(s string) string { return unescaper.Replace(s) }

func escape(s string) string { return escaper.Replace(s) }

// QuoteExecArg quotes one argument of an Exec line when it holds characters
// the Exec grammar reserves.
func QuoteExecArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n\"'\\><~|&;$*?#()`") {
		return arg
	}
	r := strings.NewReplacer(`"`, `\"`, "`", "\\`", `$`, `\$`, `\`, `\\`)
	return `"` + r.Replace(arg) + `"`
}
