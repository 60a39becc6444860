// Package identity derives the stable key an archive is registered under.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Key returns the registry key for an application. The embedded desktop-file
// ID wins over the display name because it survives translation and
// rebranding of the Name= line.
func Key(desktopID, name string) string {
	if k := Slug(desktopID); k != "" {
		return k
	}
	return Slug(name)
}

// Slug lowercases s and collapses every run of characters outside
// [a-z0-9._] into a single hyphen.
func Slug(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return strings.Trim(b.String(), ".-")
}

// Digest streams the file at path through sha256.
func Digest(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- archive path chosen by the user
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DisplayNameFromFile guesses a human name from an archive file name, e.g.
// "my_tool-1.2-x86_64.AppImage" becomes "My Tool".
func DisplayNameFromFile(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	fields := strings.FieldsFunc(stem, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	var words []string
	for _, f := range fields {
		if startsWithDigit(f) || isArchToken(f) {
			break
		}
		r, n := utf8.DecodeRuneInString(f)
		words = append(words, string(unicode.ToUpper(r))+f[n:])
	}
	if len(words) == 0 {
		return stem
	}
	return strings.Join(words, " ")
}

func startsWithDigit(s string) bool {
	return s != "" && (unicode.IsDigit(rune(s[0])) || (len(s) > 1 && (s[0] == 'v' || s[0] == 'V') && unicode.IsDigit(rune(s[1]))))
}

func isArchToken(s string) bool {
	switch strings.ToLower(s) {
	case "x86", "x86_64", "amd64", "aarch64", "arm64", "armhf", "i386", "i686":
		return true
	}
	return false
}
