// Command mkfixture builds a small AppImage for manual testing of the
// installer. It needs mksquashfs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/3leaps/appimage-installer/internal/archive/archivetest"
	"github.com/3leaps/appimage-installer/internal/hostenv"
)

type options struct {
	out        string
	appDir     string
	id         string
	name       string
	version    string
	categories string
	noDesktop  bool
}

func main() {
	var o options
	fs := pflag.NewFlagSet("mkfixture", pflag.ExitOnError)
	fs.StringVarP(&o.out, "output", "o", "", "AppImage to write (default: <name>-<version>.AppImage)")
	fs.StringVar(&o.appDir, "appdir", "", "pack this existing AppDir instead of generating one")
	fs.StringVar(&o.id, "id", "", "desktop file id (default: lowercased name)")
	fs.StringVar(&o.name, "name", "Demo", "application name")
	fs.StringVar(&o.version, "version", "1.0", "application version")
	fs.StringVar(&o.categories, "categories", "Utility", "semicolon-separated desktop categories")
	fs.BoolVar(&o.noDesktop, "no-desktop", false, "omit the desktop entry")
	_ = fs.Parse(os.Args[1:])

	path, err := run(context.Background(), o, hostenv.ExecRunner{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Println(path)
}

func run(ctx context.Context, o options, runner hostenv.Runner) (string, error) {
	o.name = strings.TrimSpace(o.name)
	if o.name == "" {
		return "", errors.New("name is required")
	}
	if o.out == "" {
		o.out = o.name + "-" + o.version + ".AppImage"
	}
	if o.id == "" {
		o.id = strings.ToLower(strings.ReplaceAll(o.name, " ", "-"))
	}

	appDir := o.appDir
	if appDir == "" {
		tmp, err := os.MkdirTemp("", "mkfixture-")
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		appDir = filepath.Join(tmp, "AppDir")
		err = archivetest.WriteAppDir(appDir, archivetest.App{
			ID:         o.id,
			Name:       o.name,
			Version:    o.version,
			Categories: splitList(o.categories),
			NoDesktop:  o.noDesktop,
		})
		if err != nil {
			return "", err
		}
	}

	out, err := filepath.Abs(o.out)
	if err != nil {
		return "", fmt.Errorf("resolve output: %w", err)
	}
	if err := archivetest.Build(ctx, runner, appDir, out); err != nil {
		return "", err
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
