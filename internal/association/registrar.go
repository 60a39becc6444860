// Package association makes the desktop open AppImage files with this
// program.
package association

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/3leaps/appimage-installer/internal/atomicfile"
	"github.com/3leaps/appimage-installer/internal/desktopentry"
	"github.com/3leaps/appimage-installer/internal/hostenv"
)

const (
	MimeType       = "application/x-appimage"
	VendorMimeType = "application/vnd.appimage"
	HandlerID      = "appimage-installer.desktop"
	DefaultExt     = ".AppImage"

	packageFile     = "appimage-installer.xml"
	mimeappsFile    = "mimeapps.list"
	defaultsSection = "Default Applications"
)

// Registrar owns the MIME package and the hidden handler entry.
type Registrar struct {
	dataDir   string
	configDir string
	runner    hostenv.Runner
}

// New returns a Registrar writing under dataDir (XDG_DATA_HOME) and
// reading default-handler choices from configDir (XDG_CONFIG_HOME).
func New(dataDir, configDir string, runner hostenv.Runner) *Registrar {
	return &Registrar{dataDir: dataDir, configDir: configDir, runner: runner}
}

func (r *Registrar) PackagePath() string {
	return filepath.Join(r.dataDir, "mime", "packages", packageFile)
}

func (r *Registrar) HandlerPath() string {
	return filepath.Join(r.dataDir, "applications", HandlerID)
}

// Registered reports whether both files are in place.
func (r *Registrar) Registered() bool {
	for _, p := range []string{r.PackagePath(), r.HandlerPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// EnsureAssociationRegistered installs the MIME type for files ending in
// ext and a hidden entry that runs handlerCommand on them, then makes that
// entry the default handler. Database refreshes are best-effort. Calling it
// again with the same arguments rewrites nothing.
func (r *Registrar) EnsureAssociationRegistered(ctx context.Context, ext, handlerCommand string) error {
	if handlerCommand == "" {
		return errors.New("handler command is empty")
	}
	if ext == "" {
		ext = DefaultExt
	}
	pkg, err := mimePackage(ext)
	if err != nil {
		return err
	}
	entry, err := handlerEntry(handlerCommand)
	if err != nil {
		return err
	}

	changed := false
	for path, data := range map[string][]byte{r.PackagePath(): pkg, r.HandlerPath(): entry} {
		current, err := os.ReadFile(path) // #nosec G304 -- fixed paths under the data dir
		if err == nil && bytes.Equal(current, data) {
			continue
		}
		if err := atomicfile.Write(ctx, path, data, 0o644); err != nil {
			return fmt.Errorf("register %s: %w", MimeType, err)
		}
		changed = true
	}
	if !changed && r.isDefault() {
		log.Debugf("%s association already registered", MimeType)
		return nil
	}

	r.refresh(ctx)
	for _, mt := range []string{MimeType, VendorMimeType} {
		r.bestEffort(ctx, "xdg-mime", "default", HandlerID, mt)
	}
	log.Infof("registered %s as handler for *%s files", HandlerID, ext)
	return nil
}

// Unregister removes both files and any default-handler line pointing at
// the handler entry.
func (r *Registrar) Unregister(ctx context.Context) error {
	var result *multierror.Error
	for _, p := range []string{r.PackagePath(), r.HandlerPath()} {
		if err := atomicfile.Remove(p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := r.dropDefaults(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	r.refresh(ctx)
	return result.ErrorOrNil()
}

func (r *Registrar) refresh(ctx context.Context) {
	r.bestEffort(ctx, "update-mime-database", filepath.Join(r.dataDir, "mime"))
	r.bestEffort(ctx, "update-desktop-database", filepath.Join(r.dataDir, "applications"))
}

func (r *Registrar) bestEffort(ctx context.Context, bin string, args ...string) {
	if r.runner == nil {
		return
	}
	if err := r.runner.Run(ctx, bin, args...); err != nil {
		if errors.Is(err, hostenv.ErrToolMissing) {
			log.Debugf("skip %s: %v", bin, err)
			return
		}
		log.Warnf("%s: %v", bin, err)
	}
}

func (r *Registrar) mimeappsPath() string {
	return filepath.Join(r.configDir, mimeappsFile)
}

func (r *Registrar) isDefault() bool {
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, IgnoreInlineComment: true}, r.mimeappsPath())
	if err != nil {
		return false
	}
	first, _, _ := strings.Cut(f.Section(defaultsSection).Key(MimeType).String(), ";")
	return strings.TrimSpace(first) == HandlerID
}

func (r *Registrar) dropDefaults(ctx context.Context) error {
	path := r.mimeappsPath()
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	sec, err := f.GetSection(defaultsSection)
	if err != nil {
		return nil
	}
	dropped := false
	for _, key := range sec.Keys() {
		if !strings.Contains(key.String(), HandlerID) {
			continue
		}
		var keep []string
		for _, id := range strings.Split(key.String(), ";") {
			if id = strings.TrimSpace(id); id != "" && id != HandlerID {
				keep = append(keep, id)
			}
		}
		if len(keep) == 0 {
			sec.DeleteKey(key.Name())
		} else {
			key.SetValue(strings.Join(keep, ";") + ";")
		}
		dropped = true
	}
	if !dropped {
		return nil
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return atomicfile.Write(ctx, path, buf.Bytes(), 0o644)
}

func handlerEntry(handlerCommand string) ([]byte, error) {
	e := desktopentry.New()
	e.Set("Version", "1.0")
	e.Set("Name", "AppImage Installer")
	e.Set("Comment", "Install, launch or remove AppImage applications")
	e.Set("Exec", desktopentry.QuoteExecArg(handlerCommand)+" %f")
	e.Set("Icon", "application-x-executable")
	e.SetList("MimeType", []string{MimeType, VendorMimeType})
	e.SetList("Categories", []string{"System", "Utility"})
	e.SetBool("Terminal", false)
	e.SetBool("StartupNotify", false)
	e.SetBool("NoDisplay", true)
	return e.Bytes()
}

type mimeInfo struct {
	XMLName xml.Name     `xml:"http://www.freedesktop.org/standards/shared-mime-info mime-info"`
	Types   []mimeTypeEl `xml:"mime-type"`
}

type mimeTypeEl struct {
	Type    string    `xml:"type,attr"`
	Comment string    `xml:"comment"`
	Icon    iconEl    `xml:"icon"`
	Globs   []globEl  `xml:"glob"`
	Magic   []magicEl `xml:"magic"`
}

type iconEl struct {
	Name string `xml:"name,attr"`
}

type globEl struct {
	Pattern string `xml:"pattern,attr"`
	Weight  int    `xml:"weight,attr,omitempty"`
}

type magicEl struct {
	Priority int       `xml:"priority,attr"`
	Matches  []matchEl `xml:"match"`
}

type matchEl struct {
	Type    string    `xml:"type,attr"`
	Offset  string    `xml:"offset,attr"`
	Value   string    `xml:"value,attr"`
	Matches []matchEl `xml:"match,omitempty"`
}

// mimePackage describes AppImages by extension and by the ELF magic
// followed by the "AI" marker at offset 8.
func mimePackage(ext string) ([]byte, error) {
	globs := []globEl{{Pattern: "*" + ext, Weight: 95}}
	if lower := strings.ToLower(ext); lower != ext {
		globs = append(globs, globEl{Pattern: "*" + lower, Weight: 95})
	}
	doc := mimeInfo{Types: []mimeTypeEl{{
		Type:    MimeType,
		Comment: "AppImage application bundle",
		Icon:    iconEl{Name: "application-x-executable"},
		Globs:   globs,
		Magic: []magicEl{{
			Priority: 90,
			Matches: []matchEl{{
				Type:    "string",
				Offset:  "1",
				Value:   "ELF",
				Matches: []matchEl{{Type: "string", Offset: "8", Value: "AI"}},
			}},
		}},
	}}}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode mime package: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
