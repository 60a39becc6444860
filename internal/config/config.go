// Package config loads installer settings from defaults, an optional YAML
// file, environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/3leaps/appimage-installer/internal/archive"
	"github.com/3leaps/appimage-installer/internal/dialog"
	"github.com/3leaps/appimage-installer/internal/icon"
	"github.com/3leaps/appimage-installer/internal/orchestrator"
	"github.com/3leaps/appimage-installer/internal/registry"
)

// AppName names the per-user directories and the config file's parent.
const AppName = "appimage-installer"

// EnvPrefix prefixes environment overrides, e.g. APPIMAGE_INSTALLER_OFFLINE.
const EnvPrefix = "APPIMAGE_INSTALLER"

// Config holds all settings.
type Config struct {
	LogLevel           string        `mapstructure:"log_level"`
	LogFile            string        `mapstructure:"log_file"`
	Offline            bool          `mapstructure:"offline"`
	IconSize           int           `mapstructure:"icon_size"`
	RemoteIconURLs     []string      `mapstructure:"remote_icon_urls"`
	RemoteIconTimeout  time.Duration `mapstructure:"remote_icon_timeout"`
	ExtractionTimeout  time.Duration `mapstructure:"extraction_timeout"`
	PromptTimeout      time.Duration `mapstructure:"prompt_timeout"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
	Extractor          string        `mapstructure:"extractor"`
	Dialog             string        `mapstructure:"dialog"`
	Notify             bool          `mapstructure:"notify"`
	LaunchAfterInstall bool          `mapstructure:"launch_after_install"`
	ConfirmInstall     bool          `mapstructure:"confirm_install"`
	DataDir            string        `mapstructure:"data_dir"`
	StateDir           string        `mapstructure:"state_dir"`
	ScratchDir         string        `mapstructure:"scratch_dir"`
}

// Defaults returns the built-in settings for the current user.
func Defaults() Config {
	return Config{
		LogLevel:           "info",
		IconSize:           icon.DefaultSize,
		RemoteIconURLs:     append([]string(nil), icon.DefaultRemoteTemplates...),
		RemoteIconTimeout:  icon.DefaultRemoteTimeout,
		ExtractionTimeout:  archive.DefaultTimeout,
		PromptTimeout:      orchestrator.DefaultPromptTimeout,
		LockTimeout:        registry.DefaultLockTimeout,
		Extractor:          archive.ExtractorAuto,
		Dialog:             dialog.BackendAuto,
		Notify:             true,
		LaunchAfterInstall: false,
		ConfirmInstall:     false,
		DataDir:            DataHome(),
		StateDir:           filepath.Join(StateHome(), AppName),
		ScratchDir:         filepath.Join(CacheHome(), AppName, "scratch"),
	}
}

// settings lists every key in file order with its default and description.
func (c Config) settings() []setting {
	return []setting{
		{"log_level", c.LogLevel, "Log level: trace, debug, info, warn or error."},
		{"log_file", c.LogFile, "Log file, rotated when large. Empty logs to stderr."},
		{"offline", c.Offline, "Never fetch icons over the network."},
		{"icon_size", c.IconSize, "Edge length in pixels of installed icons."},
		{"remote_icon_urls", c.RemoteIconURLs, "URL templates tried for missing icons; {name} is replaced by a candidate name."},
		{"remote_icon_timeout", c.RemoteIconTimeout, "Budget for the whole remote icon lookup."},
		{"extraction_timeout", c.ExtractionTimeout, "Budget for reading metadata out of an archive."},
		{"prompt_timeout", c.PromptTimeout, "Unanswered prompts are treated as cancel after this long."},
		{"lock_timeout", c.LockTimeout, "How long to wait for another installer run to release the registry."},
		{"extractor", c.Extractor, "Image reader: auto, native or unsquashfs."},
		{"dialog", c.Dialog, "Prompt backend: auto, zenity, kdialog, terminal or none."},
		{"notify", c.Notify, "Report successful installs as desktop notifications."},
		{"launch_after_install", c.LaunchAfterInstall, "Start the application right after installing it."},
		{"confirm_install", c.ConfirmInstall, "Ask before installing an archive opened for the first time."},
		{"data_dir", c.DataDir, "Base directory for launchers and icons."},
		{"state_dir", c.StateDir, "Directory holding the registry."},
		{"scratch_dir", c.ScratchDir, "Parent of temporary extraction directories."},
	}
}

type setting struct {
	key     string
	value   any
	comment string
}

// FilePath is the default config file location.
func FilePath() string {
	return filepath.Join(ConfigHome(), AppName, "config.yaml")
}

// Load resolves the configuration into v. An explicit file must exist; the
// default file is optional.
func Load(v *viper.Viper, file string) (Config, error) {
	for _, s := range Defaults().settings() {
		v.SetDefault(s.key, s.value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(filepath.Dir(FilePath()))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		log.Debug("no config file; using defaults")
	} else {
		log.Debugf("loaded config from %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	extractors = []string{archive.ExtractorAuto, archive.ExtractorNative, archive.ExtractorUnsquashfs}
	dialogs    = []string{dialog.BackendAuto, dialog.BackendZenity, dialog.BackendKDialog, dialog.BackendTerminal, dialog.BackendNone}
)

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.IconSize < 16 || c.IconSize > 1024 {
		errs = multierror.Append(errs, fmt.Errorf("icon_size: %d is outside 16..1024", c.IconSize))
	}
	for key, d := range map[string]time.Duration{
		"remote_icon_timeout": c.RemoteIconTimeout,
		"extraction_timeout":  c.ExtractionTimeout,
		"prompt_timeout":      c.PromptTimeout,
		"lock_timeout":        c.LockTimeout,
	} {
		if d <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: must be positive, got %s", key, d))
		}
	}
	if !oneOf(c.Extractor, extractors) {
		errs = multierror.Append(errs, fmt.Errorf("extractor: %q is not one of %s", c.Extractor, strings.Join(extractors, ", ")))
	}
	if !oneOf(c.Dialog, dialogs) {
		errs = multierror.Append(errs, fmt.Errorf("dialog: %q is not one of %s", c.Dialog, strings.Join(dialogs, ", ")))
	}
	for key, dir := range map[string]string{"data_dir": c.DataDir, "state_dir": c.StateDir, "scratch_dir": c.ScratchDir} {
		if !filepath.IsAbs(dir) {
			errs = multierror.Append(errs, fmt.Errorf("%s: %q is not an absolute path", key, dir))
		}
	}
	if errs != nil {
		errs.ErrorFormat = listFormat
	}
	return errs.ErrorOrNil()
}

func listFormat(errs []error) string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, err.Error())
	}
	return "invalid config: " + strings.Join(lines, "; ")
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ConfigHome is $XDG_CONFIG_HOME or ~/.config.
func ConfigHome() string { return xdgDir("XDG_CONFIG_HOME", ".config") }

// DataHome is $XDG_DATA_HOME or ~/.local/share.
func DataHome() string { return xdgDir("XDG_DATA_HOME", ".local", "share") }

// StateHome is $XDG_STATE_HOME or ~/.local/state.
func StateHome() string { return xdgDir("XDG_STATE_HOME", ".local", "state") }

// CacheHome is $XDG_CACHE_HOME or ~/.cache.
func CacheHome() string { return xdgDir("XDG_CACHE_HOME", ".cache") }

// DataDirs is $XDG_DATA_DIRS split, or the standard system directories.
func DataDirs() []string {
	var dirs []string
	for _, d := range filepath.SplitList(os.Getenv("XDG_DATA_DIRS")) {
		if filepath.IsAbs(d) {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) == 0 {
		dirs = []string{"/usr/local/share", "/usr/share"}
	}
	return dirs
}

// Relative values are ignored, as XDG base directories must be absolute.
func xdgDir(env string, fallback ...string) string {
	if d := os.Getenv(env); filepath.IsAbs(d) {
		return d
	}
	return filepath.Join(append([]string{HomeDir()}, fallback...)...)
}

// HomeDir is the user's home, or the temp dir when it cannot be determined.
func HomeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.TempDir()
}
