// Package config loads and validates the run policy.
//
// Settings come from three layers, later layers overriding earlier ones:
//
//	defaults ──► YAML file (--config) ──► explicitly set command-line flags
//
// All validation happens here, before any traversal begins: an invalid minimum
// size, a bad exclusion pattern or a target that is not a directory is fatal.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dustin/go-humanize"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/spf13/pflag"
)

var (
	ErrInvalidMinSize = errors.New("minimum size must be at least 1 byte")
	ErrNotDirectory   = errors.New("not a directory")
)

// Config is the raw settings bundle as read from file and flags.
type Config struct {
	MinSize         string   `koanf:"min_size"`
	ContentOnly     bool     `koanf:"content_only"`
	IgnoreTimestamp bool     `koanf:"ignore_timestamp"`
	SameName        bool     `koanf:"same_name"`
	DryRun          bool     `koanf:"dry_run"`
	Excludes        []string `koanf:"excludes"`
	Verbose         int      `koanf:"verbose"`
	ShowProgress    bool     `koanf:"show_progress"`
	PrintPrevious   bool     `koanf:"print_previous"`
	PrintStats      bool     `koanf:"print_stats"`
	Journal         string   `koanf:"journal"`
	LogFile         string   `koanf:"log_file"`
}

// Policy is the validated, immutable policy consumed by the core.
type Policy struct {
	MinSize         int64
	ContentOnly     bool
	IgnoreTimestamp bool
	SameName        bool
	DryRun          bool
	Excludes        []*regexp2.Regexp
	Verbosity       int
	ShowProgress    bool
}

// SizeOnlyHash reports whether bucket keys should ignore modification times.
func (p Policy) SizeOnlyHash() bool {
	return p.IgnoreTimestamp || p.ContentOnly
}

// defaults mirrors the command-line defaults.
var defaults = map[string]any{
	"min_size":         "1",
	"content_only":     false,
	"ignore_timestamp": false,
	"same_name":        false,
	"dry_run":          false,
	"excludes":         []string{},
	"verbose":          0,
	"show_progress":    true,
	"print_previous":   false,
	"print_stats":      true,
	"journal":          "",
	"log_file":         "",
}

// flagKeys maps command-line flag names to config keys. Flags whose value is the
// negation of a key are marked inverted.
var flagKeys = map[string]struct {
	key      string
	inverted bool
}{
	"min-size":         {key: "min_size"},
	"content-only":     {key: "content_only"},
	"timestamp-ignore": {key: "ignore_timestamp"},
	"filenames-equal":  {key: "same_name"},
	"dry-run":          {key: "dry_run"},
	"exclude":          {key: "excludes"},
	"verbose":          {key: "verbose"},
	"no-progress":      {key: "show_progress", inverted: true},
	"print-previous":   {key: "print_previous"},
	"no-stats":         {key: "print_stats", inverted: true},
	"journal":          {key: "journal"},
	"log-file":         {key: "log_file"},
}

// Load builds a Config from defaults, the optional YAML file at path and the
// flags explicitly set in fs. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if fs != nil {
		overrides, err := changedFlags(fs)
		if err != nil {
			return nil, err
		}
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// changedFlags collects the values of flags the user set explicitly.
func changedFlags(fs *pflag.FlagSet) (map[string]any, error) {
	out := make(map[string]any)
	var firstErr error

	fs.Visit(func(f *pflag.Flag) {
		fk, ok := flagKeys[f.Name]
		if !ok || firstErr != nil {
			return
		}

		var (
			val any
			err error
		)
		switch f.Value.Type() {
		case "bool":
			var b bool
			b, err = fs.GetBool(f.Name)
			if fk.inverted {
				b = !b
			}
			val = b
		case "count":
			val, err = fs.GetCount(f.Name)
		case "stringArray":
			val, err = fs.GetStringArray(f.Name)
		case "stringSlice":
			val, err = fs.GetStringSlice(f.Name)
		default:
			val = f.Value.String()
		}
		if err != nil {
			firstErr = fmt.Errorf("flag --%s: %w", f.Name, err)
			return
		}
		out[fk.key] = val
	})

	return out, firstErr
}

// Policy validates the settings and compiles them into a Policy.
func (c *Config) Policy() (Policy, error) {
	minSize, err := ParseSize(c.MinSize)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid min_size: %w", err)
	}
	if minSize < 1 {
		return Policy{}, ErrInvalidMinSize
	}

	excludes, err := CompilePatterns(c.Excludes)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid exclude: %w", err)
	}

	return Policy{
		MinSize:         minSize,
		ContentOnly:     c.ContentOnly,
		IgnoreTimestamp: c.IgnoreTimestamp,
		SameName:        c.SameName,
		DryRun:          c.DryRun,
		Excludes:        excludes,
		Verbosity:       c.Verbose,
		ShowProgress:    c.ShowProgress,
	}, nil
}

// ParseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func ParseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// PatternMatchTimeout bounds a single exclusion match against one path.
const PatternMatchTimeout = time.Second

// CompilePatterns compiles exclusion regular expressions.
func CompilePatterns(patterns []string) ([]*regexp2.Regexp, error) {
	compiled := make([]*regexp2.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		re.MatchTimeout = PatternMatchTimeout
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// ResolveDirectories makes each target absolute (expanding a leading ~) and
// verifies it is an existing directory.
func ResolveDirectories(dirs []string) ([]string, error) {
	resolved := make([]string, 0, len(dirs))
	for _, d := range dirs {
		expanded, err := expandHome(d)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s: %w", abs, ErrNotDirectory)
		}
		resolved = append(resolved, abs)
	}
	return resolved, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
