// Package config loads the TOML configuration of the finder and keeps it
// current while the server runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/exp/slices"

	"github.com/sourcegraph/zfind/algo"
	"github.com/sourcegraph/zfind/filter"
	"github.com/sourcegraph/zfind/searcher"
)

// Config is the root of the configuration file.
//
//	[matcher]
//	algo = "fzy"
//	case_matching = "smart"
//
//	[provider.grep]
//	ignore = ["vendor/**"]
type Config struct {
	Matcher Matcher `toml:"matcher"`
	Walk    Walk    `toml:"walk"`
	Preview Preview `toml:"preview"`
	Filter  Filter  `toml:"filter"`

	// Provider holds overrides keyed by provider id.
	Provider map[string]Provider `toml:"provider"`
}

type Matcher struct {
	// Algo is the name of a backend in package algo.
	Algo         string `toml:"algo"`
	CaseMatching string `toml:"case_matching"`
}

type Walk struct {
	SkipHidden     bool     `toml:"skip_hidden"`
	FollowSymlinks bool     `toml:"follow_symlinks"`
	MaxDepth       int      `toml:"max_depth"`
	Ignore         []string `toml:"ignore"`
	GitIgnore      bool     `toml:"git_ignore"`
}

type Preview struct {
	// Size is the number of context lines shown around a previewed line.
	Size int `toml:"size"`
}

type Filter struct {
	FlushIntervalMs int `toml:"flush_interval_ms"`
	Parallelism     int `toml:"parallelism"`
}

// Provider overrides the global settings for one provider. Empty fields
// inherit.
type Provider struct {
	Algo         string   `toml:"algo"`
	CaseMatching string   `toml:"case_matching"`
	Ignore       []string `toml:"ignore"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	wc := searcher.DefaultWalkConfig()
	return &Config{
		Matcher: Matcher{Algo: algo.DefaultBackend, CaseMatching: algo.Smart.String()},
		Walk: Walk{
			SkipHidden:     wc.SkipHidden,
			FollowSymlinks: wc.FollowSymlinks,
			GitIgnore:      wc.GitIgnore,
		},
		Preview: Preview{Size: 5},
		Filter:  Filter{FlushIntervalMs: 300},
	}
}

// Load reads the file at path over the defaults. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(path, c)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, 0, len(keys))
		for _, k := range keys {
			names = append(names, k.String())
		}
		return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(names, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	names := algo.Names()
	check := func(where, name string) error {
		if name != "" && !slices.Contains(names, strings.ToLower(name)) {
			return fmt.Errorf("%s: unknown algo %q, want one of %s", where, name, strings.Join(names, ", "))
		}
		return nil
	}
	if err := check("matcher", c.Matcher.Algo); err != nil {
		return err
	}
	for id, p := range c.Provider {
		if err := check("provider."+id, p.Algo); err != nil {
			return err
		}
	}
	if c.Preview.Size < 0 {
		return fmt.Errorf("preview: negative size %d", c.Preview.Size)
	}
	if c.Walk.MaxDepth < 0 {
		return fmt.Errorf("walk: negative max_depth %d", c.Walk.MaxDepth)
	}
	return nil
}

// MatcherFor returns the backend and case matching of the provider id.
func (c *Config) MatcherFor(id string) (algo.Backend, algo.CaseMatching) {
	name, cm := c.Matcher.Algo, c.Matcher.CaseMatching
	if p, ok := c.Provider[id]; ok {
		if p.Algo != "" {
			name = p.Algo
		}
		if p.CaseMatching != "" {
			cm = p.CaseMatching
		}
	}
	return algo.Lookup(name), algo.ParseCaseMatching(cm)
}

// WalkConfig returns the walk settings of the provider id. Provider ignores
// add to the global ones.
func (c *Config) WalkConfig(id string) searcher.WalkConfig {
	ignore := slices.Clone(c.Walk.Ignore)
	if p, ok := c.Provider[id]; ok {
		ignore = append(ignore, p.Ignore...)
	}
	return searcher.WalkConfig{
		SkipHidden:     c.Walk.SkipHidden,
		FollowSymlinks: c.Walk.FollowSymlinks,
		MaxDepth:       c.Walk.MaxDepth,
		Ignore:         ignore,
		GitIgnore:      c.Walk.GitIgnore,
	}
}

// StreamOptions returns the streaming filter settings for number results.
func (c *Config) StreamOptions(number int) filter.StreamOptions {
	return filter.StreamOptions{
		Number:        number,
		FlushInterval: time.Duration(c.Filter.FlushIntervalMs) * time.Millisecond,
		Parallelism:   c.Filter.Parallelism,
	}
}
