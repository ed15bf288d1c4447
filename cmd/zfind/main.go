// Copyright 2016 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command zfind ranks lines from the command line: filter reads lines from
// a file or stdin, grep searches a directory tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/felixge/fgprof"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	sglog "github.com/sourcegraph/log"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/algo"
	"github.com/sourcegraph/zfind/config"
	"github.com/sourcegraph/zfind/filter"
	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/matcher"
	"github.com/sourcegraph/zfind/printer"
	"github.com/sourcegraph/zfind/query"
	"github.com/sourcegraph/zfind/rpc"
	"github.com/sourcegraph/zfind/searcher"
	"github.com/sourcegraph/zfind/stream"
)

type rootConfig struct {
	config      string
	cpuProfile  string
	fullProfile string
	profileTime time.Duration

	algo     string
	caseMode string
	number   int
	winwidth int
	json     bool
}

func (rc *rootConfig) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&rc.config, "config", "", "read matcher and walk settings from this TOML `file`")
	fs.StringVar(&rc.cpuProfile, "cpu_profile", "", "write cpu profile to `file`")
	fs.StringVar(&rc.fullProfile, "full_profile", "", "write full profile to `file`")
	fs.DurationVar(&rc.profileTime, "profile_time", time.Second, "run this long to gather stats.")
	fs.StringVar(&rc.algo, "algo", "", "fuzzy backend, one of "+strings.Join(algo.Names(), ", "))
	fs.StringVar(&rc.caseMode, "case", "", "case matching: smart, ignore or respect")
	fs.IntVar(&rc.number, "n", 30, "print this many of the best matches")
	fs.IntVar(&rc.winwidth, "winwidth", 0, "truncate lines to this many cells. 0 disables truncation.")
	fs.BoolVar(&rc.json, "json", false, "print an on_typed result instead of plain lines")
}

// matcher builds the matcher for q. Flags override the config file.
func (rc *rootConfig) matcher(cfg *config.Config, providerID, q string) (*matcher.Matcher, error) {
	backend, cm := cfg.MatcherFor(providerID)
	if rc.algo != "" {
		backend = algo.Lookup(rc.algo)
		if backend == nil {
			return nil, fmt.Errorf("unknown algo %q", rc.algo)
		}
	}
	if rc.caseMode != "" {
		cm = algo.ParseCaseMatching(rc.caseMode)
	}
	return matcher.Builder{Backend: backend, Case: cm}.Build(query.Parse(q)), nil
}

func (rc *rootConfig) print(w io.Writer, sr *zfind.SearchResult) error {
	if rc.json {
		width := rc.winwidth
		if width <= 0 {
			width = 1 << 20
		}
		return rpc.NewWriter(w).Write(&rpc.Response{Result: rpc.NewOnTyped(sr.Matched, printer.Decorate(sr.Matches, width), true)})
	}
	for _, m := range sr.Matches {
		text := m.Text
		if rc.winwidth > 0 {
			text, _, _ = printer.Truncate(text, nil, rc.winwidth)
		}
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	return nil
}

func profile(path string, duration time.Duration, start func(io.Writer) (stop func() error)) (func() bool, error) {
	if path == "" {
		return func() bool { return false }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	t := time.Now()
	stop := start(f)

	return func() bool {
		if time.Since(t) < duration {
			return true
		}
		if err := stop(); err != nil {
			fmt.Fprintf(os.Stderr, "stop profile %s: %v\n", path, err)
		}
		f.Close()
		return false
	}, nil
}

// repeat runs fn again while the profiles requested by rc are gathered, so
// they measure warm caches.
func (rc *rootConfig) repeat(fn func() error) error {
	cpu, err := profile(rc.cpuProfile, rc.profileTime, func(w io.Writer) func() error {
		if err := pprof.StartCPUProfile(w); err != nil {
			return func() error { return err }
		}
		return func() error {
			pprof.StopCPUProfile()
			return nil
		}
	})
	if err != nil {
		return err
	}
	for cpu() {
		if err := fn(); err != nil {
			return err
		}
	}

	full, err := profile(rc.fullProfile, rc.profileTime, func(w io.Writer) func() error {
		return fgprof.Start(w, fgprof.FormatPprof)
	})
	if err != nil {
		return err
	}
	for full() {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func filterCmd(rc *rootConfig, logger sglog.Logger) *ffcli.Command {
	fs := flag.NewFlagSet("zfind filter", flag.ExitOnError)
	rc.registerFlags(fs)
	input := fs.String("input", "", "read lines from `file` instead of stdin")
	scope := fs.String("scope", "full", "part of each line that is matched: full, filename, grepline or tagname")
	provider := fs.String("provider", "", "take matcher settings of this provider from the config file")

	return &ffcli.Command{
		Name:       "filter",
		ShortUsage: "zfind filter [flags] QUERY",
		ShortHelp:  "rank the lines of a file or stdin",
		LongHelp:   "For example\n\n  git ls-files | zfind filter -scope filename 'main .go$'",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("ZFIND")},
		Exec: func(ctx context.Context, args []string) error {
			cfg, err := config.Load(rc.config)
			if err != nil {
				return err
			}
			m, err := rc.matcher(cfg, *provider, strings.Join(args, " "))
			if err != nil {
				return err
			}

			var src filter.Source = filter.ReaderSource{R: os.Stdin}
			if *input != "" {
				src = filter.FileSource{Path: *input}
			}
			opts := cfg.StreamOptions(rc.number)
			opts.Kind = item.KindFor(*scope)

			run := func() (*zfind.SearchResult, error) {
				s := filter.NewStreamer(logger, filter.NewScheduler(0), stream.SenderFunc(func(*zfind.SearchResult) {}))
				return s.Run(ctx, m, src, opts)
			}
			sr, err := run()
			if err != nil {
				return err
			}
			// stdin can only be read once.
			if *input != "" {
				if err := rc.repeat(func() error { _, err := run(); return err }); err != nil {
					return err
				}
			}
			logger.Debug("filtered",
				sglog.Int("processed", sr.Processed),
				sglog.Int("matched", sr.Matched),
				sglog.Duration("duration", sr.Duration))
			return rc.print(os.Stdout, sr)
		},
	}
}

func grepCmd(rc *rootConfig, logger sglog.Logger) *ffcli.Command {
	fs := flag.NewFlagSet("zfind grep", flag.ExitOnError)
	rc.registerFlags(fs)
	dir := fs.String("dir", ".", "search below this `directory`, or in this file with -mode blines")
	mode := fs.String("mode", "grep", "what to match: grep (lines of files), files (paths) or blines (lines of one file)")

	return &ffcli.Command{
		Name:       "grep",
		ShortUsage: "zfind grep [flags] QUERY",
		ShortHelp:  "rank the lines or paths of a directory tree",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("ZFIND")},
		Exec: func(ctx context.Context, args []string) error {
			cfg, err := config.Load(rc.config)
			if err != nil {
				return err
			}

			sc := searcher.Config{Root: *dir, Logger: logger}
			var providerID string
			switch *mode {
			case "grep":
				sc.Mode, providerID = searcher.Grep, "grep"
			case "files":
				sc.Mode, providerID = searcher.Files, "files"
			case "blines":
				sc.Mode, providerID = searcher.Blines, "blines"
			default:
				return fmt.Errorf("unknown mode %q", *mode)
			}
			sc.Walk = cfg.WalkConfig(providerID)

			m, err := rc.matcher(cfg, providerID, strings.Join(args, " "))
			if err != nil {
				return err
			}

			run := func() (*zfind.SearchResult, error) {
				events, ctl := searcher.Search(ctx, m, sc)
				sr, err := searcher.Collect(ctx, logger, events, searcher.CollectOptions{Number: rc.number}, stream.SenderFunc(func(*zfind.SearchResult) {}))
				if werr := ctl.Wait(); werr != nil && err == nil {
					err = werr
				}
				return sr, err
			}
			sr, err := run()
			if err != nil {
				return err
			}
			if err := rc.repeat(func() error { _, err := run(); return err }); err != nil {
				return err
			}
			return rc.print(os.Stdout, sr)
		},
	}
}

func rootCmd(logger sglog.Logger) *ffcli.Command {
	rc := &rootConfig{}
	fs := flag.NewFlagSet("zfind", flag.ExitOnError)
	version := fs.Bool("version", false, "Print version number")

	return &ffcli.Command{
		ShortUsage:  "zfind [flags] <subcommand> [flags] QUERY",
		FlagSet:     fs,
		Subcommands: []*ffcli.Command{filterCmd(rc, logger), grepCmd(rc, logger)},
		Exec: func(ctx context.Context, args []string) error {
			if *version {
				fmt.Printf("zfind version %q\n", zfind.Version)
				return nil
			}
			return flag.ErrHelp
		},
	}
}

func main() {
	liblog := sglog.Init(sglog.Resource{
		Name:       "zfind",
		Version:    zfind.Version,
		InstanceID: os.Getenv("HOSTNAME"),
	})
	defer liblog.Sync()

	// Tune GOMAXPROCS to match Linux container CPU quota.
	_, _ = maxprocs.Set()

	logger := sglog.Scoped("zfind", "command line finder")
	if err := rootCmd(logger).ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
