// Command zfind-server is the finder backend of an editor. It reads one
// JSON message per line on stdin and writes responses to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	sglog "github.com/sourcegraph/log"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/config"
	"github.com/sourcegraph/zfind/debugserver"
	"github.com/sourcegraph/zfind/filter"
	"github.com/sourcegraph/zfind/internal/profiler"
	"github.com/sourcegraph/zfind/job"
	"github.com/sourcegraph/zfind/process"
	"github.com/sourcegraph/zfind/provider"
	"github.com/sourcegraph/zfind/recent"
	"github.com/sourcegraph/zfind/rpc"
	"github.com/sourcegraph/zfind/session"
)

type rootConfig struct {
	config      string
	cacheDir    string
	listen      string
	enablePprof bool
	maxRecent   int
	flushEvery  time.Duration
	version     bool
}

func (rc *rootConfig) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&rc.config, "config", defaultConfigPath(), "read settings from this TOML `file`. It is reloaded when it changes.")
	fs.StringVar(&rc.cacheDir, "cache_dir", defaultCacheDir(), "keep forerunner output, recent files and the session log in this `directory`")
	fs.StringVar(&rc.listen, "listen", "", "serve metrics and debug pages on this address. Empty disables it.")
	fs.BoolVar(&rc.enablePprof, "pprof", false, "set to enable remote profiling.")
	fs.IntVar(&rc.maxRecent, "max_recent", recent.DefaultMaxEntries, "remember this many recent files")
	fs.DurationVar(&rc.flushEvery, "recent_flush_interval", time.Minute, "write recent files this often")
	fs.BoolVar(&rc.version, "version", false, "Print version number")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "zfind", "config.toml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "zfind")
	}
	return filepath.Join(dir, "zfind")
}

func run(ctx context.Context, rc *rootConfig, logger sglog.Logger) error {
	if err := os.MkdirAll(rc.cacheDir, 0o755); err != nil {
		return fmt.Errorf("MkdirAll %s: %w", rc.cacheDir, err)
	}

	store, err := config.NewStore(logger, rc.config)
	if err != nil {
		return err
	}

	recentFiles, err := recent.Load(filepath.Join(rc.cacheDir, "recent_files.json"), rc.maxRecent)
	if err != nil {
		// A corrupt file is replaced on the next flush.
		logger.Warn("failed to load recent files", sglog.Error(err))
		recentFiles = recent.New(filepath.Join(rc.cacheDir, "recent_files.json"), rc.maxRecent)
	}

	sessionLog := &lumberjack.Logger{
		Filename:   filepath.Join(rc.cacheDir, "zfind-session-log.tsv"),
		MaxSize:    10, // Megabyte
		MaxBackups: 3,
	}
	defer sessionLog.Close()

	w := rpc.NewWriter(os.Stdout)
	mg := session.NewManager(session.Deps{
		Logger:    logger,
		Responder: w,
		Registry:  provider.NewRegistry(),
		Jobs:      job.NewRegistry(),
		History:   provider.NewHistory(),
		Runner:    &process.Shell{Logger: logger},
		Sched:     filter.NewScheduler(int64(store.Get().Filter.Parallelism)),
		Recent:    recentFiles,
		Config:    store,
		CacheDir:  filepath.Join(rc.cacheDir, "forerunner"),
	}, sessionLog)

	mustRegisterDiskMonitor(rc.cacheDir)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := store.Watch(ctx, func(c *config.Config) {
			logger.Info("config reloaded", sglog.String("algo", c.Matcher.Algo))
		})
		if err != nil {
			logger.Warn("not watching config", sglog.String("path", rc.config), sglog.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		t := time.NewTicker(rc.flushEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if err := recentFiles.Flush(); err != nil {
					logger.Warn("failed to write recent files", sglog.Error(err))
				}
			}
		}
	})

	if rc.listen != "" {
		mux := http.NewServeMux()
		debugserver.AddHandlers(mux, rc.enablePprof, debugserver.Page{Name: "Sessions", Path: "/debug/sessions", Handler: mg})
		srv := &http.Server{Addr: rc.listen, Handler: mux}
		g.Go(func() error {
			logger.Info("serving HTTP", sglog.String("listen", rc.listen))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// The editor closing stdin stops the server.
		defer cancel()
		return session.Serve(ctx, logger, rpc.NewReader(os.Stdin), w, mg)
	})

	err = g.Wait()
	if ferr := recentFiles.Flush(); ferr != nil {
		logger.Warn("failed to write recent files", sglog.Error(ferr))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func rootCmd(logger sglog.Logger) *ffcli.Command {
	rc := &rootConfig{}
	fs := flag.NewFlagSet("zfind-server", flag.ExitOnError)
	rc.registerFlags(fs)

	return &ffcli.Command{
		ShortUsage: "zfind-server [flags]",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("ZFIND")},
		Exec: func(ctx context.Context, args []string) error {
			if rc.version {
				fmt.Printf("zfind-server version %q\n", zfind.Version)
				return nil
			}
			return run(ctx, rc, logger)
		},
	}
}

func main() {
	liblog := sglog.Init(sglog.Resource{
		Name:       "zfind-server",
		Version:    zfind.Version,
		InstanceID: os.Getenv("HOSTNAME"),
	})
	defer liblog.Sync()

	// Tune GOMAXPROCS to match Linux container CPU quota.
	_, _ = maxprocs.Set()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := sglog.Scoped("server", "finder backend")
	profiler.Init(logger, "zfind-server", zfind.Version)
	if err := rootCmd(logger).ParseAndRun(ctx, os.Args[1:]); err != nil {
		logger.Error("exiting", sglog.Error(err))
		liblog.Sync()
		os.Exit(1)
	}
}
