package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/sv2wire/internal/config"
	"github.com/danmuck/sv2wire/internal/observability"
	"github.com/danmuck/sv2wire/internal/pingpong"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath string
	mode       string
	pings      int
	encrypted  string
	initPath   string
	force      bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("pingpong", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to config.toml")
	fs.StringVar(&o.configPath, "c", "", "path to config.toml (shorthand)")
	fs.StringVar(&o.mode, "mode", "", "override mode: server|client|both")
	fs.IntVar(&o.pings, "pings", 0, "override number of pings")
	fs.StringVar(&o.encrypted, "encrypted", "", "override encryption: true|false")
	fs.StringVar(&o.initPath, "init", "", "write a sample config to this path and exit")
	fs.BoolVar(&o.force, "force", false, "overwrite an existing file with -init")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

// resolveConfig loads the file (or defaults) and applies flag overrides.
func resolveConfig(o options) (config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if o.mode != "" {
		cfg.Mode = o.mode
	}
	if o.pings > 0 {
		cfg.Pings = o.pings
	}
	switch o.encrypted {
	case "":
	case "true":
		cfg.Session.Encrypted = true
	case "false":
		cfg.Session.Encrypted = false
	default:
		return config.Config{}, fmt.Errorf("-encrypted must be true or false, got %q", o.encrypted)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	pool, hist := cfg.NewPool(observability.PoolToggles("pingpong"))
	if err := observability.RegisterPool("pingpong", pool); err != nil {
		return err
	}
	cfg.Session.Observer = observability.NewSessionMetrics()

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.AdminAddr != "" {
		admin := observability.Admin{App: "pingpong", Pool: pool, History: hist}
		g.Go(func() error {
			return admin.ListenAndServe(serverCtx, cfg.AdminAddr)
		})
	}

	if cfg.Mode != config.ModeClient {
		srv := pingpong.NewServer(pool, cfg.Session)
		g.Go(func() error {
			return srv.ListenAndServe(serverCtx, cfg.ListenAddr)
		})
	}

	if cfg.Mode != config.ModeServer {
		cl := pingpong.NewClient(pool, cfg.Session)
		cl.Interval = cfg.PingInterval
		g.Go(func() error {
			res, err := cl.Run(gctx, cfg.DialTarget(), cfg.Pings)
			if err != nil {
				return err
			}
			log.Info().
				Int("round_trips", res.RoundTrips).
				Dur("total", res.Total).
				Interface("pool", pool.Stats()).
				Msg("pingpong finished")
			if cfg.Mode == config.ModeBoth {
				stopServer()
			}
			return nil
		})
	}

	return g.Wait()
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if opts.initPath != "" {
		if err := config.WriteTemplate(opts.initPath, opts.force); err != nil {
			fmt.Fprintf(os.Stderr, "pingpong: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote config template to %s\n", opts.initPath)
		return
	}

	observability.InitLogger("pingpong")
	cfg, err := resolveConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pingpong: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("mode", cfg.Mode).
		Str("listen", cfg.ListenAddr).
		Bool("encrypted", cfg.Session.Encrypted).
		Msg("pingpong starting")
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("pingpong failed")
		os.Exit(1)
	}
}
