package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"myhebrewdates/internal/auth"
	"myhebrewdates/internal/calendar"
	"myhebrewdates/internal/config"
	appLog "myhebrewdates/internal/log"
	"myhebrewdates/internal/schedule"
	"myhebrewdates/internal/store"
	"myhebrewdates/internal/web"
)

const version = "1.0.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	addUser     string
	password    string
	refreshOnce bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("myhebrewdates starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"site_domain", conf.SiteDomain,
		"default_timezone", conf.DefaultTimezone,
		"horizon_years", conf.HorizonYears,
		"refresh", conf.RefreshCron,
		"database_driver", conf.Database.Driver,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("myhebrewdates failed", err)
		os.Exit(1)
	}
	appLog.Info("myhebrewdates exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	st, err := store.Open(ctx, conf.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if flags.addUser != "" {
		return addUser(ctx, st, flags.addUser, flags.password)
	}

	svc := calendar.NewService(st, calendar.Options{
		HorizonYears:    conf.HorizonYears,
		SiteDomain:      conf.SiteDomain,
		DefaultTimezone: conf.DefaultTimezone,
	})

	sched, err := schedule.New(conf.RefreshCron, svc, 30*time.Minute)
	if err != nil {
		return err
	}

	if flags.refreshOnce {
		n, err := sched.RunOnce(ctx)
		appLog.Info("refresh-once completed", "refreshed", n)
		return err
	}

	sched.Start()
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		sched.Stop(stopCtx)
	}()

	authn := auth.New(st, conf.Auth.JWTSecret, conf.TokenTTL(), nil)
	return web.NewServer(conf, svc, authn).Run(ctx)
}

func addUser(ctx context.Context, st *store.Store, username, password string) error {
	if password == "" {
		return errors.New("-password is required with -add-user")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u, err := st.CreateUser(ctx, username, hash)
	if err != nil {
		return err
	}
	appLog.Info("user created", "user_id", u.ID, "username", u.Username)
	fmt.Printf("created user %q (id %d)\n", u.Username, u.ID)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/myhebrewdates/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.addUser, "add-user", "", "Create a user with this username and exit")
	flag.StringVar(&cfg.password, "password", "", "Password for -add-user")
	flag.BoolVar(&cfg.refreshOnce, "refresh-once", false, "Regenerate outdated feeds once and exit")

	flag.Parse()

	return cfg
}
