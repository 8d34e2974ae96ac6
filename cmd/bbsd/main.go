// Command bbsd is the BBS daemon entrypoint: it wires the loader, backend,
// event bus, config and console together and runs the autoload/console
// lifecycle, grounded on StdApplication.Run's signal-handling shape in
// application.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lbbs/loader"
	"github.com/lbbs/loader/autoload"
	"github.com/lbbs/loader/backend"
	"github.com/lbbs/loader/config"
	"github.com/lbbs/loader/console"
	"github.com/lbbs/loader/eventbus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bbsd:", err)
		os.Exit(1)
	}
}

func run() error {
	log, err := loader.NewProductionLogger()
	if err != nil {
		return err
	}

	cfg, err := config.Load(
		config.TOMLFeeder{Path: configPath()},
		config.EnvFeeder{},
	)
	if err != nil {
		return err
	}

	bus := eventbus.NewBus(256)
	be := backend.NewPluginBackend(cfg.Autoload.ModulesDir)
	l := loader.NewLoader(be, bus, log)
	defer l.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	names, err := autoload.ExpandNames(cfg.Autoload.ModulesDir, cfg.Autoload.Order)
	if err != nil {
		return err
	}
	result := autoload.LoadAll(ctx, l, names)
	log.Info("autoload complete", "status", result.Status(), "loaded", len(result.Loaded), "failed", len(result.Failures))
	for _, f := range result.Failures {
		log.Warn("autoload failure", "module", f.Name, "error", f.Err)
	}

	if cfg.Autoload.RescanInterval > 0 {
		rescanner := autoload.NewRescanner(l, cfg.Autoload.ModulesDir, cfg.Autoload.Order, log)
		if err := rescanner.Start(ctx, fmt.Sprintf("@every %s", cfg.Autoload.RescanInterval)); err != nil {
			return err
		}
		defer rescanner.Stop()
	}

	root := console.NewRootCommand(l, os.Stdout)
	root.SetArgs(os.Args[1:])
	if len(os.Args) > 1 {
		return root.ExecuteContext(ctx)
	}

	<-ctx.Done()
	log.Info("shutting down, unloading modules in reverse dependency order")
	return autoload.UnloadAll(context.Background(), l)
}

func configPath() string {
	if v := os.Getenv("LBBS_CONFIG"); v != "" {
		return v
	}
	return "/etc/lbbs/loader.toml"
}
