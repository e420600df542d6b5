package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdbco/mdb/internal/engine"
	"github.com/mdbco/mdb/pkg/config"
	"github.com/mdbco/mdb/pkg/database"
	"github.com/mdbco/mdb/pkg/logger"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML configuration file")
		port        = flag.Int("port", 0, "HTTP port (overrides configuration)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("mdb %s\n", version)
		return
	}

	cfg := config.New()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	cfg.LoadEnv()
	if *port != 0 {
		cfg.Update(map[string]string{"server.port": fmt.Sprintf("%d", *port)})
	}

	log := logger.New("mdb", version)
	log.Infof("Starting mdb %s", version)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.Initialize(ctx, database.FromConfig(cfg)); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := database.GetInstance()
	defer db.Close()

	e := engine.NewEngine(cfg, db, log)
	if err := e.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received signal %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.Stop(shutdownCtx); err != nil {
		log.Errorf("Shutdown error: %v", err)
	}
}
