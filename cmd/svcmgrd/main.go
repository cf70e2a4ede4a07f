// Command svcmgrd is the supervisor daemon: it bootstraps the Restarter
// Core and the Graph Engine, wires the Process Tracker, Timer Set,
// Notification Receiver and Note Bus, and runs the Event Loop until a
// shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrowgate/svcmgr/internal/eventloop"
	"github.com/harrowgate/svcmgr/internal/graph"
	"github.com/harrowgate/svcmgr/internal/notify"
	"github.com/harrowgate/svcmgr/internal/obsfeed"
	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/restarter"
	"github.com/harrowgate/svcmgr/internal/svcconfig"
	"github.com/harrowgate/svcmgr/internal/timerset"
)

var version = "dev"

func main() {
	statusFlag := flag.Bool("status", false, "print the last recorded daemon state and exit")
	confDirFlag := flag.String("confdir", env("SVCMGR_CONF_DIR", "/etc/svcmgr"), "configuration directory")
	flag.Parse()

	confDir := *confDirFlag

	if *statusFlag {
		if err := printStatus(confDir); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	}

	fmt.Printf("svcmgrd %s\n", version)

	if err := os.MkdirAll(confDir, 0o755); err != nil {
		log.Fatalf("conf dir: %v", err)
	}

	cfgStore, err := svcconfig.Load(confDir)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := cfgStore.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository, err := openRepository(ctx, cfg.RepositoryDSN, confDir)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}
	defer repository.Close()

	bus := note.NewBus()
	timers := timerset.New()
	tracker := newTracker()
	forker := restarter.NewShellForker()

	notifySocket := cfg.NotifySocketPath
	receiver, err := notify.Listen(notifySocket)
	if err != nil {
		log.Fatalf("notify socket %s: %v", notifySocket, err)
	}
	defer receiver.Close()

	core := restarter.New(tracker, timers, bus, forker, cfg, notifySocket)
	g := graph.New(bus)

	entries, err := loadManifest(confDir)
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}
	if err := bootstrapUnits(ctx, core, g, repository, bus, entries); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	loop := eventloop.New(core, g, bus, timers, tracker, receiver, nil)

	var obsServer *http.Server
	if cfg.ObsFeedAddr != "" {
		hub := obsfeed.NewHub()
		loop.ObsFeed = hub
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		obsServer = &http.Server{Addr: cfg.ObsFeedAddr, Handler: mux}
		go func() {
			log.Printf("obsfeed: listening on %s", cfg.ObsFeedAddr)
			if err := obsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("obsfeed: %v", err)
			}
		}()
	}

	if err := writeDaemonState(confDir); err != nil {
		log.Printf("state file: %v", err)
	}

	go tracker.Run(ctx)
	go receiver.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("shutting down…")
		cancel()
	}()

	loop.Run(ctx)

	if obsServer != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		if err := obsServer.Shutdown(shutCtx); err != nil {
			log.Printf("obsfeed shutdown: %v", err)
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
