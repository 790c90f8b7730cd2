package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"beatcraft.ai/internal/config"
	"beatcraft.ai/internal/effects"
	"beatcraft.ai/internal/journal"
	"beatcraft.ai/internal/layoutdb"
	"beatcraft.ai/internal/pool"
	"beatcraft.ai/internal/router"
	"beatcraft.ai/internal/spatial"
	"beatcraft.ai/internal/stagehost"
	"beatcraft.ai/internal/transport/viewer"
	"beatcraft.ai/internal/transport/ws"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to beatcraft.yaml (optional)")
		addr        = flag.String("addr", "", "ingest listen address (overrides config)")
		viewerAddr  = flag.String("viewer_addr", "", "viewer listen address (overrides config)")
		enablePprof = flag.Bool("pprof", false, "expose /debug/pprof on the ingest listener")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[renderhost] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.ListenAddr = *addr
	}
	if strings.TrimSpace(*viewerAddr) != "" {
		cfg.ViewerListenAddr = *viewerAddr
	}

	store, err := layoutdb.Open(cfg.Storage.LayoutDB, logger)
	if err != nil {
		logger.Fatalf("open layout store: %v", err)
	}
	defer store.Close()

	zones := spatial.NewRegistry(spatial.RegistryConfig{
		MaxZones:  cfg.Limits.MaxZones,
		MaxStages: cfg.Limits.MaxStages,
	}, store, logger)
	savedZones, savedStages, err := store.Load()
	if err != nil {
		logger.Fatalf("load layout: %v", err)
	}
	zones.Restore(savedZones, savedStages)
	if len(savedZones) > 0 || len(savedStages) > 0 {
		logger.Printf("restored %d zones, %d stages", len(savedZones), len(savedStages))
	}

	pools := pool.NewManager(pool.Config{
		MaxPerZone:          cfg.Limits.MaxProxiesPerZone,
		MaxParticlesPerTick: cfg.Limits.MaxParticlesPerTick,
	}, zones, logger)
	fx := effects.NewManager(effects.DefaultRegistry(), zones, pools, logger)

	host := stagehost.New(stagehost.Config{
		TickRateHz: cfg.TickRateHz,
		World:      cfg.World,
	}, zones, pools, fx, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("host loop: %v", err)
		}
	}()

	seedLayout(host, cfg, logger)

	audioJournal := journal.NewWriter(cfg.Storage.JournalDir, "audio")
	defer audioJournal.Close()

	assist := router.NewAssist(router.AssistConfig{
		ConfidenceMin: cfg.Assist.ConfidenceMin,
		PhaseEdge:     cfg.Assist.PhaseEdge,
		FrameInterval: cfg.Assist.FrameInterval(),
		Cooldown:      cfg.Assist.Cooldown(),
	}, nil)
	rt := router.New(host, assist, audioJournal, logger)

	ingestMux := http.NewServeMux()
	ingestMux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	ingestMux.HandleFunc("/v1/ws", ws.NewServer(rt, logger).Handler())
	if *enablePprof {
		ingestMux.HandleFunc("/debug/pprof/", pprof.Index)
		ingestMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		ingestMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		ingestMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		ingestMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	viewerMux := http.NewServeMux()
	viewerMux.HandleFunc("/v1/viewer", viewer.NewServer(host, logger).Handler())

	ingestSrv := &http.Server{Addr: cfg.ListenAddr, Handler: ingestMux}
	viewerSrv := &http.Server{Addr: cfg.ViewerListenAddr, Handler: viewerMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Printf("ingest listening on %s", cfg.ListenAddr)
		errCh <- ingestSrv.ListenAndServe()
	}()
	go func() {
		logger.Printf("viewer listening on %s", cfg.ViewerListenAddr)
		errCh <- viewerSrv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Printf("signal %v, shutting down", s)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("listen: %v", err)
		}
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = ingestSrv.Shutdown(shutCtx)
	_ = viewerSrv.Shutdown(shutCtx)
	cancel()
	<-hostDone
	logger.Printf("bye")
}

// seedLayout creates the zones, stages and effect bindings declared in the
// config. Zones already present from the layout store are left as they are.
func seedLayout(host *stagehost.Host, cfg config.Config, logger *log.Logger) {
	for _, z := range cfg.Zones {
		_, err := host.CreateZone(spatial.ZoneRecord{
			Name:     z.Name,
			Origin:   z.Origin,
			Size:     z.Size,
			Rotation: z.Rotation,
		})
		if err != nil && !errors.Is(err, spatial.ErrExists) {
			logger.Printf("seed zone %s: %v", z.Name, err)
			continue
		}
		for _, e := range z.Effects {
			var raw json.RawMessage
			if len(e.Config) > 0 {
				raw, _ = json.Marshal(e.Config)
			}
			if err := host.AttachEffect(z.Name, e.ID, raw); err != nil {
				logger.Printf("seed effect %s on %s: %v", e.ID, z.Name, err)
			}
		}
	}
	for _, s := range cfg.Stages {
		members := make([]spatial.StageMemberRecord, 0, len(s.Members))
		for _, m := range s.Members {
			members = append(members, spatial.StageMemberRecord{Role: m.Role, Zone: m.Zone, Offset: m.Offset})
		}
		err := host.CreateStage(spatial.StageRecord{
			Name:     s.Name,
			Anchor:   s.Anchor,
			Rotation: s.Rotation,
			Members:  members,
		})
		if err != nil && !errors.Is(err, spatial.ErrExists) {
			logger.Printf("seed stage %s: %v", s.Name, err)
		}
	}
}
