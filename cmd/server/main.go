package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voidstar.gg/internal/chat"
	"voidstar.gg/internal/game"
	"voidstar.gg/internal/llm"
	"voidstar.gg/internal/logging"
	"voidstar.gg/internal/sim"
	"voidstar.gg/internal/translog"
	"voidstar.gg/internal/transport/ws"
	"voidstar.gg/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (empty: built-in defaults)")
		logLevel   = flag.String("log-level", "info", "log level (debug|info|warn|error)")
		seed       = flag.Int64("seed", 0, "rng seed for agent placement and walks (0: time-based)")
	)
	flag.Parse()

	logger := logging.New(*logLevel, os.Stdout)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Error("load tuning", "err", err)
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	store := game.NewStore(game.Config{
		XDim:                    tune.World.XDim,
		YDim:                    tune.World.YDim,
		MinConversationDistance: tune.MinConversationDistance,
	})
	store.SeedAgents(tune.Agents.Count, rng)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Warn("OPENAI_API_KEY not set; chat requests will be rejected upstream")
	}
	completer := llm.NewClient(tune.LLM.BaseURL, apiKey, tune.LLM.Model)

	var transcripts chat.Transcripts
	if tune.TranscriptDir != "" {
		tl := translog.New(tune.TranscriptDir)
		defer tl.Close()
		transcripts = tl
	}
	relay := chat.NewRelay(store, completer, transcripts, logger)

	ctx, cancel := signalContext()
	defer cancel()

	loop := sim.NewLoop(store, sim.Config{
		TickEvery:   time.Duration(tune.SimTickMs) * time.Millisecond,
		WalkJitter:  tune.Agents.WalkJitter,
		EvictBeyond: tune.MinConversationDistance,
	}, rng, logger)
	go func() {
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("simulation loop stopped", "err", err)
		}
	}()

	wsSrv := ws.NewServer(store, relay, logger, time.Duration(tune.BroadcastMs)*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := store.Metrics()

		fmt.Fprintf(rw, "# HELP voidstar_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE voidstar_clients gauge\n")
		fmt.Fprintf(rw, "voidstar_clients %d\n", wsSrv.ClientCount())

		fmt.Fprintf(rw, "# HELP voidstar_agents Current number of agents.\n")
		fmt.Fprintf(rw, "# TYPE voidstar_agents gauge\n")
		fmt.Fprintf(rw, "voidstar_agents %d\n", m.Agents)

		fmt.Fprintf(rw, "# HELP voidstar_conversations Current number of active conversations.\n")
		fmt.Fprintf(rw, "# TYPE voidstar_conversations gauge\n")
		fmt.Fprintf(rw, "voidstar_conversations %d\n", m.Conversations)
	})
	mux.HandleFunc("/api/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", "addr", *addr, "agents", tune.Agents.Count, "seed", *seed)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ListenAndServe", "err", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
