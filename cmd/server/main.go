// Command server boots the Synapse exchange: the two websocket listeners
// (agent exchange on SYNAPSE_PORT, read-only observer tape on
// SYNAPSE_SPECTATOR_PORT), the system HTTP surface (/healthz, /metrics,
// /api/demo/timeout), and the optional GitHub webhook ingress — all wired
// to one in-process Exchange. Grounded on cmd/api/main.go's
// construct-collaborators-then-start-servers shape, generalized from the
// teacher's single REST gateway to this repo's dual-websocket-plus-HTTP
// topology.
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/cjy919100-del/synapse-proto/internal/api"
	"github.com/cjy919100-del/synapse-proto/internal/auditsink"
	"github.com/cjy919100-del/synapse-proto/internal/config"
	"github.com/cjy919100-del/synapse-proto/internal/core"
	"github.com/cjy919100-del/synapse-proto/internal/exchange"
	"github.com/cjy919100-del/synapse-proto/internal/githubingress"
	"github.com/cjy919100-del/synapse-proto/internal/ledger"
	"github.com/cjy919100-del/synapse-proto/internal/ledgertape"
	"github.com/cjy919100-del/synapse-proto/internal/metrics"
	"github.com/cjy919100-del/synapse-proto/internal/noncecache"
	"github.com/cjy919100-del/synapse-proto/internal/reputation"
	"github.com/cjy919100-del/synapse-proto/internal/scheduler"
	"github.com/cjy919100-del/synapse-proto/internal/store"
	"github.com/cjy919100-del/synapse-proto/internal/wire"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️ .env load failed: %v", err)
	}

	cfg, err := config.Load(os.Getenv("SYNAPSE_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Println("🔥 starting Synapse exchange...")

	ledg := ledger.New()
	rep := reputation.New()
	sched := scheduler.New(nil) // callback late-bound by exchange.New
	tape := ledgertape.NewVault(nowMs)
	bus := ledgertape.NewBus()

	var persister exchange.Persister
	if cfg.DatabaseURL != "" {
		st, err := store.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("store open failed: %v", err)
		}
		defer st.Close()
		persister = st
		log.Println("📡 persistence enabled against DATABASE_URL")
	} else {
		log.Println("📡 persistence disabled — serving from memory only")
	}

	eval := exchange.NewReferenceEvaluator()

	var audit exchange.AuditSink = auditsink.New(auditsink.NoopClient{})
	if cfg.AuditGRPCAddr != "" {
		log.Printf("⚠️ SYNAPSE_AUDIT_GRPC_ADDR set to %q but no compiled audit-collector stub is wired in; settlement mirroring is a no-op", cfg.AuditGRPCAddr)
	}

	ex := exchange.New(cfg, ledg, rep, sched, tape, bus, persister, eval, audit)

	hub := wire.NewHub()
	ex.SetOutbox(hub)

	observerHub := wire.NewObserverHub(bus)

	nonces, err := noncecache.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("nonce cache init failed: %v", err)
	}
	defer nonces.Close()

	router := wire.NewRouter(hub, ex, nonces, secondsToDuration(cfg.AuthTimeoutSeconds), cfg.ProtocolVersion)
	listener := wire.NewListener(router, observerHub, func() core.Snapshot {
		return ex.Snapshot(context.Background())
	})

	metrics.New(
		metrics.GaugeSources{
			OpenJobs:         func() float64 { return float64(ex.OpenJobCount()) },
			LockedCredits:    func() float64 { c, _ := ex.LockedTotals(); return float64(c) },
			LockedStake:      func() float64 { _, s := ex.LockedTotals(); return float64(s) },
			ArmedTimers:      func() float64 { return float64(ex.ArmedTimerCount()) },
			EvidenceRingSize: func() float64 { return float64(ex.EvidenceRingSize()) },
			ActiveSessions:   func() float64 { return float64(hub.Count()) },
		},
		metrics.CounterSources{
			JobsPosted:       func() float64 { return float64(ex.JobsPostedTotal()) },
			BidsPlaced:       func() float64 { return float64(ex.BidsPlacedTotal()) },
			EvidenceAppended: func() float64 { return float64(ex.EvidenceAppendedTotal()) },
		},
		func() map[string]int {
			counts := ex.JobsByStatus()
			out := make(map[string]int, len(counts))
			for status, n := range counts {
				out[string(status)] = n
			}
			return out
		},
	)

	ghHandler := githubingress.New(ex, cfg.GithubWebhookSecret)

	exchangeMux := http.NewServeMux()
	exchangeMux.HandleFunc("/agent", listener.HandleAgent)
	exchangeMux.HandleFunc("/webhooks/github", ghHandler.ServeHTTP)

	observerMux := http.NewServeMux()
	observerMux.HandleFunc("/observer", listener.HandleObserver)

	go func() {
		log.Printf("🚀 agent exchange listening on :%d", cfg.Port)
		if err := http.ListenAndServe(addr(cfg.Port), exchangeMux); err != nil {
			log.Fatalf("agent exchange listener failed: %v", err)
		}
	}()

	go func() {
		log.Printf("🚀 observer stream listening on :%d", cfg.SpectatorPort)
		if err := http.ListenAndServe(addr(cfg.SpectatorPort), observerMux); err != nil {
			log.Fatalf("observer listener failed: %v", err)
		}
	}()

	apiServer := api.New(ex)
	if err := apiServer.Start(systemHTTPPort); err != nil {
		log.Fatalf("system HTTP surface failed: %v", err)
	}
}

// systemHTTPPort hosts /healthz, /metrics, and /api/demo/timeout — distinct
// from the agent/observer websocket ports so a reverse proxy can expose
// monitoring endpoints without also exposing the exchange protocol.
const systemHTTPPort = 8788
