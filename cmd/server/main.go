// FamDesk Server - A remote-access broker pairing screen-sharing hosts
// with controlling clients.
//
// This server provides:
//   - WebSocket connections for hosts and clients
//   - Short-lived 6-digit access codes with an approval handshake
//   - Per-session relay of screen, control, and file-transfer payloads
//   - Failed-attempt rate limiting per client origin
//   - A SQLite audit log and an operator status API
//
// Usage:
//
//	./famdesk-server -config configs/server.yaml
//
// Flags:
//
//	-config: Path to configuration file (default: configs/server.yaml)
//	-version: Show version information
//	-gen-token: Generate an operator token and its config hash
//
// Configuration:
//
//	The server is configured via YAML file. See configs/server.example.yaml
//	for a complete example.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/famdesk/famdesk/internal/database"
	"github.com/famdesk/famdesk/internal/server/access"
	"github.com/famdesk/famdesk/internal/server/auth"
	"github.com/famdesk/famdesk/internal/server/broker"
	"github.com/famdesk/famdesk/internal/server/config"
	"github.com/famdesk/famdesk/internal/server/control"
	"github.com/famdesk/famdesk/internal/server/ratelimit"
	"github.com/famdesk/famdesk/internal/server/registry"
	"github.com/famdesk/famdesk/internal/server/relay"
	"github.com/famdesk/famdesk/internal/server/session"
	"github.com/famdesk/famdesk/pkg/protocol"
)

var (
	version = "dev" // Server version, set during build
)

// main is the entry point for FamDesk server.
func main() {
	configPath := flag.String("config", "configs/server.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	genToken := flag.Bool("gen-token", false, "Generate an operator token and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("FamDesk Server %s\n", version)
		os.Exit(0)
	}

	if *genToken {
		token, hash, err := auth.GenerateToken()
		if err != nil {
			log.Fatalf("Failed to generate operator token: %v", err)
		}
		fmt.Printf("Operator token: %s\n", token)
		fmt.Printf("Config hash (auth.operator_token_hash): %s\n", hash)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	repo, err := database.NewRepository(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer repo.Close()

	clk := clock.New()
	conns := registry.NewRegistry()

	codes := access.NewRegistry(clk, cfg.Broker.CodeTTL(), func(hostID, code string) {
		conns.Send(hostID, protocol.NewMessage(protocol.MsgTypeCodeExpired, &protocol.CodeExpired{
			Code: code,
		}))
	})
	limiter := ratelimit.NewLimiter(clk, cfg.Broker.MaxFailedAttempts, cfg.Broker.BlockWindow())
	sessions := session.NewManager(clk, cfg.Broker.SessionIdleTimeout(), conns, database.NewAuditor(repo))
	handshake := broker.NewBroker(codes, limiter, conns, sessions)
	router := relay.NewRouter(sessions, conns)
	handler := control.NewHandler(conns, codes, handshake, sessions, router)
	guard := auth.NewGuard(cfg.Auth.OperatorTokenHash)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleWebSocket)
	mux.HandleFunc("/health", handleHealthCheck)
	mux.HandleFunc("/api/status", statusHandler(guard, conns, sessions, codes, repo))
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
		log.Printf("Serving static assets from %s", cfg.Server.StaticDir)
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.ListenPort)
		log.Printf("Starting FamDesk server on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Printf("FamDesk Server %s started", version)
	log.Printf("Code TTL: %s, session idle timeout: %s", cfg.Broker.CodeTTL(), cfg.Broker.SessionIdleTimeout())
	if guard.Enabled() {
		log.Printf("Operator status API enabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","version":%q}`, version)
}

// statusReport is the operator status API response.
type statusReport struct {
	Connections      int                    `json:"connections"`
	ActiveSessions   int                    `json:"active_sessions"`
	OutstandingCodes int                    `json:"outstanding_codes"`
	RecentSessions   []*database.SessionLog `json:"recent_sessions"`
}

func statusHandler(guard *auth.Guard, conns *registry.Registry, sessions *session.Manager, codes *access.Registry, repo *database.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !guard.Enabled() {
			http.NotFound(w, r)
			return
		}
		if !guard.Authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		recent, err := repo.RecentSessions(20)
		if err != nil {
			log.Printf("Failed to load recent sessions: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&statusReport{
			Connections:      conns.Count(),
			ActiveSessions:   sessions.Count(),
			OutstandingCodes: codes.Count(),
			RecentSessions:   recent,
		})
	}
}
