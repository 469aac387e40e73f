package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/talkwire/talkwire/internal/auth"
	"github.com/talkwire/talkwire/internal/chatstore"
	chatpg "github.com/talkwire/talkwire/internal/chatstore/postgres"
	chatsqlite "github.com/talkwire/talkwire/internal/chatstore/sqlite"
	"github.com/talkwire/talkwire/internal/config"
	"github.com/talkwire/talkwire/internal/generator"
	"github.com/talkwire/talkwire/internal/generator/loopback"
	"github.com/talkwire/talkwire/internal/generator/scripted"
	"github.com/talkwire/talkwire/internal/generator/upstream"
	"github.com/talkwire/talkwire/internal/httpserver"
	"github.com/talkwire/talkwire/internal/logging"
	"github.com/talkwire/talkwire/internal/userstore"
	userpg "github.com/talkwire/talkwire/internal/userstore/postgres"
	usersqlite "github.com/talkwire/talkwire/internal/userstore/sqlite"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(300 * 1024 * 1024) // 300MB
	if target := strings.TrimSpace(cfg.LogFile); target != "" {
		rot, err := logging.NewRotatingWriter(target, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[talkwired] ")
		defer rot.Close()
	}

	chatStore, err := openChatStore(cfg)
	if err != nil {
		log.Fatalf("open chat store: %v", err)
	}
	defer chatStore.Close()

	identityStore, err := openIdentityStore(cfg)
	if err != nil {
		log.Fatalf("open identity store: %v", err)
	}
	defer identityStore.Close()

	gen, err := buildGenerator(cfg)
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}
	log.Printf("generator active: %s", cfg.Generator)

	authManager := auth.NewManager(cfg.AuthSecret)

	httpSrv := httpserver.New(chatStore, identityStore, authManager, gen)
	httpSrv.SetTokenTTL(cfg.TokenTTL)
	httpSrv.SetStreamOptions(cfg.StreamIdleTimeout, cfg.SSEPingInterval)
	httpSrv.SetLogger(cfg.LogLevel, log.New(log.Writer(), "[talkwired/http] ", log.LstdFlags|log.Lmicroseconds))

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     httpSrv.Router(),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: it would sever long-lived SSE streams
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("talkwire server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// openChatStore selects the engine: a DSN means Postgres, otherwise a local
// SQLite file.
func openChatStore(cfg config.ServerConfig) (chatstore.Store, error) {
	if dsn := strings.TrimSpace(cfg.ChatDBDSN); dsn != "" {
		log.Printf("chat store: postgres")
		return chatpg.New(dsn, chatpg.DefaultConfig())
	}
	log.Printf("chat store: sqlite path=%s", cfg.ChatDBPath)
	return chatsqlite.New(cfg.ChatDBPath)
}

func openIdentityStore(cfg config.ServerConfig) (userstore.Store, error) {
	if dsn := strings.TrimSpace(cfg.IdentityDSN); dsn != "" {
		log.Printf("identity store: postgres")
		return userpg.New(dsn)
	}
	log.Printf("identity store: sqlite path=%s", cfg.IdentityPath)
	return usersqlite.New(cfg.IdentityPath)
}

func buildGenerator(cfg config.ServerConfig) (generator.Generator, error) {
	switch cfg.Generator {
	case "scripted":
		return scripted.Load(cfg.ScriptPath)
	case "upstream":
		return upstream.New(upstream.Config{
			APIKey:  cfg.UpstreamAPIKey,
			BaseURL: cfg.UpstreamURL,
			Model:   cfg.UpstreamModel,
		})
	default:
		return loopback.New(cfg.LoopbackDelay), nil
	}
}
