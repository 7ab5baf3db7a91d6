package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/miluhq/milu/internal/config"
	"github.com/miluhq/milu/internal/handler"
	"github.com/miluhq/milu/internal/model/message"
	"github.com/miluhq/milu/internal/service/conversation"
	"github.com/miluhq/milu/internal/service/generate"
	"github.com/miluhq/milu/internal/store/memory"
	"github.com/miluhq/milu/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := newStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}
	defer store.Close()

	conv := conversation.New(store, newGenerator(ctx, cfg))
	router := handler.NewRouter(conv)

	startServer(ctx, cfg.Server, router)
}

// newStore selects postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise.
func newStore(ctx context.Context, cfg config.DatabaseConfig) (message.Store, error) {
	if cfg.URL == "" {
		log.Println("DATABASE_URL not set, using in-memory store")
		return memory.New(), nil
	}

	if err := postgres.Migrate(cfg.URL, cfg.MigrationsDir); err != nil {
		return nil, err
	}
	log.Println("database migrations applied")

	return postgres.New(ctx, cfg.URL)
}

// newGenerator prefers the Ark model and falls back to the scripted
// generator when credentials are missing or the model cannot be built.
func newGenerator(ctx context.Context, cfg *config.Config) generate.Generator {
	if cfg.AI.Enabled() {
		gen, err := generate.NewArk(ctx, cfg.AI)
		if err == nil {
			log.Println("ark generator initialized")
			return gen
		}
		log.Printf("warning: failed to initialize ark generator: %v", err)
	} else {
		log.Println("ark credentials not configured")
	}

	log.Println("using scripted token generator")
	return generate.NewScript(nil, cfg.Script.TokenInterval)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("milu backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
