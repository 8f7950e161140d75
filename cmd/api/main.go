package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/auth"
	"github.com/redprotege/api/internal/config"
	"github.com/redprotege/api/internal/db"
	internalhttp "github.com/redprotege/api/internal/http"
	"github.com/redprotege/api/internal/service"
	"github.com/redprotege/api/internal/usuarios"
	"github.com/redprotege/api/internal/util"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api terminada con error")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := util.ConfigurarZona(cfg.Zona); err != nil {
		return fmt.Errorf("zona horaria %s: %w", cfg.Zona, err)
	}

	ctx := context.Background()

	pool, redisClient, err := conectar(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer redisClient.Close()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	authService := service.NewAuthService(
		usuarios.NewRepository(pool),
		service.NewRefreshRepository(pool),
		auditoria.NewRepository(pool),
		redisClient,
		jwtManager,
		cfg.JWTRefreshTTL,
	)

	handler, err := internalhttp.NewRouter(cfg, pool, redisClient, authService)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	return servir(&http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// conectar abre Postgres y Redis; Redis caído no impide arrancar.
func conectar(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *redis.Client, error) {
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis no responde; catálogos sin cache")
	}
	return pool, client, nil
}

func servir(srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("API RedProtege escuchando")
		errCh <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info().Msg("señal recibida, deteniendo")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
