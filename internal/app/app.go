// Package app wires the store, importer and servers from a loaded configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"journaltransporter/internal/account"
	"journaltransporter/internal/api"
	"journaltransporter/internal/auth"
	"journaltransporter/internal/events"
	"journaltransporter/internal/grpcserver"
	"journaltransporter/internal/ingest"
	"journaltransporter/internal/metrics"
	"journaltransporter/pkg/database"
	"journaltransporter/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Config   *utils.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Importer *ingest.Importer
	Hub      *events.Hub
	Metrics  *metrics.Metrics
	Auth     *auth.Authenticator
}

// New opens and migrates the database and builds the shared components.
func New(cfg *utils.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	hub := events.NewHub(cfg.Events.History, log.Named("events"))
	m := metrics.New()
	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTDuration,
	}

	return &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Importer: ingest.NewImporter(db, log.Named("ingest"), hub, m),
		Hub:      hub,
		Metrics:  m,
		Auth:     auth.NewAuthenticator(tokens, account.NewRepo(db), cfg.Auth.CookieName),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.Deps{
		DB:             a.DB,
		Importer:       a.Importer,
		Auth:           a.Auth,
		Hub:            a.Hub,
		Metrics:        a.Metrics,
		Logger:         a.Logger.Named("http"),
		CookieSecure:   a.Config.Auth.CookieSecure,
		MaxBodyBytes:   a.Config.HTTP.MaxBodyBytes,
		TrustedProxies: a.Config.HTTP.TrustedProxies,
	})
}

func (a *App) GRPCServer() *grpc.Server {
	log := a.Logger.Named("grpc")
	return grpcserver.New(grpcserver.NewServer(a.Importer, log), a.Auth, log)
}

// Servers selects what Serve runs.
type Servers struct {
	HTTP   bool
	GRPC   bool
	Events bool // raw TCP feed, only when events.tcp_addr is set
}

// Serve runs the selected servers until ctx is cancelled or one of them fails,
// then shuts all of them down.
func (a *App) Serve(ctx context.Context, which Servers) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	var stops []func(context.Context)

	if which.HTTP {
		httpSrv := &http.Server{
			Addr:              a.Config.HTTP.Addr,
			Handler:           a.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		ln, err := net.Listen("tcp", httpSrv.Addr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Logger.Info("http api listening", zap.String("addr", ln.Addr().String()))
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
		stops = append(stops, func(ctx context.Context) {
			if err := httpSrv.Shutdown(ctx); err != nil {
				a.Logger.Warn("http shutdown", zap.Error(err))
			}
		})
	}

	if which.GRPC {
		grpcSrv := a.GRPCServer()
		ln, err := net.Listen("tcp", a.Config.Grpc.Addr)
		if err != nil {
			cancel()
			a.stop(stops)
			wg.Wait()
			return fmt.Errorf("grpc listen: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Logger.Info("grpc listening", zap.String("addr", ln.Addr().String()))
			if err := grpcSrv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
		stops = append(stops, func(context.Context) { grpcSrv.GracefulStop() })
	}

	if which.Events && a.Config.Events.TCPAddr != "" {
		feed := events.NewServer(a.Config.Events.TCPAddr, a.Hub, a.Logger.Named("events"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := feed.Run(ctx); err != nil {
				errCh <- fmt.Errorf("event feed: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case runErr = <-errCh:
		a.Logger.Error("server error", zap.Error(runErr))
	}

	cancel()
	a.stop(stops)
	wg.Wait()
	a.Logger.Info("servers stopped")
	return runErr
}

func (a *App) stop(stops []func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, stop := range stops {
		stop(ctx)
	}
}
