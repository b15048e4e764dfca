package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielhkuo/livepoll/bus"
	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/relay"
	"github.com/danielhkuo/livepoll/router"
	"github.com/danielhkuo/livepoll/store"
	"github.com/danielhkuo/livepoll/store/memstore"
	"github.com/danielhkuo/livepoll/store/sqlstore"
)

const Version = "1.0.0"

var (
	rootCmd = &cobra.Command{
		Use:   "livepoll",
		Short: "real-time live polling server",
		Long: fmt.Sprintf(`livepoll (v%s)

Hosts create a poll, share its room code, and watch votes arrive live.
Several instances can serve the same polls through a shared database and bus.`, Version),
	}
	serveCmd = &cobra.Command{
		Use:          "serve",
		Short:        "Start the HTTP and websocket server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliparse.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of livepoll",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("livepoll v%s\n", Version)
		},
	}
)

func init() {
	cliparse.RegisterFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg cliparse.Config) error {
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	s, conn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	// Broadcast bus
	b, busConn, err := openBus(cfg, conn)
	if err != nil {
		return err
	}
	if busConn != nil {
		defer busConn.Close()
	}
	defer b.Close()

	r := relay.New(cfg.InstanceID, b)
	defer r.Close()

	e := engine.New(s, r, engine.SlogAuditor{}, engine.Config{
		OpTimeout:     cfg.OpTimeout,
		PollTTL:       cfg.PollTTL,
		StaleAfter:    cfg.StaleAfter,
		PurgeAfter:    cfg.PurgeAfter,
		SweepInterval: cfg.SweepInterval,
	})
	go e.RunSweeper(ctx)

	// Create router
	mux := router.NewRouter(e, cfg)

	// Create server
	server := http.Server{
		Handler: middleware.CORS(cfg.AllowedOrigins)(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	go func() {
		// Wait for Ctrl-C signal
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	// Start server
	slog.Info("Listening",
		"port", cfg.Port,
		"instance", cfg.InstanceID,
		"store", cfg.DatabaseType,
		"bus", cfg.BusType,
	)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server closed", "error", err)
		return err
	}
	slog.Info("Server closed")
	return nil
}

func setupLogger(cfg cliparse.Config) {
	// Validate has already checked the level
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler).With("instance", cfg.InstanceID))
}

// openStore returns the configured store. conn is the underlying database
// for SQL stores and nil otherwise.
func openStore(ctx context.Context, cfg cliparse.Config) (store.Store, *sql.DB, error) {
	opts := store.Options{MaxParticipants: cfg.MaxParticipants}

	if cfg.DatabaseType == "memory" {
		slog.Warn("using in-memory store; polls are lost on restart and not shared between instances")
		return memstore.New(opts), nil, nil
	}

	dialect, err := db.ParseDialect(cfg.DatabaseType)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Database schema ready", "dialect", dialect)
	return sqlstore.New(conn, dialect, opts), conn, nil
}

// openBus returns the configured bus. owned is a connection opened for the
// bus alone, which the caller closes after the bus; it is nil when the bus
// shares the store's database.
func openBus(cfg cliparse.Config, conn *sql.DB) (b bus.Bus, owned *sql.DB, err error) {
	if cfg.BusType == "local" {
		return bus.NewLocal(), nil, nil
	}

	if conn == nil || cfg.DatabaseType != "postgres" || cfg.BusURL != cfg.DatabaseURL {
		owned, err = sql.Open("postgres", cfg.BusURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bus connection failed: %w", err)
		}
		conn = owned
	}
	b, err = bus.NewPostgres(conn, cfg.BusURL, bus.DefaultChannel)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, nil, err
	}
	slog.Info("Bus listening", "channel", bus.DefaultChannel)
	return b, owned, nil
}
