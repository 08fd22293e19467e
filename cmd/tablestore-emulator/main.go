// Command tablestore-emulator serves a local copy of the database API, so
// position-sync can run end to end without a remote workspace.
//
//	tablestore-emulator --port 8787 --db ./data/tablestore.db --token secret_local
//
// Point position-sync at it with NOTION_API_URL=http://localhost:8787 and
// NOTION_INTEGRATION_SECRET set to one of the tokens.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/position-sync/pkg/emulator"
)

var (
	port   string
	dbPath string
	tokens []string
)

var rootCmd = &cobra.Command{
	Use:          "tablestore-emulator",
	Short:        "Serve a local database API for position-sync",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	_ = godotenv.Load()

	rootCmd.Flags().StringVar(&port, "port", envOr("PORT", "8787"), "listen port")
	rootCmd.Flags().StringVar(&dbPath, "db", envOr("DB_PATH", "./data/tablestore.db"), "bbolt database file")
	rootCmd.Flags().StringSliceVar(&tokens, "token", splitTokens(os.Getenv("EMULATOR_TOKENS")), "accepted bearer tokens")
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := rootCmd.Execute(); err != nil {
		slog.Error("emulator failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	st, err := emulator.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, token := range tokens {
		if err := st.AddToken(token); err != nil {
			return err
		}
	}
	if len(tokens) == 0 {
		slog.Warn("no tokens registered; every request will be rejected")
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           emulator.NewRouter(st, middleware.Logger, middleware.Timeout(time.Minute)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", server.Addr, "db", dbPath, "tokens", len(tokens))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitTokens(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
