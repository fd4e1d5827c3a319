package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/internal/seed"
	chathttp "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat collaborator server",
	Long: `Serves the flow and plan API, the upload side channel and the chat
websocket that walks visitors through the published flows.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.Server.Addr = addr
		}
		logger := cfg.Logger()

		if err := runServe(cfg, logger); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides server.addr)")
}

func runServe(cfg config.Config, logger *slog.Logger) error {
	backend, closeBackend := openBackend(cfg)
	defer closeBackend()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Seed != "" {
		doc, err := seed.Load(cfg.Seed)
		if err != nil {
			return err
		}
		res, err := seed.Apply(ctx, doc, backend, backend)
		if err != nil {
			return err
		}
		logger.Info("seed applied", "path", cfg.Seed, "questions", res.Questions, "plans", res.Plans)
	}

	handler := chathttp.NewHandler(backend,
		chathttp.WithLogger(logger),
		chathttp.WithMetrics(chathttp.NewMetrics()),
		chathttp.WithPublicURL(cfg.Server.PublicURL),
		chathttp.WithReviewURL(cfg.Server.ReviewURL),
		chathttp.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		chathttp.WithMaxInputBytes(cfg.Server.MaxInputBytes),
		chathttp.WithMessageRate(rate.Limit(cfg.Server.MessageRate), cfg.Server.MessageBurst),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tui.PrintBanner(os.Stdout)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("chatflow server listening", "addr", srv.Addr, "redis", cfg.Redis.Addr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "err", err)
			return srv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("chatflow server stopped gracefully")
	return nil
}

func openBackend(cfg config.Config) (ports.Backend, func()) {
	if cfg.Redis.Addr == "" {
		return memory.NewStore(), func() {}
	}
	store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		redis.WithPrefix(cfg.Redis.Prefix),
		redis.WithFileTTL(cfg.Redis.FileTTL),
	)
	return store, func() { _ = store.Close() }
}
