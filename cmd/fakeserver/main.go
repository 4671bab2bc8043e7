package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleksandrVishniakov/versta-2024/internal/fakeserver"
	pkgconfig "github.com/AleksandrVishniakov/versta-2024/pkg/config"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

// The fake serves the auth, orders and chat routes on every address, so the
// landing client works with its default per-service hosts.
func main() {
	if err := pkgconfig.LoadDotEnv(".env"); err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load .env")
	}

	log.Init(log.Config{
		Level:     pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Pretty:    pkgconfig.GetEnv("LOG_PRETTY", "true") == "true",
		Component: "fakeserver",
	})
	l := log.L()

	srv := fakeserver.New(fakeserver.Options{
		Code:   pkgconfig.GetEnv("FAKESERVER_CODE", fakeserver.DefaultCode),
		Logger: l,
	})
	defer srv.Close()

	for _, email := range strings.Split(pkgconfig.GetEnv("FAKESERVER_ADMINS", "admin@example.com"), ",") {
		if email = strings.TrimSpace(email); email != "" {
			srv.AddAdmin(email)
			l.Info().Str(log.FieldEmail, email).Msg("admin registered")
		}
	}

	addrs := strings.Split(pkgconfig.GetEnv("FAKESERVER_ADDRS", ":8000,:8001,:8003"), ",")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	handler := srv.Handler()

	for _, addr := range addrs {
		server := &http.Server{
			Addr:              strings.TrimSpace(addr),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g.Go(func() error {
			l.Info().Str("addr", server.Addr).Msg("fakeserver listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		l.Error().Err(err).Msg("fakeserver stopped with error")
		return
	}
	l.Info().Msg("fakeserver stopped")
}
