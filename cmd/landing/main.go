package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleksandrVishniakov/versta-2024/internal/chat"
	"github.com/AleksandrVishniakov/versta-2024/internal/client"
	"github.com/AleksandrVishniakov/versta-2024/internal/config"
	"github.com/AleksandrVishniakov/versta-2024/internal/nav"
	"github.com/AleksandrVishniakov/versta-2024/internal/session"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Component: "landing"})
	l := log.L()

	store, err := session.New(cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open credential store")
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	// One HTTP client for all servers so they share the cookie jar.
	httpClient := client.NewHTTPClient(cfg.HTTP.Timeout)

	auth := client.NewAuthClient(cfg.Services.Auth, httpClient, store)
	orders := client.NewOrdersClient(cfg.Services.Orders, httpClient, store, auth)
	chatClient := chat.NewClient(
		client.NewChatAPI(cfg.Services.Chat, httpClient, store, auth),
		auth,
		cfg.WebSocket,
		cfg.Reconnect,
	)

	ui := newTerminal(os.Stdin, os.Stdout)

	ctrl := nav.NewController(nav.Options{
		Auth:             auth,
		Orders:           orders,
		Chat:             chatClient,
		Sink:             ui,
		Hooks:            ui.hooks(),
		ChattersInterval: cfg.Poll.ChattersInterval,
		UnreadInterval:   cfg.Poll.UnreadInterval,
	})
	defer ctrl.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	l.Info().
		Str("auth", cfg.Services.Auth).
		Str("orders", cfg.Services.Orders).
		Str("chat", cfg.Services.Chat).
		Str("session_backend", cfg.Session.Backend).
		Msg("landing client starting")

	ctrl.Mount(ctx)
	ui.run(ctx, ctrl)

	l.Info().Msg("landing client stopped")
}
