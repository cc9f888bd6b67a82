package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"

	"github.com/comigor/stringalong/internal/handler"
	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/logger"
)

func runServe(ctx context.Context) error {
	cfg, err := setup(os.Stdout)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	discovery := llm.Discover(cfg.Providers)
	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      http://%s\n", addr)
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s\n", cfg.Store.Path)
	green.Print("    ▶ ")
	fmt.Println("Providers:")
	for _, p := range discovery.Providers {
		fmt.Printf("                 - %s ", p.Name)
		gray.Printf("(%s)", p.Model)
		if p.ID == discovery.Default {
			color.New(color.FgYellow).Print(" [default]")
		}
		fmt.Println()
	}
	fmt.Println()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	relay := newRouter(cfg)
	router := handler.NewRouter(
		handler.NewChatHandler(relay, discovery),
		handler.NewConversationHandler(st, relay),
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.L.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
