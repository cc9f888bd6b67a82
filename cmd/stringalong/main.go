package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/comigor/stringalong/internal/config"
	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/logger"
	"github.com/comigor/stringalong/internal/store"
)

var version = "dev"

const banner = `
     _        _                       _
 ___| |_ _ __(_)_ __   __ _  __ _| | ___  _ __   __ _
/ __| __| '__| | '_ \ / _' |/ _' | |/ _ \| '_ \ / _' |
\__ \ |_| |  | | | | | (_| | (_| | | (_) | | | | (_| |
|___/\__|_|  |_|_| |_|\__, |\__,_|_|\___/|_| |_|\__, |
                      |___/                     |___/
`

func usage() {
	fmt.Println("Usage: stringalong <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve       Start the HTTP relay")
	fmt.Println("  chat        Talk to a scammer from the terminal")
	fmt.Println("  mcp         Serve the chat tools over MCP stdio")
	fmt.Println("  personas    List the personas")
	fmt.Println("  providers   List the configured backends")
	fmt.Println("  history     List saved conversations")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "chat":
		err = runChat(ctx)
	case "mcp":
		err = runMCP(ctx)
	case "personas":
		err = runPersonas()
	case "providers":
		err = runProviders()
	case "history":
		err = runHistory(ctx)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and points the logger at w.
func setup(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(w, cfg.Log.Format)
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

// openStore opens the conversation store named by the configuration.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st := store.New(cfg.Store.Path)
	if err := st.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}
	return st, nil
}

func newRouter(cfg *config.Config) *llm.Router {
	return llm.NewRouterFromConfig(cfg.Providers, nil)
}
