package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/mcp"
	"github.com/comigor/stringalong/internal/persona"
	"github.com/comigor/stringalong/internal/session"
)

func runPersonas() error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, p := range persona.All() {
		cyan.Printf("%-24s", p.ID)
		fmt.Printf("%s, %d", p.Name, p.Age)
		if p.ID == persona.DefaultID {
			color.New(color.FgYellow).Print(" [default]")
		}
		fmt.Println()
		gray.Printf("    %s\n", p.Traits)
	}
	return nil
}

func runProviders() error {
	cfg, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	d := llm.Discover(cfg.Providers)
	for _, p := range d.Providers {
		color.New(color.FgCyan).Printf("%-10s", p.ID)
		fmt.Printf("%s ", p.Name)
		color.New(color.FgHiBlack).Printf("(%s)", p.Model)
		if p.ID == d.Default {
			color.New(color.FgYellow).Print(" [default]")
		}
		fmt.Println()
	}
	return nil
}

func runHistory(ctx context.Context) error {
	cfg, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListAll(ctx)
	if err != nil {
		return err
	}
	printSummaries(list)
	return nil
}

func runMCP(ctx context.Context) error {
	// stdout carries the protocol.
	cfg, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	discovery := llm.Discover(cfg.Providers)
	s := session.New(st, newRouter(cfg))
	s.SelectProvider(string(discovery.Default))

	return mcp.Serve(mcp.NewTools(s, discovery))
}
