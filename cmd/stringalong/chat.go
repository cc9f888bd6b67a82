package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/session"
	"github.com/comigor/stringalong/internal/store"
)

const chatHelp = `Paste what the scammer sent and press enter. Commands:
  /persona <id>    pick the persona (before the first message)
  /provider <id>   pick the backend (anthropic, openai, ollama)
  /context <text>  set facts the persona should use; empty clears
  /new             start a new conversation
  /list            list saved conversations
  /load <id>       continue a saved conversation
  /delete <id>     delete a saved conversation
  /transcript      print the conversation as plain text
  /quit            exit`

func runChat(ctx context.Context) error {
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

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Print(banner)
	fmt.Println(chatHelp)
	fmt.Println()
	p := s.Persona()
	gray.Printf("persona: %s (%d)  provider: %s\n\n", p.Name, p.Age, s.Provider())

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		color.New(color.FgRed, color.Bold).Print("scammer> ")
		if !in.Scan() {
			fmt.Println()
			return in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, s, line)
			if err != nil {
				color.New(color.FgYellow).Printf("! %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := s.Send(ctx, line)
		if err != nil {
			color.New(color.FgYellow).Printf("! %v\n", err)
			continue
		}
		if res.Err != nil {
			color.New(color.FgYellow).Printf("! %v\n", res.Err)
		}
		color.New(color.FgGreen, color.Bold).Printf("%s> ", strings.ToLower(s.Persona().Name))
		fmt.Println(res.Reply)
	}
}

func chatCommand(ctx context.Context, s *session.Session, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	gray := color.New(color.FgHiBlack)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Println(chatHelp)
	case "/persona":
		if err := s.SelectPersona(arg); err != nil {
			return false, err
		}
		p := s.Persona()
		gray.Printf("persona: %s (%d)\n", p.Name, p.Age)
	case "/provider":
		gray.Printf("provider: %s\n", s.SelectProvider(arg))
	case "/context":
		if err := s.SetContext(ctx, arg); err != nil {
			return false, err
		}
		gray.Println("context updated")
	case "/new":
		s.Reset(ctx)
		gray.Println("new conversation")
	case "/list":
		list, err := s.List(ctx)
		if err != nil {
			return false, err
		}
		printSummaries(list)
	case "/load":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid conversation id %q", arg)
		}
		if err := s.Load(ctx, id); err != nil {
			return false, err
		}
		fmt.Print(s.Transcript())
	case "/delete":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid conversation id %q", arg)
		}
		if err := s.Delete(ctx, id); err != nil {
			return false, err
		}
		gray.Printf("deleted conversation %d\n", id)
	case "/transcript":
		t := s.Transcript()
		if t == "" {
			return false, errors.New("nothing to show yet")
		}
		fmt.Print(t)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

func printSummaries(list []store.Summary) {
	if len(list) == 0 {
		fmt.Println("No saved conversations.")
		return
	}
	gray := color.New(color.FgHiBlack)
	for _, c := range list {
		color.New(color.FgCyan).Printf("#%d ", c.ID)
		fmt.Printf("%s ", c.PersonaName)
		gray.Printf("(%d messages, %s)\n", c.MessageCount, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if c.FirstMessage != "" {
			fmt.Printf("    %s\n", c.FirstMessage)
		}
	}
}
