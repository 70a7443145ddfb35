package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"liverun/internal/cli/config"
	httpclient "liverun/internal/cli/http"
	"liverun/internal/cli/runnerclient"
	"liverun/internal/runner/protocol"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// LineReader is the part of *readline.Instance the REPL needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Refresh()
	Stdout() io.Writer
	Stderr() io.Writer
}

type lineResult struct {
	text string
	err  error
}

// Session holds REPL state. Lines are read by one goroutine on demand, so a
// read left pending when a program exits is handed to the next prompt.
type Session struct {
	api *httpclient.Client
	cfg config.Config
	rl  LineReader

	want    chan struct{}
	lines   chan lineResult
	pending bool
}

func New(api *httpclient.Client, cfg config.Config, rl LineReader) *Session {
	return &Session{
		api:   api,
		cfg:   cfg,
		rl:    rl,
		want:  make(chan struct{}, 1),
		lines: make(chan lineResult, 1),
	}
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) error {
	go s.readLines()
	defer close(s.want)

	for {
		s.request(s.cfg.Prompt)
		var res lineResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-s.lines:
			s.pending = false
		}
		if errors.Is(res.err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(res.err, io.EOF) {
			return nil
		}
		if res.err != nil {
			return res.err
		}

		line := strings.TrimSpace(res.text)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return nil
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) readLines() {
	for range s.want {
		text, err := s.rl.Readline()
		s.lines <- lineResult{text: text, err: err}
	}
}

func (s *Session) request(prompt string) {
	s.rl.SetPrompt(prompt)
	if s.pending {
		s.rl.Refresh()
		return
	}
	s.pending = true
	s.want <- struct{}{}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	switch tokens[0] {
	case "help":
		s.printHelp()
	case "languages":
		return s.listLanguages(ctx)
	case "set":
		s.handleSet(tokens[1:])
	case "show":
		s.handleShow(tokens[1:])
	case "run":
		lang, path, err := s.runArgs(tokens[1:])
		if err != nil {
			return err
		}
		return s.runFile(ctx, lang, path)
	default:
		return fmt.Errorf("unknown command: %s (try help)", tokens[0])
	}
	return nil
}

func (s *Session) runArgs(args []string) (string, string, error) {
	switch {
	case len(args) == 2:
		return args[0], args[1], nil
	case len(args) == 1 && s.cfg.Language != "":
		return s.cfg.Language, args[0], nil
	default:
		return "", "", fmt.Errorf("usage: run [language] <file>")
	}
}

func (s *Session) handleSet(args []string) {
	if len(args) < 2 {
		s.printLine("usage: set base|timeout|lang <value>")
		return
	}
	switch args[0] {
	case "base":
		s.api.SetBaseURL(args[1])
		s.cfg.BaseURL = args[1]
		s.printLine("base set to %s", args[1])
	case "timeout":
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.api.SetTimeout(dur)
		s.cfg.Timeout = dur
		s.printLine("timeout set to %s", dur)
	case "lang":
		s.cfg.Language = args[1]
		s.printLine("language set to %s", args[1])
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args []string) {
	if len(args) != 1 || args[0] != "config" {
		s.printLine("usage: show config")
		return
	}
	lang := s.cfg.Language
	if lang == "" {
		lang = "<none>"
	}
	s.printLine("base: %s", s.api.BaseURL())
	s.printLine("timeout: %s", s.cfg.Timeout)
	s.printLine("language: %s", lang)
}

func (s *Session) listLanguages(ctx context.Context) error {
	langs, err := s.api.Languages(ctx)
	if err != nil {
		return err
	}
	for _, lang := range langs {
		kind := "interpreted"
		if lang.Compiled {
			kind = "compiled"
		}
		s.printLine("  %-12s %-16s %s", lang.ID, lang.Name, kind)
	}
	return nil
}

// runFile streams one program: typed lines become stdin, Ctrl-D closes it
// and Ctrl-C stops the session.
func (s *Session) runFile(ctx context.Context, lang, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read source failed: %w", err)
	}
	url, err := config.SessionURL(s.api.BaseURL())
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	c, err := runnerclient.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.Start(lang, string(source)); err != nil {
		return err
	}
	out := runnerclient.Output{Stdout: s.rl.Stdout(), Stderr: s.rl.Stderr()}
	inputOpen := true
	for {
		if inputOpen && !s.pending {
			s.request("")
		}
		select {
		case <-ctx.Done():
			_ = c.Stop()
			return ctx.Err()
		case ev, ok := <-c.Events():
			if !ok {
				s.printLine("[session closed: %v]", c.Err())
				return nil
			}
			if ev.IsExit() {
				s.printExit(ev)
				return nil
			}
			out.Write(ev)
		case res := <-s.lines:
			s.pending = false
			switch {
			case errors.Is(res.err, readline.ErrInterrupt):
				_ = c.Stop()
				s.printLine("[stopped]")
				return nil
			case errors.Is(res.err, io.EOF):
				inputOpen = false
				if err := c.CloseInput(); err != nil {
					return err
				}
			case res.err != nil:
				return res.err
			default:
				if err := c.Send(res.text + "\n"); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Session) printExit(ev protocol.Outbound) {
	code, _ := ev.ExitCode()
	parts := []string{fmt.Sprintf("exit %d", code)}
	if ev.Signal != "" {
		parts = append(parts, ev.Signal)
	}
	if ev.Reason != "" {
		parts = append(parts, ev.Reason)
	}
	s.printLine("[%s]", strings.Join(parts, " "))
}

func (s *Session) printHelp() {
	s.printLine("commands:")
	s.printLine("  run [language] <file>   submit a file and attach to it")
	s.printLine("  languages               list supported languages")
	s.printLine("  set base|timeout|lang   change settings")
	s.printLine("  show config             print settings")
	s.printLine("  help | exit")
	s.printLine("while a program runs: type lines for stdin, Ctrl-D to close stdin, Ctrl-C to stop")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.rl.Stdout(), format+"\n", args...)
}
