package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MJE43/hack-terminal/internal/auth"
	"github.com/MJE43/hack-terminal/internal/config"
	"github.com/MJE43/hack-terminal/internal/difficulty"
	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/logging"
	"github.com/MJE43/hack-terminal/internal/macro"
	"github.com/MJE43/hack-terminal/internal/session"
	"github.com/MJE43/hack-terminal/internal/syncbus"
	"github.com/MJE43/hack-terminal/internal/terminal"
)

const playHelp = `commands:
  hack                 start hacking the selected target
  guess <word>         word-guess
  inject               signal-injection
  rotate <x> <y>       data-stream
  reveal <x> <y>       node-overload
  type <text>          brute-force
  ready | press <pad>  pattern-buffer
  {"type":...}         any action as JSON
  cancel | logout | state | macro <name> | help | quit
`

func runPlay(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := newFlagSet("play", stderr)
	server := fs.String("server", "http://"+cfg.HTTPAddr, "terminald base URL")
	terminalID := fs.String("terminal", "terminal-1", "terminal to join")
	participant := fs.String("participant", "", "participant id (random when empty)")
	name := fs.String("name", "", "display name")
	gm := fs.Bool("gm", false, "join as game master")
	token := fs.String("token", "", "GM token (read from the keyring when empty)")
	macroDir := fs.String("macros", "", "directory of macros a GM runs locally")
	targetID := fs.String("target", "", "hack target id to select on join")
	label := fs.String("label", "", `target credentials as "user:password"`)
	instructions := fs.String("instructions", "all", "minigames the target allows")
	intellect := fs.Int("intellect", 30, "character intellect")
	skills := fs.String("skills", "", "comma separated skills, e.g. Hacking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *participant == "" {
		*participant = uuid.NewString()[:8]
	}

	logger := logging.New(stderr, cfg.LogLevel)
	out := &syncWriter{w: stdout}

	var header http.Header
	var runner *macro.Runner
	if *gm {
		if *token == "" {
			t, err := auth.NewTokenStore(cfg.KeyringService, cfg.TokenFallback).Token()
			if err != nil {
				return fmt.Errorf("gm token: %w", err)
			}
			*token = t
		}
		header = http.Header{"X-GM-Token": []string{*token}}
		if *macroDir != "" {
			runner = macro.NewRunner(macro.WithLogger(logger))
			if _, err := runner.LoadDir(*macroDir); err != nil {
				return err
			}
		}
	}

	u, err := syncbus.TerminalURL(*server, *terminalID, *participant)
	if err != nil {
		return err
	}
	client, err := syncbus.Dial(ctx, u, header, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	targets := terminal.Directory{}
	if *targetID != "" {
		targets[*targetID] = terminal.NewTarget(*targetID, *label, *instructions)
	}

	deps := session.Deps{
		Registry: games.NewRegistry(games.WithLogger(logger)),
		Channel:  client,
		Targets:  targets,
		Logger:   logger,
		OnChange: func(s terminal.State) { out.print(renderState(cfg.Title, s)) },
	}
	if runner != nil {
		deps.Macros = runner
	}
	ctrl := session.New(session.Config{
		TerminalID:  *terminalID,
		Participant: session.Participant{ID: *participant, Name: *name, IsGM: *gm},
		Tick:        cfg.Tick,
		ResultDelay: cfg.ResultDelay,
		Multiplier:  cfg.Difficulty,
	}, deps)
	defer ctrl.Close()

	if err := ctrl.Attach(ctx); err != nil {
		return err
	}
	if t, ok := targets[*targetID]; ok {
		if err := ctrl.SetHackTarget(ctx, &t); err != nil {
			return err
		}
	}

	p := &player{
		ctrl:    ctrl,
		out:     out,
		title:   cfg.Title,
		profile: difficulty.Profile{Intellect: *intellect, Skills: splitList(*skills)},
	}
	out.print(fmt.Sprintf("joined %s as %s, type help for commands\n", *terminalID, *participant))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return errors.New("disconnected from terminald")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := p.handle(ctx, line)
			if err != nil {
				out.print(fmt.Sprintf("error: %v\n", err))
			}
			if quit {
				return nil
			}
		}
	}
}

// player executes shell commands against a session controller.
type player struct {
	ctrl    *session.Controller
	out     *syncWriter
	title   string
	profile difficulty.Profile
}

func (p *player) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		p.out.print(playHelp)
	case "state":
		p.out.print(renderState(p.title, p.ctrl.State()))
	case "hack":
		kind, err := p.ctrl.StartHacking(ctx, p.profile)
		if err != nil {
			return false, err
		}
		p.out.print(fmt.Sprintf("hacking with %s\n", kind))
	case "cancel":
		return false, p.ctrl.Cancel(ctx)
	case "logout":
		return false, p.ctrl.Logout(ctx)
	case "macro":
		if arg == "" {
			return false, errors.New("macro needs a name")
		}
		return false, p.ctrl.RequestMacro(ctx, arg)
	default:
		a, err := parseAction(line)
		if err != nil {
			return false, err
		}
		res, err := p.ctrl.Act(ctx, a)
		if err != nil {
			return false, err
		}
		if res.Message != "" {
			p.out.print(res.Message + "\n")
		}
	}
	return false, nil
}

// parseAction turns a shell command or a JSON record into a minigame action.
func parseAction(line string) (games.Action, error) {
	if strings.HasPrefix(line, "{") {
		return games.ParseAction([]byte(line))
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "guess":
		if len(args) != 1 {
			return games.Action{}, errors.New("usage: guess <word>")
		}
		return games.Guess(strings.ToUpper(args[0])), nil
	case "inject":
		return games.Inject(), nil
	case "ready":
		return games.Ready(), nil
	case "type":
		_, text, _ := strings.Cut(line, " ")
		return games.Type(strings.TrimSpace(text)), nil
	case "press":
		if len(args) != 1 {
			return games.Action{}, errors.New("usage: press <pad>")
		}
		pad, err := strconv.Atoi(args[0])
		if err != nil {
			return games.Action{}, fmt.Errorf("pad: %w", err)
		}
		return games.Press(pad), nil
	case "rotate", "reveal":
		if len(args) != 2 {
			return games.Action{}, fmt.Errorf("usage: %s <x> <y>", cmd)
		}
		x, err := strconv.Atoi(args[0])
		if err != nil {
			return games.Action{}, fmt.Errorf("x: %w", err)
		}
		y, err := strconv.Atoi(args[1])
		if err != nil {
			return games.Action{}, fmt.Errorf("y: %w", err)
		}
		if cmd == "rotate" {
			return games.Rotate(x, y), nil
		}
		return games.Reveal(x, y), nil
	}
	return games.Action{}, fmt.Errorf("unknown command %q", cmd)
}

func renderState(title string, s terminal.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s view=%s", title, s.TerminalID, s.View)
	if s.CurrentUser != "" {
		fmt.Fprintf(&b, " user=%s", s.CurrentUser)
	}
	if s.ControllerID != "" {
		fmt.Fprintf(&b, " controller=%s", s.ControllerID)
	}
	if s.LoginError {
		b.WriteString(" login=denied")
	}
	b.WriteByte('\n')

	if s.Hacking() {
		fmt.Fprintf(&b, "  %s score=%d", s.HackingType, s.HackingScore)
		if s.Attempt != nil {
			fmt.Fprintf(&b, " attempt=%s hash=%s", shortID(s.Attempt.ID), shortID(s.Attempt.ServerSeedHash))
		}
		b.WriteByte('\n')
		if len(s.HackingState) > 0 {
			fmt.Fprintf(&b, "  %s\n", s.HackingState)
		}
	}
	if s.HackingResult != "" {
		fmt.Fprintf(&b, "  >> %s (%s)\n", s.HackingMessage, s.HackingResult)
	}
	if s.CrackedPassword != "" {
		fmt.Fprintf(&b, "  password: %s\n", s.CrackedPassword)
	}
	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// syncWriter serializes output from the input loop and controller callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, text)
}
