package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/MJE43/hack-terminal/internal/api"
	"github.com/MJE43/hack-terminal/internal/engine"
	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/session"
	"github.com/MJE43/hack-terminal/internal/store"
	"github.com/MJE43/hack-terminal/internal/syncbus"
	"github.com/MJE43/hack-terminal/internal/terminal"
)

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), nil, nil, &out, &errOut)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, errOut.String(), "usage: terminalctl")

	errOut.Reset()
	err = run(context.Background(), []string{"reboot"}, nil, &out, &errOut)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, errOut.String(), `unknown command "reboot"`)
}

func TestVerifyMatchesRegistry(t *testing.T) {
	seeds := engine.Seeds{Server: "revealed", Client: "table-7"}
	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{
		"verify", "--game", "data-stream", "--difficulty", "40",
		"--server", seeds.Server, "--client", seeds.Client, "--nonce", "1",
		"--hash", engine.HashSeed(seeds.Server),
	}, nil, &out, &errOut)
	require.NoError(t, err, errOut.String())

	var got struct {
		Game           games.Kind      `json:"game"`
		ServerSeedHash string          `json:"server_seed_hash"`
		State          json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, games.KindDataStream, got.Game)

	want, err := games.NewRegistry().CreateSeeded(games.KindDataStream, 40, nil, seeds, 1).Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got.State))
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
		msg  string
	}{
		{"missing seeds", []string{"--game", "word-guess"}, errUsage, ""},
		{"unknown game", []string{"--game", "tetris", "--server", "s", "--client", "c"}, games.ErrUnknownKind, ""},
		{"hash mismatch", []string{"--game", "word-guess", "--server", "s", "--client", "c", "--hash", "abc"}, nil, "hash mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runVerify(tt.args, io.Discard, io.Discard)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func seedAttempts(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewSQLiteDB(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	started := time.Now().Add(-3 * time.Minute).UTC()
	for i, game := range []games.Kind{games.KindWordGuess, games.KindBruteForce} {
		require.NoError(t, db.StartAttempt(ctx, &store.Attempt{
			ID:             []string{"attempt-aaaaaaaaaaaa", "attempt-bbbbbbbbbbbb"}[i],
			TerminalID:     "bridge",
			Game:           string(game),
			Score:          40 + i,
			ParticipantID:  "kovacs",
			ServerSeed:     "seed",
			ServerSeedHash: engine.HashSeed("seed"),
			ClientSeed:     "client",
			Nonce:          1,
			StartedAt:      started.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, db.FinishAttempt(ctx, "attempt-aaaaaaaaaaaa", store.AttemptResult{
		Result:  string(terminal.OutcomeSuccess),
		Message: "ACCESS GRANTED",
		EndedAt: started.Add(90 * time.Second),
	}))
}

func TestAttemptsFromDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	seedAttempts(t, path)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"attempts", "--db", path, "bridge"}, nil, &out, io.Discard))

	text := out.String()
	assert.Contains(t, text, "brute-force")
	assert.Contains(t, text, "in progress")
	assert.Contains(t, text, "success")
	assert.Contains(t, text, "minutes ago")
	assert.Contains(t, text, "page 1 of 1, 2 attempts")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"attempts", "--db", path, "--game", "word-guess", "bridge"}, nil, &out, io.Discard))
	assert.NotContains(t, out.String(), "brute-force")
	assert.Contains(t, out.String(), "1 attempts")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"attempts", "--db", path, "other"}, nil, &out, io.Discard))
	assert.Equal(t, "no attempts\n", out.String())
}

func TestAttemptsFromServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	seedAttempts(t, path)
	db, err := store.NewSQLiteDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(api.NewServer(api.Options{
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Routes())
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"attempts", "--server", srv.URL, "bridge"}, nil, &out, io.Discard))
	assert.Contains(t, out.String(), "attempt-aaaa")
	assert.Contains(t, out.String(), "2 attempts")

	err = run(context.Background(), []string{"attempts", "--server", srv.URL, "--page", "-1", "bridge"}, nil, &out, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation_error")
}

func TestTokenShowAndRotate(t *testing.T) {
	keyring.MockInit()

	var first, second, third bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"token", "--service", "cli-test"}, nil, &first, io.Discard))
	require.NoError(t, run(context.Background(), []string{"token", "--service", "cli-test", "show"}, nil, &second, io.Discard))
	assert.Equal(t, first.String(), second.String())
	assert.Len(t, strings.TrimSpace(first.String()), 32)

	require.NoError(t, run(context.Background(), []string{"token", "--service", "cli-test", "rotate"}, nil, &third, io.Discard))
	assert.NotEqual(t, first.String(), third.String())

	assert.ErrorIs(t, runToken([]string{"print"}, io.Discard, io.Discard), errUsage)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		line    string
		want    games.Action
		wantErr bool
	}{
		{line: "guess kernel", want: games.Guess("KERNEL")},
		{line: "inject", want: games.Inject()},
		{line: "rotate 2 3", want: games.Rotate(2, 3)},
		{line: "reveal 0 4", want: games.Reveal(0, 4)},
		{line: "type hunter2", want: games.Type("hunter2")},
		{line: "ready", want: games.Ready()},
		{line: "press 3", want: games.Press(3)},
		{line: `{"type":"reveal","x":1,"y":2}`, want: games.Reveal(1, 2)},
		{line: "rotate 2", wantErr: true},
		{line: "press red", wantErr: true},
		{line: "guess", wantErr: true},
		{line: "dance", wantErr: true},
		{line: `{"x":1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseAction(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlayerDrivesController(t *testing.T) {
	ctx := context.Background()
	target := terminal.NewTarget("journal-1", "kovacs:hunter2", "brute-force")
	ctrl := session.New(session.Config{
		TerminalID:  "bridge",
		Participant: session.Participant{ID: "p1"},
		Tick:        5 * time.Millisecond,
		ResultDelay: 20 * time.Millisecond,
	}, session.Deps{
		Channel: syncbus.NewBroker(),
		Targets: terminal.Directory{target.ID: target},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.Attach(ctx))

	var buf bytes.Buffer
	p := &player{ctrl: ctrl, out: &syncWriter{w: &buf}, title: "MOSH TERMINAL"}

	_, err := p.handle(ctx, "hack")
	assert.ErrorIs(t, err, session.ErrCannotHack)

	require.NoError(t, ctrl.SetHackTarget(ctx, &target))
	_, err = p.handle(ctx, "hack")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hacking with brute-force")

	_, err = p.handle(ctx, "state")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[MOSH TERMINAL] bridge view=hacking")
	assert.Contains(t, buf.String(), "brute-force score=")

	_, err = p.handle(ctx, "macro")
	assert.Error(t, err)

	require.NoError(t, ctrl.Cancel(ctx))
	_, err = p.handle(ctx, "cancel")
	assert.True(t, errors.Is(err, session.ErrNoActiveGame))

	quit, err := p.handle(ctx, "quit")
	require.NoError(t, err)
	assert.True(t, quit)
}
