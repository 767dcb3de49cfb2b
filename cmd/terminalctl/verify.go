package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/MJE43/hack-terminal/internal/engine"
	"github.com/MJE43/hack-terminal/internal/games"
)

// runVerify regenerates the initial board offline, so a player can check a
// finished attempt once its server seed is revealed.
func runVerify(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("verify", stderr)
	game := fs.String("game", "", "minigame identifier")
	score := fs.Int("difficulty", 0, "hacking score the board was generated at")
	server := fs.String("server", "", "revealed server seed")
	client := fs.String("client", "", "client seed")
	nonce := fs.Uint64("nonce", 1, "board nonce")
	hash := fs.String("hash", "", "server seed hash to check against")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *game == "" || *server == "" || *client == "" {
		fmt.Fprintln(stderr, "usage: terminalctl verify --game <id> --difficulty <n> --server <seed> --client <seed> [--nonce n] [--hash h]")
		return errUsage
	}

	kind, ok := games.ParseKind(*game)
	if !ok {
		return fmt.Errorf("%w: %q", games.ErrUnknownKind, *game)
	}

	seeds := engine.Seeds{Server: *server, Client: *client}
	got := engine.HashSeed(seeds.Server)
	if *hash != "" && *hash != got {
		return fmt.Errorf("server seed hash mismatch: committed %s, seed hashes to %s", *hash, got)
	}

	state, err := games.NewRegistry().CreateSeeded(kind, *score, nil, seeds, *nonce).Snapshot()
	if err != nil {
		return err
	}

	out := struct {
		Game           games.Kind      `json:"game"`
		Difficulty     int             `json:"difficulty"`
		Nonce          uint64          `json:"nonce"`
		ServerSeedHash string          `json:"server_seed_hash"`
		State          json.RawMessage `json:"state"`
	}{kind, *score, *nonce, got, state}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
