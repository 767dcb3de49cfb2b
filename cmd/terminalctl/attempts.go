package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MJE43/hack-terminal/internal/store"
)

const defaultServer = "http://127.0.0.1:8077"

func runAttempts(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("attempts", stderr)
	server := fs.String("server", defaultServer, "terminald base URL")
	dbPath := fs.String("db", "", "read a database file directly instead of the server")
	game := fs.String("game", "", "only attempts at this minigame")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 20, "attempts per page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: terminalctl attempts [flags] <terminal>")
		return errUsage
	}

	query := store.AttemptsQuery{
		TerminalID: fs.Arg(0),
		Game:       *game,
		Page:       *page,
		PerPage:    *perPage,
	}

	var (
		res *store.AttemptsPage
		err error
	)
	if *dbPath != "" {
		res, err = attemptsFromDB(ctx, *dbPath, query)
	} else {
		res, err = attemptsFromServer(ctx, *server, query)
	}
	if err != nil {
		return err
	}
	printAttempts(stdout, res, time.Now())
	return nil
}

func attemptsFromDB(ctx context.Context, path string, query store.AttemptsQuery) (*store.AttemptsPage, error) {
	db, err := store.NewSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.ListAttempts(ctx, query)
}

func attemptsFromServer(ctx context.Context, server string, query store.AttemptsQuery) (*store.AttemptsPage, error) {
	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	u := base.JoinPath("api", "v1", "terminals", query.TerminalID, "attempts")
	q := u.Query()
	q.Set("page", strconv.Itoa(query.Page))
	q.Set("per_page", strconv.Itoa(query.PerPage))
	if query.Game != "" {
		q.Set("game", query.Game)
	}
	u.RawQuery = q.Encode()

	var page store.AttemptsPage
	if err := getJSON(ctx, u.String(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s (%s)", resp.Status, apiErr.Message, apiErr.Type)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func printAttempts(w io.Writer, page *store.AttemptsPage, now time.Time) {
	if len(page.Attempts) == 0 {
		fmt.Fprintln(w, "no attempts")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGAME\tSCORE\tPLAYER\tRESULT\tSTARTED\tTOOK\tSERVER HASH")
	for _, a := range page.Attempts {
		result := a.Result
		if a.Status == store.StatusActive {
			result = "in progress"
		}
		took := "-"
		if a.EndedAt != nil {
			took = strings.TrimSpace(humanize.RelTime(a.StartedAt, *a.EndedAt, "", ""))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			shortID(a.ID),
			a.Game,
			a.Score,
			a.ParticipantID,
			result,
			humanize.RelTime(a.StartedAt, now, "ago", "from now"),
			took,
			shortID(a.ServerSeedHash),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "page %d of %d, %s attempts\n", page.Page, page.TotalPages, humanize.Comma(int64(page.TotalCount)))
}

func shortID(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
