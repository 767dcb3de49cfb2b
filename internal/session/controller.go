// Package session runs one participant's view of a hacking terminal. The
// participant holding the controller seat owns the live minigame engine and
// broadcasts every change; everyone else applies the snapshots they receive.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/hack-terminal/internal/difficulty"
	"github.com/MJE43/hack-terminal/internal/engine"
	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/syncbus"
	"github.com/MJE43/hack-terminal/internal/terminal"
)

const (
	DefaultTick        = 100 * time.Millisecond
	DefaultResultDelay = 2 * time.Second

	// Messages of the synthetic results the controller injects itself.
	MessageAborted = "ABORTED"
	MessageTimeout = "TIMEOUT"

	// kindNonce and gameNonce split one attempt's seeds between picking the
	// minigame and generating its board.
	kindNonce = 0
	gameNonce = 1
)

var (
	ErrNotController  = errors.New("session: not the controller")
	ErrNoActiveGame   = errors.New("session: no active game")
	ErrNoGamesEnabled = errors.New("session: no minigames enabled")
	ErrCannotHack     = errors.New("session: terminal has no hackable target")
	ErrClosed         = errors.New("session: controller closed")
)

// Participant is the user driving a Controller.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	IsGM bool   `json:"isGm"`
}

// Config fixes the identity and timing of a Controller.
type Config struct {
	TerminalID  string
	Participant Participant
	// Tick is both the update period and the dt handed to the engine.
	Tick        time.Duration
	ResultDelay time.Duration
	Multiplier  decimal.Decimal
}

// MacroRunner executes a privileged macro by name.
type MacroRunner interface {
	Execute(ctx context.Context, name string) error
}

// Deps are the collaborators a Controller talks to.
type Deps struct {
	Registry *games.Registry
	Channel  syncbus.Channel
	Host     games.Host
	// Targets resolves a hack target chosen by another participant.
	Targets terminal.TargetResolver
	// Macros is only consulted when the participant is a GM.
	Macros MacroRunner
	Logger *slog.Logger
	// OnChange, when set, is called with every new state outside the lock.
	OnChange func(terminal.State)
}

// Controller is safe for concurrent use.
type Controller struct {
	cfg      Config
	reg      *games.Registry
	ch       syncbus.Channel
	host     games.Host
	targets  terminal.TargetResolver
	macros   MacroRunner
	log      *slog.Logger
	onChange func(terminal.State)

	mu          sync.Mutex
	state       terminal.State
	seq         uint64
	game        games.Engine
	target      *terminal.Target
	generation  uint64
	stopTick    chan struct{}
	resultTimer *time.Timer
	unsubscribe func()
	closed      bool
}

func New(cfg Config, deps Deps) *Controller {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.ResultDelay <= 0 {
		cfg.ResultDelay = DefaultResultDelay
	}
	if cfg.Multiplier.IsZero() {
		cfg.Multiplier = decimal.NewFromInt(1)
	}
	if deps.Registry == nil {
		deps.Registry = games.NewRegistry()
	}
	if deps.Host == nil {
		deps.Host = games.DefaultCatalog
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Controller{
		cfg:      cfg,
		reg:      deps.Registry,
		ch:       deps.Channel,
		host:     deps.Host,
		targets:  deps.Targets,
		macros:   deps.Macros,
		onChange: deps.OnChange,
		log: deps.Logger.With(
			"terminal_id", cfg.TerminalID,
			"participant_id", cfg.Participant.ID,
		),
		state: terminal.NewState(cfg.TerminalID),
	}
}

// Attach subscribes to the channel and asks the other participants for the
// current state.
func (c *Controller) Attach(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.unsubscribe == nil {
		c.unsubscribe = c.ch.Subscribe(c.cfg.Participant.ID, c.receive)
	}
	c.mu.Unlock()

	return c.ch.Publish(ctx, syncbus.RequestState(c.cfg.TerminalID, c.cfg.Participant.ID))
}

// Close unsubscribes and stops all timers. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTickingLocked()
	if c.resultTimer != nil {
		c.resultTimer.Stop()
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// State returns a copy of the current terminal state.
func (c *Controller) State() terminal.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// IsController reports whether this participant holds the seat.
func (c *Controller) IsController() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isControllerLocked()
}

func (c *Controller) isControllerLocked() bool {
	return c.state.ControllerID == c.cfg.Participant.ID
}

// canInteractLocked is true for the controller or anyone while the seat is free.
func (c *Controller) canInteractLocked() bool {
	return c.state.ControllerID == "" || c.isControllerLocked()
}

// SetHackTarget points the terminal at t, or clears the target when t is nil.
func (c *Controller) SetHackTarget(ctx context.Context, t *terminal.Target) error {
	c.mu.Lock()
	if !c.canInteractLocked() {
		c.mu.Unlock()
		return ErrNotController
	}
	if t != nil {
		cp := *t
		t = &cp
	}
	c.target = t
	c.state.SetTarget(t)
	return c.publishUnlock(ctx)
}

// StartHacking claims the seat and starts a randomly chosen enabled minigame
// at the profile's score.
func (c *Controller) StartHacking(ctx context.Context, profile difficulty.Profile) (games.Kind, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if !c.canInteractLocked() {
		c.mu.Unlock()
		return "", ErrNotController
	}
	target := c.targetLocked()
	if target == nil || !c.state.CanHack {
		c.mu.Unlock()
		return "", ErrCannotHack
	}

	kinds := target.EnabledKinds(c.reg.Types())
	if len(kinds) == 0 {
		c.mu.Unlock()
		return "", ErrNoGamesEnabled
	}

	score := difficulty.Score(profile, c.cfg.Multiplier)
	seeds := engine.NewSeeds()
	kind := kinds[engine.NewSource(seeds, kindNonce).Intn(len(kinds))]
	game := c.reg.CreateSeeded(kind, score, c.host, seeds, gameNonce)

	raw, err := game.Snapshot()
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("session: snapshot %s: %w", kind, err)
	}

	attempt := &terminal.Attempt{
		ID:             uuid.NewString(),
		Seeds:          seeds,
		ServerSeedHash: engine.HashSeed(seeds.Server),
		Nonce:          gameNonce,
	}

	c.cancelResultLocked()
	c.generation++
	c.game = game
	c.state.Begin(c.cfg.Participant.ID, kind, score, raw, attempt)
	c.startTickingLocked()

	c.log.Info("hack_started", "attempt_id", attempt.ID, "game", string(kind), "score", score)
	return kind, c.publishUnlock(ctx)
}

// Act forwards one player input to the live engine. Only the controller may
// act; a controller without a live engine restores it from the last snapshot.
func (c *Controller) Act(ctx context.Context, a games.Action) (games.Result, error) {
	c.mu.Lock()
	if !c.isControllerLocked() {
		c.mu.Unlock()
		return games.Result{}, ErrNotController
	}
	if err := c.ensureGameLocked(); err != nil {
		c.mu.Unlock()
		return games.Result{}, err
	}
	if c.state.Resolved() {
		c.mu.Unlock()
		return games.Result{Complete: true}, nil
	}

	res := c.game.HandleAction(a)
	if err := c.syncGameStateLocked(); err != nil {
		c.mu.Unlock()
		return res, err
	}
	if res.Complete {
		c.completeLocked(res)
	}
	return res, c.publishUnlock(ctx)
}

// Cancel aborts the running attempt as a failure.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if !c.isControllerLocked() {
		c.mu.Unlock()
		return ErrNotController
	}
	if !c.state.Hacking() || c.state.Resolved() {
		c.mu.Unlock()
		return ErrNoActiveGame
	}
	c.completeLocked(games.Result{Success: false, Complete: true, Message: MessageAborted})
	return c.publishUnlock(ctx)
}

// Logout returns the terminal to its login screen and frees the seat.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if !c.canInteractLocked() {
		c.mu.Unlock()
		return ErrNotController
	}
	c.cancelResultLocked()
	c.stopTickingLocked()
	c.generation++
	c.game = nil
	c.target = nil
	c.state.SetTarget(nil)
	c.state.Logout()
	return c.publishUnlock(ctx)
}

// RequestMacro runs a privileged macro locally when this participant is a GM
// with a runner, and otherwise forwards it to whoever is.
func (c *Controller) RequestMacro(ctx context.Context, name string) error {
	if c.cfg.Participant.IsGM && c.macros != nil {
		return c.macros.Execute(ctx, name)
	}
	c.log.Info("macro_forwarded", "macro", name)
	return c.ch.Publish(ctx, syncbus.ExecuteMacro(c.cfg.TerminalID, c.cfg.Participant.ID, name))
}

// targetLocked returns the target the state points at, resolving targets
// that another participant selected.
func (c *Controller) targetLocked() *terminal.Target {
	id := c.state.HackTargetID
	if id == "" {
		return nil
	}
	if c.target != nil && c.target.ID == id {
		return c.target
	}
	if c.targets != nil {
		if t, ok := c.targets.Target(id); ok {
			c.target = &t
			return c.target
		}
	}
	return nil
}

func (c *Controller) ensureGameLocked() error {
	if c.game != nil {
		return nil
	}
	if !c.state.Hacking() || c.state.HackingType == "" || c.state.HackingState == nil {
		return ErrNoActiveGame
	}
	g, err := c.reg.Restore(c.state.HackingType, c.state.HackingState, c.host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoActiveGame, err)
	}
	c.game = g
	return nil
}

func (c *Controller) syncGameStateLocked() error {
	raw, err := c.game.Snapshot()
	if err != nil {
		return fmt.Errorf("session: snapshot %s: %w", c.game.Kind(), err)
	}
	c.state.HackingState = raw
	return nil
}

// completeLocked shows the result and schedules the transition away from the
// hacking view once the result delay has passed.
func (c *Controller) completeLocked(res games.Result) {
	c.stopTickingLocked()
	c.state.Resolve(res)

	attemptID := ""
	if c.state.Attempt != nil {
		attemptID = c.state.Attempt.ID
	}
	c.log.Info("hack_completed",
		"attempt_id", attemptID,
		"game", string(c.state.HackingType),
		"success", res.Success,
		"message", res.Message,
	)

	gen := c.generation
	c.cancelResultLocked()
	c.resultTimer = time.AfterFunc(c.cfg.ResultDelay, func() {
		c.finish(gen, res.Success)
	})
}

func (c *Controller) cancelResultLocked() {
	if c.resultTimer != nil {
		c.resultTimer.Stop()
		c.resultTimer = nil
	}
}

func (c *Controller) finish(gen uint64, success bool) {
	c.mu.Lock()
	if c.closed || gen != c.generation || !c.isControllerLocked() {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.resultTimer = nil
	c.game = nil
	if success {
		c.state.Grant(c.targetLocked())
	} else {
		c.state.Deny()
	}
	if err := c.publishUnlock(context.Background()); err != nil {
		c.log.Error("publish_failed", "err", err)
	}
}

func (c *Controller) startTickingLocked() {
	c.stopTickingLocked()
	stop := make(chan struct{})
	c.stopTick = stop
	go c.tickLoop(stop, c.cfg.Tick)
}

func (c *Controller) stopTickingLocked() {
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

func (c *Controller) tickLoop(stop <-chan struct{}, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick(stop, period)
		}
	}
}

func (c *Controller) tick(stop <-chan struct{}, dt time.Duration) {
	c.mu.Lock()
	select {
	case <-stop:
		c.mu.Unlock()
		return
	default:
	}
	if c.game == nil || !c.state.Hacking() || c.state.Resolved() {
		c.mu.Unlock()
		return
	}
	if !c.game.Update(dt) {
		c.mu.Unlock()
		return
	}
	if err := c.syncGameStateLocked(); err != nil {
		c.mu.Unlock()
		c.log.Error("tick_failed", "err", err)
		return
	}
	if c.game.IsLost() {
		c.completeLocked(games.Result{Success: false, Complete: true, Message: MessageTimeout})
	}
	if err := c.publishUnlock(context.Background()); err != nil {
		c.log.Error("publish_failed", "err", err)
	}
}

// publishUnlock stamps the next sequence number, releases the lock and
// broadcasts the snapshot. It must be called with c.mu held.
func (c *Controller) publishUnlock(ctx context.Context) error {
	c.seq++
	snapshot := c.state.Clone()
	msg, err := syncbus.UpdateState(c.cfg.TerminalID, c.cfg.Participant.ID, c.seq, snapshot)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.notify(snapshot)
	if err := c.ch.Publish(ctx, msg); err != nil {
		return fmt.Errorf("session: publish: %w", err)
	}
	return nil
}

func (c *Controller) notify(s terminal.State) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

func (c *Controller) receive(m syncbus.Message) {
	if m.Terminal != c.cfg.TerminalID {
		return
	}
	switch m.Type {
	case syncbus.TypeUpdateState:
		c.applyUpdate(m)
	case syncbus.TypeRequestState:
		c.answerRequest()
	case syncbus.TypeExecuteMacro:
		c.runForwardedMacro(m)
	}
}

func (c *Controller) applyUpdate(m syncbus.Message) {
	var next terminal.State
	if err := json.Unmarshal(m.Payload, &next); err != nil {
		c.log.Warn("snapshot_rejected", "sender", m.Sender, "err", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if m.Sequence <= c.seq {
		last := c.seq
		c.mu.Unlock()
		c.log.Debug("snapshot_dropped", "sender", m.Sender, "sequence", m.Sequence, "last_sequence", last)
		return
	}
	c.seq = m.Sequence

	wasController := c.isControllerLocked()
	c.state = next
	if wasController && !c.isControllerLocked() {
		// Someone else took the seat; our engine and timers are stale.
		c.stopTickingLocked()
		c.cancelResultLocked()
		c.generation++
	}
	c.syncObserverGameLocked()
	snapshot := c.state.Clone()
	c.mu.Unlock()

	c.notify(snapshot)
}

// syncObserverGameLocked keeps a restored engine matching the received state
// for local rendering. The controller keeps its live engine.
func (c *Controller) syncObserverGameLocked() {
	if c.isControllerLocked() && c.game != nil && c.state.Hacking() && c.game.Kind() == c.state.HackingType {
		return
	}
	if !c.state.Hacking() || c.state.HackingType == "" || c.state.HackingState == nil {
		c.game = nil
		return
	}
	if c.game != nil && c.game.Kind() == c.state.HackingType {
		if err := c.game.Restore(c.state.HackingState); err == nil {
			return
		}
	}
	g, err := c.reg.Restore(c.state.HackingType, c.state.HackingState, c.host)
	if err != nil {
		c.log.Warn("game_restore_failed", "game", string(c.state.HackingType), "err", err)
		c.game = nil
		return
	}
	c.game = g
}

// answerRequest replies for the controller, or for a GM while the seat is free.
func (c *Controller) answerRequest() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	owner := c.isControllerLocked() || (c.cfg.Participant.IsGM && c.state.ControllerID == "")
	if !owner {
		c.mu.Unlock()
		return
	}
	if err := c.publishUnlock(context.Background()); err != nil {
		c.log.Error("publish_failed", "err", err)
	}
}

func (c *Controller) runForwardedMacro(m syncbus.Message) {
	if !c.cfg.Participant.IsGM || c.macros == nil {
		return
	}
	req, err := m.Macro()
	if err != nil {
		c.log.Warn("macro_rejected", "sender", m.Sender, "err", err)
		return
	}
	go func() {
		if err := c.macros.Execute(context.Background(), req.MacroName); err != nil {
			c.log.Error("macro_failed", "macro", req.MacroName, "err", err)
			return
		}
		c.log.Info("macro_executed", "macro", req.MacroName, "requested_by", m.Sender)
	}()
}
