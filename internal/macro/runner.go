// Package macro runs privileged GM macros in a sandboxed JavaScript VM.
package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds a single macro run.
const DefaultTimeout = 2 * time.Second

var ErrUnknownMacro = errors.New("macro: unknown macro")

// Runner holds compiled macros. Every run gets a fresh VM, so macros share
// no state with each other.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	programs map[string]*goja.Program
}

type Option func(*Runner)

func WithTimeout(d time.Duration) Option { return func(r *Runner) { r.timeout = d } }
func WithLogger(l *slog.Logger) Option   { return func(r *Runner) { r.logger = l } }

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		programs: make(map[string]*goja.Program),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register compiles source under name, replacing any macro of that name.
func (r *Runner) Register(name, source string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("macro: empty name")
	}
	prog, err := goja.Compile(name, source, true)
	if err != nil {
		return fmt.Errorf("macro: compile %s: %w", name, err)
	}
	r.mu.Lock()
	r.programs[name] = prog
	r.mu.Unlock()
	return nil
}

// LoadDir registers every *.js file in dir under its base name without the
// extension. It returns the number of macros loaded.
func (r *Runner) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("macro: read dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".js" {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, fmt.Errorf("macro: read %s: %w", e.Name(), err)
		}
		if err := r.Register(strings.TrimSuffix(e.Name(), ".js"), string(src)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Names lists the registered macros in sorted order.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute runs a macro without terminal context.
func (r *Runner) Execute(ctx context.Context, name string) error {
	return r.ExecuteFor(ctx, "", name)
}

// ExecuteFor runs a macro on behalf of a terminal, exposed to the script as
// the global `terminal`.
func (r *Runner) ExecuteFor(ctx context.Context, terminal, name string) error {
	r.mu.RLock()
	prog, ok := r.programs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMacro, name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vm := r.newVM(name, terminal)
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt("macro execution timeout")
	})
	defer stop()

	start := time.Now()
	_, err := vm.RunProgram(prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			err = ctx.Err()
		}
		r.logger.Warn("macro_failed", "macro", name, "terminal_id", terminal, "err", err)
		return fmt.Errorf("macro: run %s: %w", name, err)
	}

	r.logger.Info("macro_executed", "macro", name, "terminal_id", terminal, "duration", time.Since(start))
	return nil
}

func (r *Runner) newVM(name, terminal string) *goja.Runtime {
	vm := goja.New()

	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		r.logger.Info("macro_log", "macro", name, "terminal_id", terminal, "message", strings.Join(parts, " "))
		return goja.Undefined()
	}
	vm.Set("log", logFn)
	console := vm.NewObject()
	console.Set("log", logFn)
	vm.Set("console", console)

	vm.Set("macroName", name)
	vm.Set("terminal", terminal)

	vm.Set("require", goja.Undefined())
	vm.Set("fetch", goja.Undefined())
	vm.Set("XMLHttpRequest", goja.Undefined())
	vm.Set("eval", goja.Undefined())
	vm.Set("Function", goja.Undefined())
	return vm
}
