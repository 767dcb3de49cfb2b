package macro

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))}, opts...)
	return NewRunner(opts...), &buf
}

func TestExecuteLogsFromScript(t *testing.T) {
	r, logs := newTestRunner(t)
	require.NoError(t, r.Register("unlock-door", `log("opening", terminal, macroName); console.log(1 + 1);`))

	require.NoError(t, r.ExecuteFor(context.Background(), "bridge", "unlock-door"))
	out := logs.String()
	assert.Contains(t, out, `message="opening bridge unlock-door"`)
	assert.Contains(t, out, "message=2")
	assert.Contains(t, out, "macro_executed")
}

func TestExecuteUnknownMacro(t *testing.T) {
	r, _ := newTestRunner(t)
	err := r.Execute(context.Background(), "self-destruct")
	assert.ErrorIs(t, err, ErrUnknownMacro)
}

func TestRegisterRejectsBrokenSource(t *testing.T) {
	r, _ := newTestRunner(t)
	assert.Error(t, r.Register("broken", `function (`))
	assert.Error(t, r.Register("  ", `log(1)`))
	assert.Empty(t, r.Names())
}

func TestRunawayMacroIsInterrupted(t *testing.T) {
	r, logs := newTestRunner(t, WithTimeout(50*time.Millisecond))
	require.NoError(t, r.Register("spin", `for (;;) {}`))

	start := time.Now()
	err := r.Execute(context.Background(), "spin")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, logs.String(), "macro_failed")
}

func TestSandboxBlocksGlobals(t *testing.T) {
	r, _ := newTestRunner(t)
	for name, src := range map[string]string{
		"require": `require("fs")`,
		"eval":    `eval("1")`,
		"fetch":   `fetch("http://example.com")`,
	} {
		require.NoError(t, r.Register(name, src))
		assert.Error(t, r.Execute(context.Background(), name), name)
	}
}

func TestMacrosDoNotShareState(t *testing.T) {
	r, _ := newTestRunner(t)
	require.NoError(t, r.Register("count", `
		if (globalThis.counter !== undefined) { throw new Error("leaked"); }
		globalThis.counter = 1;
	`))
	require.NoError(t, r.Execute(context.Background(), "count"))
	require.NoError(t, r.Execute(context.Background(), "count"))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lights-off.js"), []byte(`log("dark")`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alarm.js"), []byte(`log("wail")`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(`# macros`), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.js"), 0o755))

	r, _ := newTestRunner(t)
	n, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"alarm", "lights-off"}, r.Names())

	_, err = r.LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
