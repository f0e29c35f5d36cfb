package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// modifyRarityHook is the Lua global a loot script defines to adjust the
// rarity tier a participant rolls against.
const modifyRarityHook = "modify_rarity"

// Runner owns one sandboxed LState per loot script and dispatches hook calls
// into them. Each LState is single-threaded; the runner serializes calls per
// script while allowing different scripts to run concurrently.
type Runner struct {
	mu        sync.RWMutex
	states    map[string]*scriptState
	instLimit int
	logger    *zap.Logger
}

type scriptState struct {
	mu sync.Mutex
	L  *lua.LState
}

// NewRunner creates a Runner. instLimit of 0 uses DefaultInstructionLimit.
//
// Precondition: logger must be non-nil.
func NewRunner(instLimit int, logger *zap.Logger) *Runner {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	return &Runner{
		states:    make(map[string]*scriptState),
		instLimit: instLimit,
		logger:    logger,
	}
}

// LoadDir loads every *.lua file in dir into its own sandboxed VM, keyed by
// file name (e.g. "hinox.lua"). Files load in lexicographic order.
//
// Precondition: dir must be a readable directory.
// Postcondition: All scripts are registered; returns error on the first Lua
// load failure.
func (r *Runner) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.Load(name, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Load executes the script at path in a fresh sandboxed VM and registers it
// under the given name, replacing any prior registration.
func (r *Runner) Load(name, path string) error {
	L := NewSandboxedState(r.instLimit)
	if err := L.DoFile(path); err != nil {
		L.Close()
		return fmt.Errorf("scripting: loading %q: %w", path, err)
	}

	r.mu.Lock()
	if old, ok := r.states[name]; ok {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	r.states[name] = &scriptState{L: L}
	r.mu.Unlock()
	r.logger.Info("loot script loaded", zap.String("script", name), zap.String("path", path))
	return nil
}

// Has reports whether a script is registered under the given name.
func (r *Runner) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.states[name]
	return ok
}

// ModifyRarity calls the script's modify_rarity(monster, damage, tier)
// global and returns its numeric result. A script without the hook returns
// tier unchanged. Lua runtime errors propagate to the caller; the loot engine
// treats them as advisory.
//
// Postcondition: The returned tier is the script's value truncated to int, or
// the input tier when the hook is absent.
func (r *Runner) ModifyRarity(script, monsterName string, damage, tier int) (int, error) {
	r.mu.RLock()
	st, ok := r.states[script]
	r.mu.RUnlock()
	if !ok {
		return tier, fmt.Errorf("scripting: script %q not loaded", script)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	L := st.L

	fn := L.GetGlobal(modifyRarityHook)
	if fn == lua.LNil {
		return tier, nil
	}

	// Re-arm the opcode budget so long-lived VMs never exhaust it across calls.
	ctx, _ := newCountingContext(r.instLimit)
	L.SetContext(ctx)

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(monsterName), lua.LNumber(damage), lua.LNumber(tier)); err != nil {
		return tier, fmt.Errorf("scripting: %s in %q: %w", modifyRarityHook, script, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	num, ok := ret.(lua.LNumber)
	if !ok {
		return tier, fmt.Errorf("scripting: %s in %q returned %s, want number", modifyRarityHook, script, ret.Type())
	}
	return int(num), nil
}

// Close shuts down every registered VM. The runner must not be used after.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, st := range r.states {
		st.mu.Lock()
		st.L.Close()
		st.mu.Unlock()
		delete(r.states, name)
	}
}

// Scripts returns the registered script names, sorted.
func (r *Runner) Scripts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
