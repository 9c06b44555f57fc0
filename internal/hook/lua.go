package hook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shopify/go-lua"
)

// LuaScript is the Lua hook file name.
const LuaScript = "helper_script.lua"

// LuaEntryPoint is the global function a Lua hook defines.
const LuaEntryPoint = "run"

// LuaRunner runs helper_script.lua in a fresh interpreter per invocation.
type LuaRunner struct {
	logger *slog.Logger
}

// NewLuaRunner creates a LuaRunner.
func NewLuaRunner(logger *slog.Logger) *LuaRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LuaRunner{logger: logger}
}

func (r *LuaRunner) Script() string {
	return LuaScript
}

// Run loads the script, then calls its global run(target) if defined.
//
// ctx is only checked before the script starts. The interpreter has no
// cancellation point, so a running script is not interrupted and there is no
// timeout as there is for shell hooks.
func (r *LuaRunner) Run(ctx context.Context, scriptPath, targetDir string) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lua hook not started: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("lua runtime error: %v", p)
		}
	}()

	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadFile(state, scriptPath, ""); err != nil {
		return fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run lua: %w", err)
	}

	state.Global(LuaEntryPoint)
	if !state.IsFunction(-1) {
		state.Pop(1)
		r.logger.Warn("lua hook has no run function, skipping", "script", scriptPath)
		return nil
	}

	state.PushString(targetDir)
	if err := state.ProtectedCall(1, 0, 0); err != nil {
		return fmt.Errorf("lua %s(): %w", LuaEntryPoint, err)
	}
	return nil
}
