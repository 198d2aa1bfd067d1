// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sandbox

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/extractor"
)

const (
	// EntryPoint is the export invoked on every payload.
	EntryPoint = "_start"

	// DefaultMemoryLimitPages caps linear memory at 16 MiB.
	DefaultMemoryLimitPages uint32 = 256
	maxMemoryLimitPages     uint32 = 65536
)

// Config bounds the resources of a single run.
type Config struct {
	// Timeout is the wall clock budget of one run. Zero means unbounded.
	Timeout time.Duration
	// MemoryLimitPages is the maximum number of 64 KiB pages of linear
	// memory. Zero selects DefaultMemoryLimitPages.
	MemoryLimitPages uint32
}

// Engine runs WebAssembly payloads in a fresh, isolated WASI runtime per
// call. An Engine holds no state across runs and is safe for concurrent use.
type Engine struct {
	config Config
	caps   Capabilities
	log    log.Logger
}

// New returns an engine that grants [caps] to every payload it executes.
func New(config Config, caps Capabilities, logger log.Logger) *Engine {
	if config.MemoryLimitPages == 0 {
		config.MemoryLimitPages = DefaultMemoryLimitPages
	}
	if config.MemoryLimitPages > maxMemoryLimitPages {
		config.MemoryLimitPages = maxMemoryLimitPages
	}
	if logger == nil {
		logger = log.New()
	}
	return &Engine{
		config: config,
		caps:   caps,
		log:    logger,
	}
}

// Execute runs [p] with the engine's capabilities.
func (e *Engine) Execute(ctx context.Context, p *extractor.Payload) Outcome {
	return e.Run(ctx, p.Code, e.caps)
}

// Run instantiates [code] with [caps] and drives its entry point to a
// terminal outcome. Every resource of the run is released before Run
// returns, on every path.
func (e *Engine) Run(ctx context.Context, code []byte, caps Capabilities) (outcome Outcome) {
	start := time.Now()
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(e.config.MemoryLimitPages),
	)
	defer func() {
		if err := runtime.Close(context.Background()); err != nil {
			e.log.Warn("failed to close sandbox runtime", "err", err)
		}
		e.log.Debug("sandbox run finished",
			"outcome", outcome,
			"codeLen", len(code),
			"duration", time.Since(start),
		)
	}()
	defer func() {
		if r := recover(); r != nil {
			outcome = trapped("panic: %v", r)
		}
	}()

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return instantiationFailed("wasi: %s", err)
	}
	wasi := runtime.Module(wasi_snapshot_preview1.ModuleName)

	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		return instantiationFailed("compile: %s", err)
	}
	if failed, ok := checkImports(compiled, wasi.ExportedFunctionDefinitions()); !ok {
		return failed
	}

	// Imports are resolved at this point, so an instantiation error comes
	// from guest code in the start section.
	mod, err := runtime.InstantiateModule(ctx, compiled, caps.moduleConfig())
	if err != nil {
		return classify(err)
	}

	fn := mod.ExportedFunction(EntryPoint)
	if fn == nil || !isNullary(fn.Definition()) {
		return entryPointAbsent()
	}
	if _, err := fn.Call(ctx); err != nil {
		return classify(err)
	}
	return completed()
}

// checkImports rejects modules that import anything WASI does not export
// with the same signature.
func checkImports(compiled wazero.CompiledModule, wasi map[string]api.FunctionDefinition) (Outcome, bool) {
	for _, def := range compiled.ImportedFunctions() {
		moduleName, name, _ := def.Import()
		if moduleName != wasi_snapshot_preview1.ModuleName {
			return instantiationFailed("unresolved import %s.%s", moduleName, name), false
		}
		host, ok := wasi[name]
		if !ok {
			return instantiationFailed("unresolved import %s.%s", moduleName, name), false
		}
		if !slices.Equal(def.ParamTypes(), host.ParamTypes()) || !slices.Equal(def.ResultTypes(), host.ResultTypes()) {
			return instantiationFailed("import %s.%s has the wrong signature", moduleName, name), false
		}
	}
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		moduleName, name, _ := mems[0].Import()
		return instantiationFailed("unresolved memory import %s.%s", moduleName, name), false
	}
	return Outcome{}, true
}

func isNullary(def api.FunctionDefinition) bool {
	return len(def.ParamTypes()) == 0 && len(def.ResultTypes()) == 0
}

// classify maps an error raised while running guest code to an outcome.
func classify(err error) Outcome {
	var exitErr *sys.ExitError
	if !errors.As(err, &exitErr) {
		return trapped("%s", err)
	}
	switch code := exitErr.ExitCode(); code {
	case 0:
		return completed()
	case sys.ExitCodeDeadlineExceeded:
		return trapped("execution budget exceeded")
	case sys.ExitCodeContextCanceled:
		return trapped("execution canceled")
	default:
		return trapped("exit code %d", code)
	}
}
