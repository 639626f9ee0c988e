package labflow

import (
	"time"

	"github.com/rs/zerolog"
)

type EngineOption func(engine *Engine)

func WithEngineTxManager(txManager TxManager) EngineOption {
	return func(engine *Engine) {
		engine.txManager = txManager
	}
}

func WithEngineStore(store Store) EngineOption {
	return func(engine *Engine) {
		engine.store = store
	}
}

func WithEnginePluginManager(pluginManager *PluginManager) EngineOption {
	return func(e *Engine) {
		e.pluginManager = pluginManager
	}
}

func WithEngineActivityLog(activityLog ActivityLog) EngineOption {
	return func(e *Engine) {
		e.activityLog = activityLog
	}
}

// WithEngineFileResolver enables existence checks for file parameters.
func WithEngineFileResolver(resolver FileResolver) EngineOption {
	return func(e *Engine) {
		e.fileResolver = resolver
	}
}

func WithEngineLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = logger
	}
}

// WithEngineClock replaces time.Now. Barcodes are derived from this clock.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func WithEngineBarcodeAttempts(attempts int) EngineOption {
	return func(e *Engine) {
		if attempts < 1 {
			attempts = 1
		}
		e.barcodeAttempts = attempts
	}
}
