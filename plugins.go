package labflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

type PluginPriority int

const (
	PriorityLow    PluginPriority = 0
	PriorityNormal PluginPriority = 50
	PriorityHigh   PluginPriority = 100
)

// Plugin hooks into item lifecycle transitions. BeforeFinish runs inside the
// transaction and can veto the finish; every other hook runs after commit.
type Plugin interface {
	// Name returns unique plugin identifier
	Name() string

	// Priority determines execution order (higher = earlier)
	Priority() PluginPriority

	BeforeFinish(
		ctx context.Context,
		item *AcceptanceItem,
		state *AcceptanceItemState,
		params []CapturedParameter,
	) error
	OnStateEntered(ctx context.Context, item *AcceptanceItem, state *AcceptanceItemState) error
	OnStateFinished(ctx context.Context, item *AcceptanceItem, state *AcceptanceItemState) error
	OnStateRejected(ctx context.Context, item *AcceptanceItem, state *AcceptanceItemState) error
	OnSampleCollected(ctx context.Context, item *AcceptanceItem, sample *Sample) error
	OnItemReportable(ctx context.Context, item *AcceptanceItem) error
}

// BasePlugin provides default no-op implementations
type BasePlugin struct {
	name     string
	priority PluginPriority
}

func NewBasePlugin(name string, priority PluginPriority) BasePlugin {
	return BasePlugin{name: name, priority: priority}
}

func (p BasePlugin) Name() string             { return p.name }
func (p BasePlugin) Priority() PluginPriority { return p.priority }
func (p BasePlugin) BeforeFinish(
	context.Context,
	*AcceptanceItem,
	*AcceptanceItemState,
	[]CapturedParameter,
) error {
	return nil
}
func (p BasePlugin) OnStateEntered(context.Context, *AcceptanceItem, *AcceptanceItemState) error {
	return nil
}
func (p BasePlugin) OnStateFinished(context.Context, *AcceptanceItem, *AcceptanceItemState) error {
	return nil
}
func (p BasePlugin) OnStateRejected(context.Context, *AcceptanceItem, *AcceptanceItemState) error {
	return nil
}
func (p BasePlugin) OnSampleCollected(context.Context, *AcceptanceItem, *Sample) error { return nil }
func (p BasePlugin) OnItemReportable(context.Context, *AcceptanceItem) error            { return nil }

// PluginManager manages plugin lifecycle
type PluginManager struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewPluginManager() *PluginManager {
	return &PluginManager{
		plugins: make([]Plugin, 0),
	}
}

func (pm *PluginManager) Register(plugin Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.plugins = append(pm.plugins, plugin)

	sort.SliceStable(pm.plugins, func(i, j int) bool {
		return pm.plugins[i].Priority() > pm.plugins[j].Priority()
	})
}

func (pm *PluginManager) ExecuteBeforeFinish(
	ctx context.Context,
	item *AcceptanceItem,
	state *AcceptanceItemState,
	params []CapturedParameter,
) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.BeforeFinish(ctx, item, state, params); err != nil {
			return fmt.Errorf("plugin %s: %w", plugin.Name(), err)
		}
	}

	return nil
}

func (pm *PluginManager) ExecuteStateEntered(ctx context.Context, item *AcceptanceItem, state *AcceptanceItemState) {
	pm.each("state entered", func(plugin Plugin) error {
		return plugin.OnStateEntered(ctx, item, state)
	})
}

func (pm *PluginManager) ExecuteStateFinished(ctx context.Context, item *AcceptanceItem, state *AcceptanceItemState) {
	pm.each("state finished", func(plugin Plugin) error {
		return plugin.OnStateFinished(ctx, item, state)
	})
}

func (pm *PluginManager) ExecuteStateRejected(ctx context.Context, item *AcceptanceItem, state *AcceptanceItemState) {
	pm.each("state rejected", func(plugin Plugin) error {
		return plugin.OnStateRejected(ctx, item, state)
	})
}

func (pm *PluginManager) ExecuteSampleCollected(ctx context.Context, item *AcceptanceItem, sample *Sample) {
	pm.each("sample collected", func(plugin Plugin) error {
		return plugin.OnSampleCollected(ctx, item, sample)
	})
}

func (pm *PluginManager) ExecuteItemReportable(ctx context.Context, item *AcceptanceItem) {
	pm.each("item reportable", func(plugin Plugin) error {
		return plugin.OnItemReportable(ctx, item)
	})
}

// each runs a post-commit hook on every plugin. Failures are logged only.
func (pm *PluginManager) each(hook string, fn func(plugin Plugin) error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := fn(plugin); err != nil {
			log.Error().Err(err).
				Str("plugin", plugin.Name()).
				Str("hook", hook).
				Msg("[labflow] plugin hook failed")
		}
	}
}
