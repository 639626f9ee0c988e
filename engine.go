package labflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultBarcodeAttempts = 3

var _ IEngine = (*Engine)(nil)

type Engine struct {
	txManager       TxManager
	store           Store
	pluginManager   *PluginManager
	activityLog     ActivityLog
	fileResolver    FileResolver
	definitions     *definitionCache
	log             zerolog.Logger
	now             func() time.Time
	barcodeAttempts int
}

// NewEngine builds an engine on top of a Postgres pool. Pass a nil pool and
// WithEngineStore/WithEngineTxManager to run on SQLite or memory.
func NewEngine(pool *pgxpool.Pool, opts ...EngineOption) *Engine {
	engine := &Engine{
		definitions:     newDefinitionCache(),
		log:             log.Logger,
		now:             func() time.Time { return time.Now().UTC() },
		barcodeAttempts: defaultBarcodeAttempts,
	}

	if pool != nil {
		engine.store = NewStore(pool)
		engine.txManager = NewTxManager(pool)
	}

	for _, opt := range opts {
		opt(engine)
	}

	if engine.store == nil {
		engine.store = NewMemoryStore()
	}
	if engine.txManager == nil {
		engine.txManager = NewMemoryTxManager()
	}
	if engine.pluginManager == nil {
		engine.pluginManager = NewPluginManager()
	}
	if engine.activityLog == nil {
		engine.activityLog = NewStoreActivityLog(engine.store)
	}

	return engine
}

func (engine *Engine) RegisterPlugin(plugin Plugin) {
	engine.pluginManager.Register(plugin)
}

// RegisterWorkflow stores a copy of def. An empty ID is filled in on def so
// the caller learns it; nothing else of def is touched.
func (engine *Engine) RegisterWorkflow(ctx context.Context, actor Actor, def *WorkflowDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	def = cloneDefinition(def)
	if err := validateDefinition(def); err != nil {
		return err
	}

	existing, err := engine.store.GetWorkflowDefinitionByMethod(ctx, def.MethodID)
	switch {
	case err == nil && existing.ID != def.ID:
		return fmt.Errorf("%w: method %q is bound to workflow %q", ErrInvalidDefinition, def.MethodID, existing.ID)
	case err != nil && !errors.Is(err, ErrEntityNotFound):
		return fmt.Errorf("get workflow by method: %w", err)
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = engine.now()
	}
	if err := engine.store.SaveWorkflowDefinition(ctx, def); err != nil {
		return fmt.Errorf("save workflow definition: %w", err)
	}
	engine.definitions.put(def)

	uow := &unitOfWork{}
	uow.record(EntityWorkflow, def.ID, ActivityCreate, actor, map[string]any{
		KeyMethodID: def.MethodID,
		"steps":     len(def.Steps),
	})
	engine.commit(ctx, uow)

	return nil
}

func (engine *Engine) GetWorkflow(ctx context.Context, workflowID string) (*WorkflowDefinition, error) {
	if def, ok := engine.definitions.get(workflowID); ok {
		return cloneDefinition(def), nil
	}

	def, err := engine.store.GetWorkflowDefinition(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow definition: %w", err)
	}
	engine.definitions.put(def)

	return cloneDefinition(def), nil
}

func (engine *Engine) GetWorkflows(ctx context.Context) ([]*WorkflowDefinition, error) {
	return engine.store.GetWorkflowDefinitions(ctx)
}

func (engine *Engine) GetSteps(ctx context.Context, workflowID string) ([]SectionStep, error) {
	def, err := engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return slices.Clone(def.Steps), nil
}

func (engine *Engine) FindStepBySection(ctx context.Context, workflowID, sectionID string) (*SectionStep, error) {
	def, err := engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	step, ok := def.StepBySection(sectionID)
	if !ok {
		return nil, newNotFound("section in workflow "+workflowID, sectionID)
	}
	copied := *step

	return &copied, nil
}

func (engine *Engine) FindStepsBeforeOrder(ctx context.Context, workflowID string, order int) ([]SectionStep, error) {
	def, err := engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return def.StepsBeforeOrder(order), nil
}

func (engine *Engine) workflowForItem(ctx context.Context, item *AcceptanceItem) (*WorkflowDefinition, error) {
	if def, ok := engine.definitions.getByMethod(item.MethodID); ok {
		return def, nil
	}

	def, err := engine.store.GetWorkflowDefinitionByMethod(ctx, item.MethodID)
	if err != nil {
		return nil, fmt.Errorf("get workflow for method: %w", err)
	}
	engine.definitions.put(def)

	return def, nil
}

// lockActiveItem locks the item row and loads its workflow. Closed items are
// rejected.
func (engine *Engine) lockActiveItem(ctx context.Context, itemID int64) (*AcceptanceItem, *WorkflowDefinition, error) {
	item, err := engine.store.LockAcceptanceItem(ctx, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock acceptance item: %w", err)
	}

	if item.Status != ItemStatusActive {
		return nil, nil, &ItemClosedError{ItemID: item.ID, Status: item.Status}
	}

	def, err := engine.workflowForItem(ctx, item)
	if err != nil {
		return nil, nil, err
	}

	return item, def, nil
}

type entryPlan struct {
	item     *AcceptanceItem
	step     *SectionStep
	def      *WorkflowDefinition
	existing *AcceptanceItemState
	waiting  *AcceptanceItemState
}

// planEntry decides what entering sectionID means for the item without
// writing anything.
func (engine *Engine) planEntry(
	ctx context.Context,
	item *AcceptanceItem,
	def *WorkflowDefinition,
	sectionID string,
) (*entryPlan, error) {
	history, err := engine.store.GetStatesByItem(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("get states: %w", err)
	}

	pos := DerivePosition(def, history)
	if pos.InProgress != nil && pos.InProgress.SectionID == sectionID {
		return &entryPlan{item: item, existing: pos.InProgress}, nil
	}

	if err := engine.checkSampleGate(ctx, item, sectionID); err != nil {
		return nil, err
	}

	if !pos.AllowsEntry(sectionID) {
		return nil, pos.outOfOrder(item.ID, sectionID)
	}

	step, _ := def.StepBySection(sectionID)

	return &entryPlan{
		item:    item,
		step:    step,
		def:     def,
		waiting: currentStateAt(history, sectionID),
	}, nil
}

func (engine *Engine) applyEntry(
	ctx context.Context,
	uow *unitOfWork,
	actor Actor,
	plan *entryPlan,
) (*AcceptanceItemState, error) {
	if plan.existing != nil {
		return plan.existing, nil
	}

	now := engine.now()
	actorID := actor.ID

	state := plan.waiting
	if state != nil {
		state.Status = StateStatusProcessing
		state.StartedBy = &actorID
		state.StartedAt = &now
		state.CreatedAt = now
		state.UpdatedAt = now

		if err := engine.store.UpdateState(ctx, state); err != nil {
			return nil, fmt.Errorf("update state: %w", err)
		}

		uow.record(EntityState, idKey(state.ID), ActivityUpdate, actor, map[string]any{
			KeyPreviousStatus: StateStatusWaiting,
			KeyStatus:         state.Status,
			KeySectionID:      state.SectionID,
		})
	} else {
		state = &AcceptanceItemState{
			AcceptanceItemID: plan.item.ID,
			WorkflowID:       plan.def.ID,
			SectionID:        plan.step.SectionID,
			Order:            plan.step.Order,
			Status:           StateStatusProcessing,
			StartedBy:        &actorID,
			StartedAt:        &now,
			Parameters:       emptyParameters(plan.step),
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		if err := engine.store.CreateState(ctx, state); err != nil {
			return nil, fmt.Errorf("create state: %w", err)
		}

		uow.record(EntityState, idKey(state.ID), ActivityCreate, actor, map[string]any{
			KeyItemID:    state.AcceptanceItemID,
			KeySectionID: state.SectionID,
			KeyOrder:     state.Order,
			KeyStatus:    state.Status,
		})
	}

	item := plan.item
	uow.after(func(ctx context.Context) {
		engine.pluginManager.ExecuteStateEntered(ctx, item, state)
	})

	return state, nil
}

// EnterByBarcode starts processing at sectionID for every active item linked
// to the scanned sample. Items whose workflow lacks the section are skipped.
// If any remaining item is out of order nothing is written.
func (engine *Engine) EnterByBarcode(
	ctx context.Context,
	actor Actor,
	barcode string,
	sectionID string,
) ([]*AcceptanceItemState, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" || sectionID == "" {
		return nil, fmt.Errorf("%w: barcode and section are required", ErrInvalidInput)
	}

	var entered []*AcceptanceItemState
	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		links, err := engine.store.GetActiveSampleLinksByBarcode(ctx, barcode)
		if err != nil {
			return fmt.Errorf("get sample links: %w", err)
		}
		if len(links) == 0 {
			return newNotFound("active sample", barcode)
		}

		plans := make([]*entryPlan, 0, len(links))
		for _, itemID := range linkedItemIDs(links) {
			item, err := engine.store.LockAcceptanceItem(ctx, itemID)
			if err != nil {
				return fmt.Errorf("lock acceptance item: %w", err)
			}
			if item.Status != ItemStatusActive {
				continue
			}

			// the link may have been replaced between the lookup and the lock
			linked, err := engine.hasActiveBarcode(ctx, item.ID, barcode)
			if err != nil {
				return err
			}
			if !linked {
				continue
			}

			def, err := engine.workflowForItem(ctx, item)
			if err != nil {
				return err
			}
			if _, ok := def.StepBySection(sectionID); !ok {
				continue
			}

			plan, err := engine.planEntry(ctx, item, def, sectionID)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
		}

		if len(plans) == 0 {
			return newNotFound("item at section "+sectionID+" for barcode", barcode)
		}

		for _, plan := range plans {
			state, err := engine.applyEntry(ctx, uow, actor, plan)
			if err != nil {
				return err
			}
			entered = append(entered, state)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.commit(ctx, uow)

	return entered, nil
}

// EnterByItem is the manual path for a single item. It requires an active
// sample link just like the barcode path.
func (engine *Engine) EnterByItem(
	ctx context.Context,
	actor Actor,
	itemID int64,
	sectionID string,
) (*AcceptanceItemState, error) {
	if sectionID == "" {
		return nil, fmt.Errorf("%w: section is required", ErrInvalidInput)
	}

	var state *AcceptanceItemState
	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		item, def, err := engine.lockActiveItem(ctx, itemID)
		if err != nil {
			return err
		}

		if _, ok := def.StepBySection(sectionID); !ok {
			return newNotFound("section in workflow "+def.ID, sectionID)
		}

		plan, err := engine.planEntry(ctx, item, def, sectionID)
		if err != nil {
			return err
		}

		state, err = engine.applyEntry(ctx, uow, actor, plan)

		return err
	})
	if err != nil {
		return nil, err
	}

	engine.commit(ctx, uow)

	return state, nil
}

// Queue records that the item is waiting at its next section.
func (engine *Engine) Queue(ctx context.Context, actor Actor, itemID int64) (*AcceptanceItemState, error) {
	var state *AcceptanceItemState
	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		item, def, err := engine.lockActiveItem(ctx, itemID)
		if err != nil {
			return err
		}

		history, err := engine.store.GetStatesByItem(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("get states: %w", err)
		}

		pos := DerivePosition(def, history)
		switch {
		case pos.InProgress != nil:
			state = pos.InProgress

			return nil
		case pos.Complete:
			return pos.outOfOrder(item.ID, "")
		}

		if current := currentStateAt(history, pos.Step.SectionID); current != nil {
			state = current

			return nil
		}

		now := engine.now()
		state = &AcceptanceItemState{
			AcceptanceItemID: item.ID,
			WorkflowID:       def.ID,
			SectionID:        pos.Step.SectionID,
			Order:            pos.Step.Order,
			Status:           StateStatusWaiting,
			Parameters:       emptyParameters(pos.Step),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := engine.store.CreateState(ctx, state); err != nil {
			return fmt.Errorf("create state: %w", err)
		}

		uow.record(EntityState, idKey(state.ID), ActivityCreate, actor, map[string]any{
			KeyItemID:    item.ID,
			KeySectionID: state.SectionID,
			KeyStatus:    state.Status,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.commit(ctx, uow)

	return state, nil
}

// Finish validates the submitted values against the section's parameter
// specs and closes the state. Values are keyed by parameter name.
func (engine *Engine) Finish(
	ctx context.Context,
	actor Actor,
	stateID int64,
	values map[string]string,
) (*AcceptanceItemState, error) {
	var state *AcceptanceItemState
	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		item, def, current, err := engine.lockState(ctx, stateID)
		if err != nil {
			return err
		}

		if current.Status != StateStatusProcessing {
			return &InvalidTransitionError{StateID: current.ID, From: current.Status, Op: "finish"}
		}

		step, ok := def.StepBySection(current.SectionID)
		if !ok {
			return newNotFound("section in workflow "+def.ID, current.SectionID)
		}

		params, err := captureParameters(ctx, current.ID, step, values, engine.fileResolver)
		if err != nil {
			return err
		}

		if err := engine.pluginManager.ExecuteBeforeFinish(ctx, item, current, params); err != nil {
			return err
		}

		now := engine.now()
		actorID := actor.ID
		current.Status = StateStatusFinished
		current.FinishedBy = &actorID
		current.FinishedAt = &now
		current.Parameters = params
		current.UpdatedAt = now

		if err := engine.store.UpdateState(ctx, current); err != nil {
			return fmt.Errorf("update state: %w", err)
		}

		uow.record(EntityState, idKey(current.ID), ActivityUpdate, actor, map[string]any{
			KeyPreviousStatus: StateStatusProcessing,
			KeyStatus:         current.Status,
			KeySectionID:      current.SectionID,
			KeyParameters:     params,
		})

		state = current
		uow.after(func(ctx context.Context) {
			engine.pluginManager.ExecuteStateFinished(ctx, item, state)
		})

		if reportableAfter(def, step) {
			uow.after(func(ctx context.Context) {
				engine.pluginManager.ExecuteItemReportable(ctx, item)
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.commit(ctx, uow)

	return state, nil
}

// Reject closes the state and sends the item back to target. Rejecting to
// sample collection deactivates every sample link of the item.
func (engine *Engine) Reject(
	ctx context.Context,
	actor Actor,
	stateID int64,
	detail string,
	target ReworkTarget,
) (*AcceptanceItemState, error) {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return nil, fmt.Errorf("%w: rejection detail is required", ErrInvalidInput)
	}

	var state *AcceptanceItemState
	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		item, def, current, err := engine.lockState(ctx, stateID)
		if err != nil {
			return err
		}

		if current.Status != StateStatusProcessing {
			return &InvalidTransitionError{StateID: current.ID, From: current.Status, Op: "reject"}
		}

		step, ok := def.StepBySection(current.SectionID)
		if !ok {
			return newNotFound("section in workflow "+def.ID, current.SectionID)
		}

		if err := validateReworkTarget(def, step, current.ID, target); err != nil {
			return err
		}

		now := engine.now()
		actorID := actor.ID
		current.Status = StateStatusRejected
		current.FinishedBy = &actorID
		current.FinishedAt = &now
		current.RejectionDetail = &detail
		current.ReworkTarget = &target
		current.UpdatedAt = now

		if err := engine.store.UpdateState(ctx, current); err != nil {
			return fmt.Errorf("update state: %w", err)
		}

		uow.record(EntityState, idKey(current.ID), ActivityUpdate, actor, map[string]any{
			KeyPreviousStatus:  StateStatusProcessing,
			KeyStatus:          current.Status,
			KeySectionID:       current.SectionID,
			KeyRejectionDetail: detail,
			KeyReworkTarget:    target,
		})

		if target.IsExternal() {
			links, err := engine.store.DeactivateSampleLinks(ctx, item.ID, "", now)
			if err != nil {
				return fmt.Errorf("deactivate sample links: %w", err)
			}
			for _, link := range links {
				uow.record(EntitySampleLink, idKey(link.ID), ActivityUpdate, actor, map[string]any{
					KeyItemID:   item.ID,
					KeySampleID: link.SampleID,
					"active":    false,
					KeyReason:   "rework to sample collection",
				})
			}
		}

		state = current
		uow.after(func(ctx context.Context) {
			engine.pluginManager.ExecuteStateRejected(ctx, item, state)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.commit(ctx, uow)

	return state, nil
}

func (engine *Engine) lockState(
	ctx context.Context,
	stateID int64,
) (*AcceptanceItem, *WorkflowDefinition, *AcceptanceItemState, error) {
	state, err := engine.store.GetState(ctx, stateID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get state: %w", err)
	}

	item, def, err := engine.lockActiveItem(ctx, state.AcceptanceItemID)
	if err != nil {
		return nil, nil, nil, err
	}

	// re-read under the item lock
	state, err = engine.store.GetState(ctx, stateID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get state: %w", err)
	}

	return item, def, state, nil
}

func validateReworkTarget(def *WorkflowDefinition, step *SectionStep, stateID int64, target ReworkTarget) error {
	earlier := def.StepsBeforeOrder(step.Order)
	allowed := make([]string, 0, len(earlier))
	for _, s := range earlier {
		allowed = append(allowed, s.SectionID)
	}

	switch target.Kind {
	case ReworkKindSampleCollection:
		return nil
	case ReworkKindSection:
		if slices.Contains(allowed, target.SectionID) {
			return nil
		}
	}

	return &InvalidReworkTargetError{StateID: stateID, Target: target, Allowed: allowed}
}

// reportableAfter reports whether finishing step leaves only optional steps.
func reportableAfter(def *WorkflowDefinition, step *SectionStep) bool {
	for _, next := range def.StepsAfterOrder(step.Order) {
		if !next.Optional {
			return false
		}
	}

	return true
}

func (engine *Engine) hasActiveBarcode(ctx context.Context, itemID int64, barcode string) (bool, error) {
	links, err := engine.store.GetActiveSampleLinks(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("get sample links: %w", err)
	}

	return slices.ContainsFunc(links, func(link *SampleLink) bool { return link.Barcode == barcode }), nil
}

func linkedItemIDs(links []*SampleLink) []int64 {
	ids := make([]int64, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.AcceptanceItemID)
	}
	slices.Sort(ids)

	return slices.Compact(ids)
}
