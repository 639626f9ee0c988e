package labflow

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tech  = Actor{ID: "tech-1"}
	admin = Actor{ID: "admin", CanAccessAll: true}
)

func dnaWorkflow(t *testing.T) *WorkflowDefinition {
	t.Helper()

	def, err := NewBuilder("dna", "m-dna", WithBuilderID("wf-dna")).
		Section("Extraction").
		Param("volume_ml", ParameterTypeNumber, Required()).
		Then("Sequencing").
		Param("result_file", ParameterTypeFile, Required()).
		Build()
	require.NoError(t, err)

	return def
}

func newMemoryEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()

	return NewEngine(nil, opts...)
}

func registerItem(t *testing.T, engine *Engine, methodID string) *AcceptanceItem {
	t.Helper()

	item := &AcceptanceItem{
		AcceptanceID: 100,
		MethodID:     methodID,
		TestID:       "test-" + methodID,
		Patients:     []ItemPatient{{PatientID: "p-1"}},
		Price:        5000,
	}
	require.NoError(t, engine.RegisterItem(context.Background(), tech, item))

	return item
}

func collectSample(t *testing.T, engine *Engine, barcode string, itemIDs ...int64) *Sample {
	t.Helper()
	ctx := context.Background()

	sample, err := engine.ResolveOrCreateSample(ctx, tech, SampleRequest{
		Barcode:      barcode,
		SampleTypeID: "blood",
		PatientID:    "p-1",
	})
	require.NoError(t, err)

	_, err = engine.ActivateForItems(ctx, tech, sample.ID, itemIDs)
	require.NoError(t, err)

	return sample
}

func currentSection(t *testing.T, engine *Engine, itemID int64) string {
	t.Helper()

	pos, err := engine.GetPosition(context.Background(), itemID)
	require.NoError(t, err)
	if pos.InProgress != nil {
		return pos.InProgress.SectionID
	}
	if pos.Step == nil {
		return ""
	}

	return pos.Step.SectionID
}

// runExtractionSequencingScenario walks an item through entry, finish,
// rework and re-entry. It is shared by every store backend.
func runExtractionSequencingScenario(t *testing.T, engine *Engine) {
	ctx := context.Background()

	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))
	item := registerItem(t, engine, "m-dna")
	collectSample(t, engine, "BC-0001", item.ID)

	s0, err := engine.EnterByBarcode(ctx, tech, "BC-0001", "Extraction")
	require.NoError(t, err)
	require.Len(t, s0, 1)
	assert.Equal(t, StateStatusProcessing, s0[0].Status)
	assert.Equal(t, "tech-1", *s0[0].StartedBy)

	again, err := engine.EnterByBarcode(ctx, tech, "BC-0001", "Extraction")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, s0[0].ID, again[0].ID)

	_, err = engine.Finish(ctx, tech, s0[0].ID, map[string]string{})
	var incomplete *IncompleteParametersError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"volume_ml"}, incomplete.Fields())

	finished, err := engine.Finish(ctx, tech, s0[0].ID, map[string]string{"volume_ml": "12.5"})
	require.NoError(t, err)
	assert.Equal(t, StateStatusFinished, finished.Status)
	require.Len(t, finished.Parameters, 1)
	assert.Equal(t, "12.5", *finished.Parameters[0].Value)
	assert.Equal(t, "Sequencing", currentSection(t, engine, item.ID))

	s1, err := engine.EnterByItem(ctx, tech, item.ID, "Sequencing")
	require.NoError(t, err)
	assert.NotEqual(t, s0[0].ID, s1.ID)

	rejected, err := engine.Reject(ctx, tech, s1.ID, "contaminated", ReworkToSection("Extraction"))
	require.NoError(t, err)
	assert.Equal(t, StateStatusRejected, rejected.Status)
	assert.Equal(t, "contaminated", *rejected.RejectionDetail)
	assert.Equal(t, "Extraction", currentSection(t, engine, item.ID))

	redo, err := engine.EnterByBarcode(ctx, tech, "BC-0001", "Extraction")
	require.NoError(t, err)
	require.Len(t, redo, 1)
	assert.NotEqual(t, s0[0].ID, redo[0].ID)
	assert.NotEqual(t, s1.ID, redo[0].ID)

	history, err := engine.GetHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, StateStatusFinished, history[0].Status)
	assert.Equal(t, StateStatusRejected, history[1].Status)
	assert.Equal(t, StateStatusProcessing, history[2].Status)

	activity, err := engine.GetActivity(ctx, EntityState, idKey(s1.ID))
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, ActivityCreate, activity[0].Action)
	assert.Equal(t, ActivityUpdate, activity[1].Action)
	assert.Equal(t, "tech-1", activity[1].ActorID)

	stats, err := engine.GetSectionStats(ctx)
	require.NoError(t, err)
	bySection := make(map[string]SectionStats)
	for _, s := range stats {
		bySection[s.SectionID] = s
	}
	assert.Equal(t, uint(1), bySection["Extraction"].Finished)
	assert.Equal(t, uint(1), bySection["Extraction"].Processing)
	assert.Equal(t, uint(1), bySection["Sequencing"].Rejected)
}

func TestEngine_ExtractionSequencingScenario(t *testing.T) {
	runExtractionSequencingScenario(t, newMemoryEngine(t))
}

func TestEngine_RegisterWorkflow(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)

	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	other := dnaWorkflow(t)
	other.ID = "wf-dna-2"
	err := engine.RegisterWorkflow(ctx, admin, other)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	defs, err := engine.GetWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 1)

	_, err = engine.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	step, err := engine.FindStepBySection(ctx, "wf-dna", "Sequencing")
	require.NoError(t, err)
	assert.Equal(t, 1, step.Order)

	err = engine.RegisterItem(ctx, tech, &AcceptanceItem{MethodID: "m-unknown"})
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestEngine_RegisterWorkflow_KeepsItsOwnCopy(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)

	def := &WorkflowDefinition{
		Name:     "unsorted",
		MethodID: "m-unsorted",
		Steps: []SectionStep{
			{Order: 1, SectionID: "Sequencing"},
			{Order: 0, SectionID: "Extraction"},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, def))
	require.NotEmpty(t, def.ID)
	assert.Equal(t, "Sequencing", def.Steps[0].SectionID)

	def.Steps[1].SectionID = "Tampered"

	got, err := engine.GetWorkflow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Extraction", "Sequencing"}, sectionIDs(got))

	got.Steps[0].SectionID = "Changed"

	again, err := engine.GetWorkflow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Extraction", "Sequencing"}, sectionIDs(again))
}

func sectionIDs(def *WorkflowDefinition) []string {
	ids := make([]string, 0, len(def.Steps))
	for _, step := range def.Steps {
		ids = append(ids, step.SectionID)
	}

	return ids
}

func TestEngine_EnterByBarcode_SkipsItemsOutsideWorkflow(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)

	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))
	histology, err := NewBuilder("histology", "m-hist").Section("Staining").Build()
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, histology))

	dna := registerItem(t, engine, "m-dna")
	hist := registerItem(t, engine, "m-hist")
	collectSample(t, engine, "BC-SHARED", dna.ID, hist.ID)

	states, err := engine.EnterByBarcode(ctx, tech, "BC-SHARED", "Extraction")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, dna.ID, states[0].AcceptanceItemID)

	states, err = engine.EnterByBarcode(ctx, tech, "BC-SHARED", "Staining")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, hist.ID, states[0].AcceptanceItemID)

	_, err = engine.EnterByBarcode(ctx, tech, "BC-SHARED", "Microscopy")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = engine.EnterByBarcode(ctx, tech, "BC-UNKNOWN", "Extraction")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestEngine_OutOfOrderEntry(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	item := registerItem(t, engine, "m-dna")

	_, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	var outOfOrder *OutOfOrderEntryError
	require.ErrorAs(t, err, &outOfOrder)
	assert.Equal(t, ReasonSampleNotCollected, outOfOrder.Reason)

	collectSample(t, engine, "BC-0002", item.ID)

	_, err = engine.EnterByItem(ctx, tech, item.ID, "Sequencing")
	require.ErrorAs(t, err, &outOfOrder)
	assert.Equal(t, ReasonWrongSection, outOfOrder.Reason)
	assert.Equal(t, []string{"Extraction"}, outOfOrder.Expected)

	state, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)

	_, err = engine.EnterByBarcode(ctx, tech, "BC-0002", "Sequencing")
	require.ErrorAs(t, err, &outOfOrder)
	assert.Equal(t, ReasonInProgress, outOfOrder.Reason)
	assert.Equal(t, KindOutOfOrderEntry, KindOf(err))

	history, err := engine.GetHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, state.ID, history[0].ID)

	_, err = engine.EnterByItem(ctx, tech, item.ID, "Staining")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestEngine_Queue(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	item := registerItem(t, engine, "m-dna")
	collectSample(t, engine, "BC-0003", item.ID)

	waiting, err := engine.Queue(ctx, tech, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StateStatusWaiting, waiting.Status)
	assert.Equal(t, "Extraction", waiting.SectionID)
	assert.Nil(t, waiting.StartedBy)

	same, err := engine.Queue(ctx, tech, item.ID)
	require.NoError(t, err)
	assert.Equal(t, waiting.ID, same.ID)

	entered, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)
	assert.Equal(t, waiting.ID, entered.ID)
	assert.Equal(t, StateStatusProcessing, entered.Status)

	inProgress, err := engine.Queue(ctx, tech, item.ID)
	require.NoError(t, err)
	assert.Equal(t, entered.ID, inProgress.ID)

	_, err = engine.Finish(ctx, tech, entered.ID, map[string]string{"volume_ml": "4"})
	require.NoError(t, err)

	next, err := engine.Queue(ctx, tech, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sequencing", next.SectionID)
}

func TestEngine_QueuedSectionSurvivesRework(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)

	def, err := NewBuilder("optional", "m-optional").
		Section("A").
		Then("B", WithStepOptional()).
		Then("C").
		Build()
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, def))

	item := registerItem(t, engine, "m-optional")
	collectSample(t, engine, "BC-0013", item.ID)

	first, err := engine.EnterByItem(ctx, tech, item.ID, "A")
	require.NoError(t, err)
	_, err = engine.Finish(ctx, tech, first.ID, nil)
	require.NoError(t, err)

	queued, err := engine.Queue(ctx, tech, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", queued.SectionID)

	skipped, err := engine.EnterByItem(ctx, tech, item.ID, "C")
	require.NoError(t, err)
	_, err = engine.Reject(ctx, tech, skipped.ID, "contaminated", ReworkToSection("A"))
	require.NoError(t, err)

	redo, err := engine.EnterByItem(ctx, tech, item.ID, "A")
	require.NoError(t, err)
	_, err = engine.Finish(ctx, tech, redo.ID, nil)
	require.NoError(t, err)

	entered, err := engine.EnterByItem(ctx, tech, item.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, queued.ID, entered.ID)
	assert.Equal(t, StateStatusProcessing, entered.Status)
	assert.False(t, entered.CreatedAt.Before(redo.CreatedAt))

	pos, err := engine.GetPosition(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, pos.InProgress)
	assert.Equal(t, entered.ID, pos.InProgress.ID)
	assert.False(t, pos.AllowsEntry("C"))

	_, err = engine.EnterByItem(ctx, tech, item.ID, "C")
	var outOfOrder *OutOfOrderEntryError
	require.ErrorAs(t, err, &outOfOrder)
	assert.Equal(t, ReasonInProgress, outOfOrder.Reason)
	assert.Equal(t, "B", outOfOrder.CurrentSection)
}

// sampleSwapStore replaces an item's sample right after the barcode lookup,
// as a concurrent ActivateForItems commit would.
type sampleSwapStore struct {
	Store
	swap func()
}

func (s *sampleSwapStore) GetActiveSampleLinksByBarcode(ctx context.Context, barcode string) ([]*SampleLink, error) {
	links, err := s.Store.GetActiveSampleLinksByBarcode(ctx, barcode)
	if s.swap != nil {
		swap := s.swap
		s.swap = nil
		swap()
	}

	return links, err
}

// runReplacedBarcodeScenario checks that a barcode replaced after the lookup
// no longer enters the item. It is shared by every store backend.
func runReplacedBarcodeScenario(t *testing.T, inner Store, newEngine func(Store) *Engine) {
	ctx := context.Background()
	swapping := &sampleSwapStore{Store: inner}
	engine := newEngine(swapping)

	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))
	item := registerItem(t, engine, "m-dna")
	collectSample(t, engine, "BC-OLD", item.ID)

	replacement, err := engine.ResolveOrCreateSample(ctx, tech, SampleRequest{
		Barcode:      "BC-NEW",
		SampleTypeID: "blood",
		PatientID:    "p-1",
	})
	require.NoError(t, err)

	swapping.swap = func() {
		bg := context.Background()
		now := time.Now().UTC()
		_, err := inner.DeactivateSampleLinks(bg, item.ID, "blood", now)
		require.NoError(t, err)
		require.NoError(t, inner.CreateSampleLink(bg, &SampleLink{
			AcceptanceItemID: item.ID,
			SampleID:         replacement.ID,
			SampleTypeID:     replacement.SampleTypeID,
			Barcode:          replacement.Barcode,
			Active:           true,
			CreatedAt:        now,
		}))
	}

	_, err = engine.EnterByBarcode(ctx, tech, "BC-OLD", "Extraction")
	require.ErrorIs(t, err, ErrEntityNotFound)

	history, err := engine.GetHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	entered, err := engine.EnterByBarcode(ctx, tech, "BC-NEW", "Extraction")
	require.NoError(t, err)
	require.Len(t, entered, 1)
	assert.Equal(t, item.ID, entered[0].AcceptanceItemID)
}

func TestEngine_EnterByBarcode_ReplacedSample(t *testing.T) {
	runReplacedBarcodeScenario(t, NewMemoryStore(), func(store Store) *Engine {
		return NewEngine(nil, WithEngineStore(store))
	})
}

func TestEngine_FinishValidation(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)

	def, err := NewBuilder("chem", "m-chem").
		Section("Analysis").
		Param("A", ParameterTypeNumber, Required()).
		Param("B", ParameterTypeDate, Required()).
		Build()
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, def))

	item := registerItem(t, engine, "m-chem")
	collectSample(t, engine, "BC-0004", item.ID)

	state, err := engine.EnterByItem(ctx, tech, item.ID, "Analysis")
	require.NoError(t, err)

	_, err = engine.Finish(ctx, tech, state.ID, map[string]string{"A": "1.5"})
	var incomplete *IncompleteParametersError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"B"}, incomplete.Fields())

	_, err = engine.Finish(ctx, tech, state.ID, map[string]string{"A": "x", "B": "2026-13-45"})
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"A", "B"}, incomplete.Fields())

	history, err := engine.GetHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StateStatusProcessing, history[0].Status)

	finished, err := engine.Finish(ctx, tech, state.ID, map[string]string{"A": "1.5", "B": "2026-02-01"})
	require.NoError(t, err)
	require.Len(t, finished.Parameters, 2)
	assert.Equal(t, "1.5", *finished.Parameters[0].Value)
	assert.Equal(t, "2026-02-01", *finished.Parameters[1].Value)
	assert.Equal(t, "tech-1", *finished.FinishedBy)

	_, err = engine.Finish(ctx, tech, state.ID, map[string]string{"A": "1.5", "B": "2026-02-01"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEngine_ReworkTargetRestriction(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)

	def, err := NewBuilder("five", "m-five").
		Section("S0").Then("S1").Then("S2").Then("S3").Then("S4").
		Build()
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, def))

	item := registerItem(t, engine, "m-five")
	collectSample(t, engine, "BC-0005", item.ID)

	var state *AcceptanceItemState
	for _, section := range []string{"S0", "S1", "S2", "S3"} {
		state, err = engine.EnterByItem(ctx, tech, item.ID, section)
		require.NoError(t, err)
		if section != "S3" {
			_, err = engine.Finish(ctx, tech, state.ID, nil)
			require.NoError(t, err)
		}
	}

	options, err := engine.GetReworkTargets(ctx, state.ID)
	require.NoError(t, err)
	require.Len(t, options, 4)
	assert.True(t, options[3].Target.IsExternal())
	assert.Equal(t, 1, *options[1].Order)

	_, err = engine.Reject(ctx, tech, state.ID, "bad run", ReworkToSection("S4"))
	var invalid *InvalidReworkTargetError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"S0", "S1", "S2"}, invalid.Allowed)

	_, err = engine.Reject(ctx, tech, state.ID, "bad run", ReworkToSection("S3"))
	assert.ErrorIs(t, err, ErrInvalidReworkTarget)

	_, err = engine.Reject(ctx, tech, state.ID, "  ", ReworkToSection("S1"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.Reject(ctx, tech, state.ID, "bad run", ReworkToSection("S1"))
	require.NoError(t, err)
	assert.Equal(t, "S1", currentSection(t, engine, item.ID))
}

func TestEngine_ReworkToSampleCollection(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	item := registerItem(t, engine, "m-dna")
	collectSample(t, engine, "BC-0006", item.ID)

	state, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)

	_, err = engine.Reject(ctx, tech, state.ID, "hemolysed", ReworkToSampleCollection())
	require.NoError(t, err)

	has, err := engine.HasActiveSample(ctx, item.ID, "")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	var outOfOrder *OutOfOrderEntryError
	require.ErrorAs(t, err, &outOfOrder)
	assert.Equal(t, ReasonSampleNotCollected, outOfOrder.Reason)

	_, err = engine.EnterByBarcode(ctx, tech, "BC-0006", "Extraction")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	collectSample(t, engine, "BC-0007", item.ID)

	has, err = engine.HasActiveSample(ctx, item.ID, "blood")
	require.NoError(t, err)
	assert.True(t, has)

	redo, err := engine.EnterByBarcode(ctx, tech, "BC-0007", "Extraction")
	require.NoError(t, err)
	require.Len(t, redo, 1)
	assert.NotEqual(t, state.ID, redo[0].ID)
}

func TestEngine_ActivateReplacesSameType(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	item := registerItem(t, engine, "m-dna")
	first := collectSample(t, engine, "BC-0008", item.ID)
	second := collectSample(t, engine, "BC-0009", item.ID)

	_, err := engine.EnterByBarcode(ctx, tech, first.Barcode, "Extraction")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	states, err := engine.EnterByBarcode(ctx, tech, second.Barcode, "Extraction")
	require.NoError(t, err)
	assert.Len(t, states, 1)

	links, err := engine.ActivateForItems(ctx, tech, second.ID, []int64{item.ID, item.ID})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, second.ID, links[0].SampleID)

	_, err = engine.ResolveOrCreateSample(ctx, tech, SampleRequest{
		Barcode: "BC-0009", SampleTypeID: "urine", PatientID: "p-1",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_RequiredSampleTypes(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	item := &AcceptanceItem{MethodID: "m-dna", RequiredSampleTypes: []string{"blood", "plasma"}}
	require.NoError(t, engine.RegisterItem(ctx, tech, item))

	collectSample(t, engine, "BC-0010", item.ID)

	_, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	assert.ErrorIs(t, err, ErrOutOfOrderEntry)

	urine, err := engine.ResolveOrCreateSample(ctx, tech, SampleRequest{
		Barcode: "BC-0011", SampleTypeID: "urine", PatientID: "p-1",
	})
	require.NoError(t, err)
	_, err = engine.ActivateForItems(ctx, tech, urine.ID, []int64{item.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	plasma, err := engine.ResolveOrCreateSample(ctx, tech, SampleRequest{
		Barcode: "BC-0012", SampleTypeID: "plasma", PatientID: "p-1",
	})
	require.NoError(t, err)
	_, err = engine.ActivateForItems(ctx, tech, plasma.ID, []int64{item.ID})
	require.NoError(t, err)

	_, err = engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	assert.NoError(t, err)
}

func TestEngine_CloseItem(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	cancelled := registerItem(t, engine, "m-dna")
	collectSample(t, engine, "BC-0013", cancelled.ID)

	require.NoError(t, engine.CancelItem(ctx, tech, cancelled.ID, "patient left"))

	_, err := engine.EnterByItem(ctx, tech, cancelled.ID, "Extraction")
	assert.ErrorIs(t, err, ErrItemClosed)

	_, err = engine.EnterByBarcode(ctx, tech, "BC-0013", "Extraction")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	err = engine.CancelItem(ctx, tech, cancelled.ID, "again")
	assert.ErrorIs(t, err, ErrItemClosed)

	reported := registerItem(t, engine, "m-dna")
	assert.ErrorIs(t, engine.MarkReported(ctx, tech, reported.ID, 0), ErrInvalidInput)
	require.NoError(t, engine.MarkReported(ctx, tech, reported.ID, 77))

	_, err = engine.Queue(ctx, tech, reported.ID)
	var closed *ItemClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, ItemStatusReported, closed.Status)

	history, err := engine.GetHistory(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_DeleteState(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	item := registerItem(t, engine, "m-dna")
	collectSample(t, engine, "BC-0014", item.ID)

	state, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)

	err = engine.DeleteState(ctx, tech, state.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, engine.DeleteState(ctx, admin, state.ID))

	pos, err := engine.GetPosition(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, pos.InProgress)
	assert.Equal(t, []string{"Extraction"}, pos.Enterable)

	err = engine.DeleteState(ctx, admin, state.ID)
	assert.ErrorIs(t, err, ErrEntityNotFound)

	activity, err := engine.GetActivity(ctx, EntityState, idKey(state.ID))
	require.NoError(t, err)
	require.NotEmpty(t, activity)
	assert.Equal(t, ActivityDelete, activity[len(activity)-1].Action)
	assert.Equal(t, "admin", activity[len(activity)-1].ActorID)
}

func TestEngine_SyncPatients(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))

	item := registerItem(t, engine, "m-dna")

	_, err := engine.SyncPatients(ctx, tech, item.ID, []ItemPatient{
		{PatientID: "p-1", Main: true},
		{PatientID: "p-2", Main: true},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	updated, err := engine.SyncPatients(ctx, tech, item.ID, []ItemPatient{
		{PatientID: "p-1"},
		{PatientID: "p-2", Main: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []ItemPatient{{PatientID: "p-2", Main: true}, {PatientID: "p-1"}}, updated.Patients)
}

type recordingPlugin struct {
	BasePlugin

	mu         sync.Mutex
	entered    []int64
	finished   []int64
	rejected   []int64
	collected  []string
	reportable []int64
	veto       error
}

func (p *recordingPlugin) BeforeFinish(context.Context, *AcceptanceItem, *AcceptanceItemState, []CapturedParameter) error {
	return p.veto
}

func (p *recordingPlugin) OnStateEntered(_ context.Context, _ *AcceptanceItem, state *AcceptanceItemState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entered = append(p.entered, state.ID)

	return nil
}

func (p *recordingPlugin) OnStateFinished(_ context.Context, _ *AcceptanceItem, state *AcceptanceItemState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, state.ID)

	return fmt.Errorf("hook errors are only logged")
}

func (p *recordingPlugin) OnStateRejected(_ context.Context, _ *AcceptanceItem, state *AcceptanceItemState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected = append(p.rejected, state.ID)

	return nil
}

func (p *recordingPlugin) OnSampleCollected(_ context.Context, _ *AcceptanceItem, sample *Sample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collected = append(p.collected, sample.Barcode)

	return nil
}

func (p *recordingPlugin) OnItemReportable(_ context.Context, item *AcceptanceItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportable = append(p.reportable, item.ID)

	return nil
}

func TestEngine_PluginHooks(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)
	plugin := &recordingPlugin{BasePlugin: NewBasePlugin("recorder", PriorityNormal)}
	engine.RegisterPlugin(plugin)

	def, err := NewBuilder("pcr", "m-pcr").
		Section("Extraction").
		Then("Amplification").
		Then("Archive").Optional().
		Build()
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, def))

	item := registerItem(t, engine, "m-pcr")
	collectSample(t, engine, "BC-0015", item.ID)
	assert.Equal(t, []string{"BC-0015"}, plugin.collected)

	s0, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)
	_, err = engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)
	assert.Equal(t, []int64{s0.ID}, plugin.entered)

	plugin.veto = &IncompleteParametersError{StateID: s0.ID, Invalid: map[string]string{"operator": "not certified"}}
	_, err = engine.Finish(ctx, tech, s0.ID, nil)
	assert.ErrorIs(t, err, ErrIncompleteParameters)
	assert.Empty(t, plugin.finished)

	plugin.veto = nil
	_, err = engine.Finish(ctx, tech, s0.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{s0.ID}, plugin.finished)
	assert.Empty(t, plugin.reportable)

	s1, err := engine.EnterByItem(ctx, tech, item.ID, "Amplification")
	require.NoError(t, err)
	_, err = engine.Reject(ctx, tech, s1.ID, "no product", ReworkToSection("Extraction"))
	require.NoError(t, err)
	assert.Equal(t, []int64{s1.ID}, plugin.rejected)

	s2, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)
	_, err = engine.Finish(ctx, tech, s2.ID, nil)
	require.NoError(t, err)

	s3, err := engine.EnterByItem(ctx, tech, item.ID, "Amplification")
	require.NoError(t, err)
	_, err = engine.Finish(ctx, tech, s3.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{item.ID}, plugin.reportable)

	pos, err := engine.GetPosition(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, pos.Reportable)
	assert.False(t, pos.Complete)
	assert.Equal(t, []string{"Archive"}, pos.Enterable)
}

// checkOrderingInvariant asserts that every finished state was preceded by
// a finished state at each earlier mandatory step.
func checkOrderingInvariant(t *testing.T, def *WorkflowDefinition, history []*AcceptanceItemState) {
	t.Helper()

	for i, state := range history {
		if state.Status != StateStatusFinished {
			continue
		}

		for _, earlier := range def.StepsBeforeOrder(state.Order) {
			if earlier.Optional {
				continue
			}

			found := false
			for _, prev := range history[:i] {
				if prev.SectionID == earlier.SectionID && prev.Status == StateStatusFinished {
					found = true

					break
				}
			}
			assert.Truef(t, found, "state %d at %s finished before %s", state.ID, state.SectionID, earlier.SectionID)
		}
	}
}

func TestEngine_OrderingInvariantUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	engine := newMemoryEngine(t)

	def, err := NewBuilder("random", "m-rand").
		Section("A").Param("v", ParameterTypeNumber, Required()).
		Then("B").
		Then("C").Optional().
		Then("D").
		Then("E").Optional().
		Build()
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(ctx, admin, def))

	rnd := rand.New(rand.NewSource(20260301))
	sections := []string{"A", "B", "C", "D", "E"}

	for run := 0; run < 5; run++ {
		item := registerItem(t, engine, "m-rand")
		barcodes := 0
		activate := func() {
			barcodes++
			collectSample(t, engine, fmt.Sprintf("RND-%d-%d", item.ID, barcodes), item.ID)
		}
		activate()

		for op := 0; op < 60; op++ {
			pos, err := engine.GetPosition(ctx, item.ID)
			require.NoError(t, err)

			if pos.InProgress == nil {
				section := sections[rnd.Intn(len(sections))]
				_, err := engine.EnterByItem(ctx, tech, item.ID, section)
				if err != nil {
					require.ErrorIs(t, err, ErrOutOfOrderEntry)

					var outOfOrder *OutOfOrderEntryError
					if assert.ErrorAs(t, err, &outOfOrder) && outOfOrder.Reason == ReasonSampleNotCollected {
						activate()
					}
				}

				continue
			}

			state := pos.InProgress
			switch rnd.Intn(4) {
			case 0:
				target := ReworkToSection(sections[rnd.Intn(len(sections))])
				if rnd.Intn(3) == 0 {
					target = ReworkToSampleCollection()
				}

				_, err := engine.Reject(ctx, tech, state.ID, "random rework", target)
				if err != nil {
					require.ErrorIs(t, err, ErrInvalidReworkTarget)
				}
			default:
				_, err := engine.Finish(ctx, tech, state.ID, map[string]string{"v": "1"})
				if err != nil {
					require.ErrorIs(t, err, ErrIncompleteParameters)
					_, err = engine.Finish(ctx, tech, state.ID, nil)
					require.NoError(t, err)
				}
			}

			history, err := engine.GetHistory(ctx, item.ID)
			require.NoError(t, err)
			checkOrderingInvariant(t, def, history)
		}
	}
}
