package labflow

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu           sync.RWMutex
	definitions  map[string]*WorkflowDefinition
	items        map[int64]*AcceptanceItem
	samples      map[int64]*Sample
	barcodes     map[string]int64
	links        map[int64]*SampleLink
	linksByItem  map[int64][]int64
	states       map[int64]*AcceptanceItemState
	statesByItem map[int64][]int64
	activity     []*ActivityEntry
	nextItemID   int64
	nextSampleID int64
	nextLinkID   int64
	nextStateID  int64
	nextEntryID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions:  make(map[string]*WorkflowDefinition),
		items:        make(map[int64]*AcceptanceItem),
		samples:      make(map[int64]*Sample),
		barcodes:     make(map[string]int64),
		links:        make(map[int64]*SampleLink),
		linksByItem:  make(map[int64][]int64),
		states:       make(map[int64]*AcceptanceItemState),
		statesByItem: make(map[int64][]int64),
		activity:     make([]*ActivityEntry, 0),
		nextItemID:   1,
		nextSampleID: 1,
		nextLinkID:   1,
		nextStateID:  1,
		nextEntryID:  1,
	}
}

func (s *MemoryStore) SaveWorkflowDefinition(_ context.Context, def *WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.definitions {
		if existing.MethodID == def.MethodID && existing.ID != def.ID {
			return fmt.Errorf("%w: method %q is bound to workflow %q",
				ErrInvalidDefinition, def.MethodID, existing.ID)
		}
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	if prev, ok := s.definitions[def.ID]; ok {
		def.CreatedAt = prev.CreatedAt
	}
	s.definitions[def.ID] = cloneDefinition(def)

	return nil
}

func (s *MemoryStore) GetWorkflowDefinition(_ context.Context, id string) (*WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return nil, newNotFound("workflow", id)
	}

	return cloneDefinition(def), nil
}

func (s *MemoryStore) GetWorkflowDefinitionByMethod(_ context.Context, methodID string) (*WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, def := range s.definitions {
		if def.MethodID == methodID {
			return cloneDefinition(def), nil
		}
	}

	return nil, newNotFound("workflow for method", methodID)
}

func (s *MemoryStore) GetWorkflowDefinitions(_ context.Context) ([]*WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*WorkflowDefinition, 0, len(s.definitions))
	for _, def := range s.definitions {
		res = append(res, cloneDefinition(def))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res, nil
}

func (s *MemoryStore) CreateAcceptanceItem(_ context.Context, item *AcceptanceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.nextItemID
	s.nextItemID++
	s.items[item.ID] = cloneItem(item)

	return nil
}

func (s *MemoryStore) GetAcceptanceItem(_ context.Context, id int64) (*AcceptanceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, newNotFound("acceptance item", id)
	}

	return cloneItem(item), nil
}

// LockAcceptanceItem relies on MemoryTxManager serializing transactions.
func (s *MemoryStore) LockAcceptanceItem(ctx context.Context, id int64) (*AcceptanceItem, error) {
	return s.GetAcceptanceItem(ctx, id)
}

func (s *MemoryStore) UpdateAcceptanceItem(_ context.Context, item *AcceptanceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; !ok {
		return newNotFound("acceptance item", item.ID)
	}
	s.items[item.ID] = cloneItem(item)

	return nil
}

func (s *MemoryStore) CreateSample(_ context.Context, sample *Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.barcodes[sample.Barcode]; taken {
		return ErrDuplicateBarcode
	}

	sample.ID = s.nextSampleID
	s.nextSampleID++
	copied := *sample
	s.samples[sample.ID] = &copied
	s.barcodes[sample.Barcode] = sample.ID

	return nil
}

func (s *MemoryStore) GetSample(_ context.Context, id int64) (*Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.samples[id]
	if !ok {
		return nil, newNotFound("sample", id)
	}
	copied := *sample

	return &copied, nil
}

func (s *MemoryStore) GetSampleByBarcode(_ context.Context, barcode string) (*Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.barcodes[barcode]
	if !ok {
		return nil, newNotFound("sample", barcode)
	}
	copied := *s.samples[id]

	return &copied, nil
}

func (s *MemoryStore) CreateSampleLink(_ context.Context, link *SampleLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample, ok := s.samples[link.SampleID]
	if !ok {
		return newNotFound("sample", link.SampleID)
	}

	link.ID = s.nextLinkID
	s.nextLinkID++
	link.Barcode = sample.Barcode
	copied := *link
	s.links[link.ID] = &copied
	s.linksByItem[link.AcceptanceItemID] = append(s.linksByItem[link.AcceptanceItemID], link.ID)

	return nil
}

func (s *MemoryStore) DeactivateSampleLinks(
	_ context.Context,
	itemID int64,
	sampleTypeID string,
	at time.Time,
) ([]*SampleLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*SampleLink
	for _, id := range s.linksByItem[itemID] {
		link := s.links[id]
		if !link.Active || (sampleTypeID != "" && link.SampleTypeID != sampleTypeID) {
			continue
		}
		link.Active = false
		deactivatedAt := at
		link.DeactivatedAt = &deactivatedAt
		copied := *link
		res = append(res, &copied)
	}

	return res, nil
}

func (s *MemoryStore) GetActiveSampleLinks(_ context.Context, itemID int64) ([]*SampleLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*SampleLink
	for _, id := range s.linksByItem[itemID] {
		if link := s.links[id]; link.Active {
			copied := *link
			res = append(res, &copied)
		}
	}

	return res, nil
}

func (s *MemoryStore) GetActiveSampleLinksByBarcode(_ context.Context, barcode string) ([]*SampleLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sampleID, ok := s.barcodes[barcode]
	if !ok {
		return nil, nil
	}

	var res []*SampleLink
	for _, link := range s.links {
		if link.Active && link.SampleID == sampleID {
			copied := *link
			res = append(res, &copied)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AcceptanceItemID < res[j].AcceptanceItemID })

	return res, nil
}

func (s *MemoryStore) CreateState(_ context.Context, state *AcceptanceItemState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Status.IsCurrent() {
		for _, id := range s.statesByItem[state.AcceptanceItemID] {
			other := s.states[id]
			if other.SectionID == state.SectionID && other.Status.IsCurrent() {
				return &ConcurrencyConflictError{Op: "create state"}
			}
		}
	}

	state.ID = s.nextStateID
	s.nextStateID++
	s.states[state.ID] = cloneState(state)
	s.statesByItem[state.AcceptanceItemID] = append(s.statesByItem[state.AcceptanceItemID], state.ID)

	return nil
}

func (s *MemoryStore) UpdateState(_ context.Context, state *AcceptanceItemState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[state.ID]; !ok {
		return newNotFound("state", state.ID)
	}
	s.states[state.ID] = cloneState(state)

	return nil
}

func (s *MemoryStore) GetState(_ context.Context, id int64) (*AcceptanceItemState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[id]
	if !ok {
		return nil, newNotFound("state", id)
	}

	return cloneState(state), nil
}

func (s *MemoryStore) GetStatesByItem(_ context.Context, itemID int64) ([]*AcceptanceItemState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.statesByItem[itemID]
	res := make([]*AcceptanceItemState, 0, len(ids))
	for _, id := range ids {
		res = append(res, cloneState(s.states[id]))
	}

	return res, nil
}

func (s *MemoryStore) DeleteState(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[id]
	if !ok {
		return newNotFound("state", id)
	}
	delete(s.states, id)
	s.statesByItem[state.AcceptanceItemID] = slices.DeleteFunc(
		s.statesByItem[state.AcceptanceItemID],
		func(other int64) bool { return other == id },
	)

	return nil
}

func (s *MemoryStore) AppendActivity(_ context.Context, entry *ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextEntryID
	s.nextEntryID++
	copied := *entry
	s.activity = append(s.activity, &copied)

	return nil
}

func (s *MemoryStore) GetActivity(_ context.Context, entityType, entityID string) ([]*ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*ActivityEntry
	for _, entry := range s.activity {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			copied := *entry
			res = append(res, &copied)
		}
	}

	return res, nil
}

func (s *MemoryStore) GetSectionStats(_ context.Context) ([]SectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySection := make(map[string]*SectionStats)
	for _, state := range s.states {
		stats, ok := bySection[state.SectionID]
		if !ok {
			stats = &SectionStats{SectionID: state.SectionID}
			bySection[state.SectionID] = stats
		}
		switch state.Status {
		case StateStatusWaiting:
			stats.Waiting++
		case StateStatusProcessing:
			stats.Processing++
		case StateStatusFinished:
			stats.Finished++
		case StateStatusRejected:
			stats.Rejected++
		}
	}

	res := make([]SectionStats, 0, len(bySection))
	for _, id := range sortedKeys(bySection) {
		res = append(res, *bySection[id])
	}

	return res, nil
}

func cloneItem(item *AcceptanceItem) *AcceptanceItem {
	copied := *item
	copied.Patients = slices.Clone(item.Patients)
	copied.RequiredSampleTypes = slices.Clone(item.RequiredSampleTypes)

	return &copied
}

func cloneState(state *AcceptanceItemState) *AcceptanceItemState {
	copied := *state
	copied.Parameters = slices.Clone(state.Parameters)

	return &copied
}
