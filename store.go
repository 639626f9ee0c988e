package labflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*StoreImpl)(nil)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"

	samplesBarcodeKey = "samples_barcode_key"
)

type StoreImpl struct {
	db Tx
}

func NewStore(pool *pgxpool.Pool) *StoreImpl {
	return &StoreImpl{db: pool}
}

func (store *StoreImpl) SaveWorkflowDefinition(ctx context.Context, def *WorkflowDefinition) error {
	executor := store.getExecutor(ctx)

	const query = `
INSERT INTO labflow.workflow_definitions (id, name, method_id, steps, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, method_id = EXCLUDED.method_id, steps = EXCLUDED.steps
RETURNING created_at`

	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	err = executor.QueryRow(ctx, query,
		def.ID, def.Name, def.MethodID, stepsJSON, def.CreatedAt,
	).Scan(&def.CreatedAt)

	return translatePgError("save workflow definition", err)
}

const selectDefinition = `
SELECT id, name, method_id, steps, created_at
FROM labflow.workflow_definitions`

func (store *StoreImpl) GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowDefinition, error) {
	row := store.getExecutor(ctx).QueryRow(ctx, selectDefinition+` WHERE id = $1`, id)

	def, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newNotFound("workflow", id)
	}

	return def, err
}

func (store *StoreImpl) GetWorkflowDefinitionByMethod(ctx context.Context, methodID string) (*WorkflowDefinition, error) {
	row := store.getExecutor(ctx).QueryRow(ctx, selectDefinition+` WHERE method_id = $1`, methodID)

	def, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newNotFound("workflow for method", methodID)
	}

	return def, err
}

func (store *StoreImpl) GetWorkflowDefinitions(ctx context.Context) ([]*WorkflowDefinition, error) {
	rows, err := store.getExecutor(ctx).Query(ctx, selectDefinition+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

func (store *StoreImpl) CreateAcceptanceItem(ctx context.Context, item *AcceptanceItem) error {
	executor := store.getExecutor(ctx)

	const query = `
INSERT INTO labflow.acceptance_items (
	acceptance_id, method_id, test_id, patients, required_sample_types,
	price, discount, report_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`

	patientsJSON, typesJSON, err := marshalItemJSON(item)
	if err != nil {
		return err
	}

	err = executor.QueryRow(ctx, query,
		item.AcceptanceID, item.MethodID, item.TestID, patientsJSON, typesJSON,
		item.Price, item.Discount, item.ReportID, item.Status, item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)

	return translatePgError("create acceptance item", err)
}

const selectItem = `
SELECT id, acceptance_id, method_id, test_id, patients, required_sample_types,
	price, discount, report_id, status, created_at, updated_at
FROM labflow.acceptance_items
WHERE id = $1`

func (store *StoreImpl) GetAcceptanceItem(ctx context.Context, id int64) (*AcceptanceItem, error) {
	item, err := scanItem(store.getExecutor(ctx).QueryRow(ctx, selectItem, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newNotFound("acceptance item", id)
	}

	return item, err
}

func (store *StoreImpl) LockAcceptanceItem(ctx context.Context, id int64) (*AcceptanceItem, error) {
	item, err := scanItem(store.getExecutor(ctx).QueryRow(ctx, selectItem+` FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newNotFound("acceptance item", id)
	}

	return item, translatePgError("lock acceptance item", err)
}

func (store *StoreImpl) UpdateAcceptanceItem(ctx context.Context, item *AcceptanceItem) error {
	executor := store.getExecutor(ctx)

	const query = `
UPDATE labflow.acceptance_items
SET patients = $2, required_sample_types = $3, price = $4, discount = $5,
	report_id = $6, status = $7, updated_at = $8
WHERE id = $1`

	patientsJSON, typesJSON, err := marshalItemJSON(item)
	if err != nil {
		return err
	}

	tag, err := executor.Exec(ctx, query,
		item.ID, patientsJSON, typesJSON, item.Price, item.Discount,
		item.ReportID, item.Status, item.UpdatedAt,
	)
	if err != nil {
		return translatePgError("update acceptance item", err)
	}
	if tag.RowsAffected() == 0 {
		return newNotFound("acceptance item", item.ID)
	}

	return nil
}

func (store *StoreImpl) CreateSample(ctx context.Context, sample *Sample) error {
	executor := store.getExecutor(ctx)

	const query = `
INSERT INTO labflow.samples (barcode, sample_type_id, patient_id, collection_date, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	err := executor.QueryRow(ctx, query,
		sample.Barcode, sample.SampleTypeID, sample.PatientID,
		sample.CollectionDate, sample.Status, sample.CreatedAt,
	).Scan(&sample.ID)

	return translatePgError("create sample", err)
}

const selectSample = `
SELECT id, barcode, sample_type_id, patient_id, collection_date, status, created_at
FROM labflow.samples`

func (store *StoreImpl) GetSample(ctx context.Context, id int64) (*Sample, error) {
	sample, err := scanSample(store.getExecutor(ctx).QueryRow(ctx, selectSample+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newNotFound("sample", id)
	}

	return sample, err
}

func (store *StoreImpl) GetSampleByBarcode(ctx context.Context, barcode string) (*Sample, error) {
	sample, err := scanSample(store.getExecutor(ctx).QueryRow(ctx, selectSample+` WHERE barcode = $1`, barcode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newNotFound("sample", barcode)
	}

	return sample, err
}

func (store *StoreImpl) CreateSampleLink(ctx context.Context, link *SampleLink) error {
	executor := store.getExecutor(ctx)

	const query = `
INSERT INTO labflow.sample_links (acceptance_item_id, sample_id, sample_type_id, active, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, (SELECT barcode FROM labflow.samples WHERE id = $2)`

	err := executor.QueryRow(ctx, query,
		link.AcceptanceItemID, link.SampleID, link.SampleTypeID, link.Active, link.CreatedAt,
	).Scan(&link.ID, &link.Barcode)

	return translatePgError("create sample link", err)
}

func (store *StoreImpl) DeactivateSampleLinks(
	ctx context.Context,
	itemID int64,
	sampleTypeID string,
	at time.Time,
) ([]*SampleLink, error) {
	executor := store.getExecutor(ctx)

	const query = `
UPDATE labflow.sample_links l
SET active = FALSE, deactivated_at = $3
FROM labflow.samples s
WHERE l.sample_id = s.id
	AND l.acceptance_item_id = $1
	AND l.active
	AND ($2 = '' OR l.sample_type_id = $2)
RETURNING l.id, l.acceptance_item_id, l.sample_id, l.sample_type_id, s.barcode,
	l.active, l.created_at, l.deactivated_at`

	rows, err := executor.Query(ctx, query, itemID, sampleTypeID, at)
	if err != nil {
		return nil, translatePgError("deactivate sample links", err)
	}

	return collectLinks(rows)
}

const selectLinks = `
SELECT l.id, l.acceptance_item_id, l.sample_id, l.sample_type_id, s.barcode,
	l.active, l.created_at, l.deactivated_at
FROM labflow.sample_links l
JOIN labflow.samples s ON s.id = l.sample_id`

func (store *StoreImpl) GetActiveSampleLinks(ctx context.Context, itemID int64) ([]*SampleLink, error) {
	rows, err := store.getExecutor(ctx).Query(ctx,
		selectLinks+` WHERE l.acceptance_item_id = $1 AND l.active ORDER BY l.id`, itemID)
	if err != nil {
		return nil, err
	}

	return collectLinks(rows)
}

func (store *StoreImpl) GetActiveSampleLinksByBarcode(ctx context.Context, barcode string) ([]*SampleLink, error) {
	rows, err := store.getExecutor(ctx).Query(ctx,
		selectLinks+` WHERE s.barcode = $1 AND l.active ORDER BY l.acceptance_item_id`, barcode)
	if err != nil {
		return nil, err
	}

	return collectLinks(rows)
}

func (store *StoreImpl) CreateState(ctx context.Context, state *AcceptanceItemState) error {
	executor := store.getExecutor(ctx)

	const query = `
INSERT INTO labflow.acceptance_item_states (
	acceptance_item_id, workflow_id, section_id, step_order, status,
	started_by, finished_by, started_at, finished_at, parameters,
	rejection_detail, rework_target, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`

	paramsJSON, targetJSON, err := marshalStateJSON(state)
	if err != nil {
		return err
	}

	err = executor.QueryRow(ctx, query,
		state.AcceptanceItemID, state.WorkflowID, state.SectionID, state.Order, state.Status,
		state.StartedBy, state.FinishedBy, state.StartedAt, state.FinishedAt, paramsJSON,
		state.RejectionDetail, targetJSON, state.CreatedAt, state.UpdatedAt,
	).Scan(&state.ID)

	return translatePgError("create state", err)
}

func (store *StoreImpl) UpdateState(ctx context.Context, state *AcceptanceItemState) error {
	executor := store.getExecutor(ctx)

	const query = `
UPDATE labflow.acceptance_item_states
SET status = $2, started_by = $3, finished_by = $4, started_at = $5, finished_at = $6,
	parameters = $7, rejection_detail = $8, rework_target = $9, created_at = $10, updated_at = $11
WHERE id = $1`

	paramsJSON, targetJSON, err := marshalStateJSON(state)
	if err != nil {
		return err
	}

	tag, err := executor.Exec(ctx, query,
		state.ID, state.Status, state.StartedBy, state.FinishedBy, state.StartedAt, state.FinishedAt,
		paramsJSON, state.RejectionDetail, targetJSON, state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		return translatePgError("update state", err)
	}
	if tag.RowsAffected() == 0 {
		return newNotFound("state", state.ID)
	}

	return nil
}

const selectState = `
SELECT id, acceptance_item_id, workflow_id, section_id, step_order, status,
	started_by, finished_by, started_at, finished_at, parameters,
	rejection_detail, rework_target, created_at, updated_at
FROM labflow.acceptance_item_states`

func (store *StoreImpl) GetState(ctx context.Context, id int64) (*AcceptanceItemState, error) {
	state, err := scanState(store.getExecutor(ctx).QueryRow(ctx, selectState+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newNotFound("state", id)
	}

	return state, err
}

func (store *StoreImpl) GetStatesByItem(ctx context.Context, itemID int64) ([]*AcceptanceItemState, error) {
	rows, err := store.getExecutor(ctx).Query(ctx,
		selectState+` WHERE acceptance_item_id = $1 ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*AcceptanceItemState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	return states, rows.Err()
}

func (store *StoreImpl) DeleteState(ctx context.Context, id int64) error {
	tag, err := store.getExecutor(ctx).Exec(ctx,
		`DELETE FROM labflow.acceptance_item_states WHERE id = $1`, id)
	if err != nil {
		return translatePgError("delete state", err)
	}
	if tag.RowsAffected() == 0 {
		return newNotFound("state", id)
	}

	return nil
}

func (store *StoreImpl) AppendActivity(ctx context.Context, entry *ActivityEntry) error {
	const query = `
INSERT INTO labflow.activity_log (entity_type, entity_id, action, actor_id, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	var payload []byte
	if len(entry.Payload) > 0 {
		payload = entry.Payload
	}

	return store.getExecutor(ctx).QueryRow(ctx, query,
		entry.EntityType, entry.EntityID, entry.Action, entry.ActorID, payload, entry.CreatedAt,
	).Scan(&entry.ID)
}

func (store *StoreImpl) GetActivity(ctx context.Context, entityType, entityID string) ([]*ActivityEntry, error) {
	const query = `
SELECT id, entity_type, entity_id, action, actor_id, payload, created_at
FROM labflow.activity_log
WHERE entity_type = $1 AND entity_id = $2
ORDER BY id`

	rows, err := store.getExecutor(ctx).Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		var entry ActivityEntry
		var payload []byte
		if err := rows.Scan(
			&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action,
			&entry.ActorID, &payload, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Payload = payload
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (store *StoreImpl) getExecutor(ctx context.Context) Tx {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}

	return store.db
}

// translatePgError maps constraint and locking failures onto engine errors.
func translatePgError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == samplesBarcodeKey {
			return ErrDuplicateBarcode
		}

		return &ConcurrencyConflictError{Op: op, Err: err}
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return &ConcurrencyConflictError{Op: op, Err: err}
	default:
		return err
	}
}

func scanDefinition(row pgx.Row) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	var stepsJSON []byte

	if err := row.Scan(&def.ID, &def.Name, &def.MethodID, &stepsJSON, &def.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &def.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}

	return &def, nil
}

func scanItem(row pgx.Row) (*AcceptanceItem, error) {
	var item AcceptanceItem
	var patientsJSON, typesJSON []byte

	if err := row.Scan(
		&item.ID, &item.AcceptanceID, &item.MethodID, &item.TestID, &patientsJSON, &typesJSON,
		&item.Price, &item.Discount, &item.ReportID, &item.Status, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := unmarshalItemJSON(&item, patientsJSON, typesJSON); err != nil {
		return nil, err
	}

	return &item, nil
}

func scanSample(row pgx.Row) (*Sample, error) {
	var sample Sample

	err := row.Scan(
		&sample.ID, &sample.Barcode, &sample.SampleTypeID, &sample.PatientID,
		&sample.CollectionDate, &sample.Status, &sample.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &sample, nil
}

func collectLinks(rows pgx.Rows) ([]*SampleLink, error) {
	defer rows.Close()

	var links []*SampleLink
	for rows.Next() {
		var link SampleLink
		if err := rows.Scan(
			&link.ID, &link.AcceptanceItemID, &link.SampleID, &link.SampleTypeID, &link.Barcode,
			&link.Active, &link.CreatedAt, &link.DeactivatedAt,
		); err != nil {
			return nil, err
		}
		links = append(links, &link)
	}

	return links, rows.Err()
}

func scanState(row pgx.Row) (*AcceptanceItemState, error) {
	var state AcceptanceItemState
	var paramsJSON, targetJSON []byte

	if err := row.Scan(
		&state.ID, &state.AcceptanceItemID, &state.WorkflowID, &state.SectionID, &state.Order, &state.Status,
		&state.StartedBy, &state.FinishedBy, &state.StartedAt, &state.FinishedAt, &paramsJSON,
		&state.RejectionDetail, &targetJSON, &state.CreatedAt, &state.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := unmarshalStateJSON(&state, paramsJSON, targetJSON); err != nil {
		return nil, err
	}

	return &state, nil
}

func marshalItemJSON(item *AcceptanceItem) (patients, types []byte, err error) {
	patientList := item.Patients
	if patientList == nil {
		patientList = []ItemPatient{}
	}
	typeList := item.RequiredSampleTypes
	if typeList == nil {
		typeList = []string{}
	}

	if patients, err = json.Marshal(patientList); err != nil {
		return nil, nil, fmt.Errorf("marshal patients: %w", err)
	}
	if types, err = json.Marshal(typeList); err != nil {
		return nil, nil, fmt.Errorf("marshal sample types: %w", err)
	}

	return patients, types, nil
}

func unmarshalItemJSON(item *AcceptanceItem, patients, types []byte) error {
	if len(patients) > 0 {
		if err := json.Unmarshal(patients, &item.Patients); err != nil {
			return fmt.Errorf("unmarshal patients: %w", err)
		}
	}
	if len(types) > 0 {
		if err := json.Unmarshal(types, &item.RequiredSampleTypes); err != nil {
			return fmt.Errorf("unmarshal sample types: %w", err)
		}
	}

	return nil
}

func marshalStateJSON(state *AcceptanceItemState) (params, target []byte, err error) {
	paramList := state.Parameters
	if paramList == nil {
		paramList = []CapturedParameter{}
	}

	if params, err = json.Marshal(paramList); err != nil {
		return nil, nil, fmt.Errorf("marshal parameters: %w", err)
	}

	if state.ReworkTarget != nil {
		if target, err = json.Marshal(state.ReworkTarget); err != nil {
			return nil, nil, fmt.Errorf("marshal rework target: %w", err)
		}
	}

	return params, target, nil
}

func unmarshalStateJSON(state *AcceptanceItemState, params, target []byte) error {
	if len(params) > 0 {
		if err := json.Unmarshal(params, &state.Parameters); err != nil {
			return fmt.Errorf("unmarshal parameters: %w", err)
		}
	}

	if len(target) > 0 && string(target) != "null" {
		var rt ReworkTarget
		if err := json.Unmarshal(target, &rt); err != nil {
			return fmt.Errorf("unmarshal rework target: %w", err)
		}
		state.ReworkTarget = &rt
	}

	return nil
}
