package labflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Ensure interface compliance
var (
	_ Store     = (*SQLiteStore)(nil)
	_ TxManager = (*SQLiteTxManager)(nil)
)

// SQLiteStore is a single-node Store for development and tests. Item locks
// are provided by SQLiteTxManager serializing transactions.
type SQLiteStore struct {
	db *sql.DB
}

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlRow interface {
	Scan(dest ...any) error
}

// NewSQLiteInMemoryStore creates an in-memory SQLite database and initializes schema.
func NewSQLiteInMemoryStore() (*SQLiteStore, error) {
	return NewSQLiteStore(":memory:")
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	_, _ = db.Exec("PRAGMA journal_mode=WAL;")
	_, _ = db.Exec("PRAGMA foreign_keys=ON;")
	_, _ = db.Exec("PRAGMA busy_timeout=5000;")
	// single connection keeps :memory: consistent
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunSQLiteMigrations(context.Background(), db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) getExecutor(ctx context.Context) sqlExecutor {
	if tx := sqlTxFromContext(ctx); tx != nil {
		return tx
	}

	return s.db
}

// Definitions
func (s *SQLiteStore) SaveWorkflowDefinition(ctx context.Context, def *WorkflowDefinition) error {
	stepsJSON, err := marshalSteps(def.Steps)
	if err != nil {
		return err
	}

	q := `INSERT INTO workflow_definitions (id, name, method_id, steps, created_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, method_id=excluded.method_id, steps=excluded.steps`
	_, err = s.getExecutor(ctx).ExecContext(ctx, q, def.ID, def.Name, def.MethodID, stepsJSON, def.CreatedAt)

	return translateSQLiteError("save workflow definition", err)
}

const sqliteSelectDefinition = `SELECT id, name, method_id, steps, created_at FROM workflow_definitions`

func (s *SQLiteStore) GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowDefinition, error) {
	def, err := scanSQLiteDefinition(s.getExecutor(ctx).QueryRowContext(ctx, sqliteSelectDefinition+` WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newNotFound("workflow", id)
	}

	return def, err
}

func (s *SQLiteStore) GetWorkflowDefinitionByMethod(ctx context.Context, methodID string) (*WorkflowDefinition, error) {
	def, err := scanSQLiteDefinition(
		s.getExecutor(ctx).QueryRowContext(ctx, sqliteSelectDefinition+` WHERE method_id=?`, methodID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newNotFound("workflow for method", methodID)
	}

	return def, err
}

func (s *SQLiteStore) GetWorkflowDefinitions(ctx context.Context) ([]*WorkflowDefinition, error) {
	rows, err := s.getExecutor(ctx).QueryContext(ctx, sqliteSelectDefinition+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*WorkflowDefinition
	for rows.Next() {
		def, err := scanSQLiteDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// Items
func (s *SQLiteStore) CreateAcceptanceItem(ctx context.Context, item *AcceptanceItem) error {
	patientsJSON, typesJSON, err := marshalItemJSON(item)
	if err != nil {
		return err
	}

	q := `INSERT INTO acceptance_items (
		acceptance_id, method_id, test_id, patients, required_sample_types,
		price, discount, report_id, status, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.getExecutor(ctx).ExecContext(ctx, q,
		item.AcceptanceID, item.MethodID, item.TestID, string(patientsJSON), string(typesJSON),
		item.Price, item.Discount, item.ReportID, item.Status, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return translateSQLiteError("create acceptance item", err)
	}
	item.ID, err = res.LastInsertId()

	return err
}

func (s *SQLiteStore) GetAcceptanceItem(ctx context.Context, id int64) (*AcceptanceItem, error) {
	q := `SELECT id, acceptance_id, method_id, test_id, patients, required_sample_types,
		price, discount, report_id, status, created_at, updated_at
		FROM acceptance_items WHERE id=?`

	var item AcceptanceItem
	var patientsJSON, typesJSON []byte
	err := s.getExecutor(ctx).QueryRowContext(ctx, q, id).Scan(
		&item.ID, &item.AcceptanceID, &item.MethodID, &item.TestID, &patientsJSON, &typesJSON,
		&item.Price, &item.Discount, &item.ReportID, &item.Status, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newNotFound("acceptance item", id)
		}

		return nil, err
	}

	if err := unmarshalItemJSON(&item, patientsJSON, typesJSON); err != nil {
		return nil, err
	}

	return &item, nil
}

// LockAcceptanceItem is a plain read: SQLite serializes writers and
// SQLiteTxManager serializes transactions.
func (s *SQLiteStore) LockAcceptanceItem(ctx context.Context, id int64) (*AcceptanceItem, error) {
	return s.GetAcceptanceItem(ctx, id)
}

func (s *SQLiteStore) UpdateAcceptanceItem(ctx context.Context, item *AcceptanceItem) error {
	patientsJSON, typesJSON, err := marshalItemJSON(item)
	if err != nil {
		return err
	}

	q := `UPDATE acceptance_items SET patients=?, required_sample_types=?, price=?, discount=?,
		report_id=?, status=?, updated_at=? WHERE id=?`
	res, err := s.getExecutor(ctx).ExecContext(ctx, q,
		string(patientsJSON), string(typesJSON), item.Price, item.Discount,
		item.ReportID, item.Status, item.UpdatedAt, item.ID,
	)
	if err != nil {
		return translateSQLiteError("update acceptance item", err)
	}

	return requireAffected(res, "acceptance item", item.ID)
}

// Samples
func (s *SQLiteStore) CreateSample(ctx context.Context, sample *Sample) error {
	q := `INSERT INTO samples (barcode, sample_type_id, patient_id, collection_date, status, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`
	res, err := s.getExecutor(ctx).ExecContext(ctx, q,
		sample.Barcode, sample.SampleTypeID, sample.PatientID,
		sample.CollectionDate, sample.Status, sample.CreatedAt,
	)
	if err != nil {
		return translateSQLiteError("create sample", err)
	}
	sample.ID, err = res.LastInsertId()

	return err
}

const sqliteSelectSample = `SELECT id, barcode, sample_type_id, patient_id, collection_date, status, created_at FROM samples`

func (s *SQLiteStore) GetSample(ctx context.Context, id int64) (*Sample, error) {
	sample, err := scanSQLiteSample(s.getExecutor(ctx).QueryRowContext(ctx, sqliteSelectSample+` WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newNotFound("sample", id)
	}

	return sample, err
}

func (s *SQLiteStore) GetSampleByBarcode(ctx context.Context, barcode string) (*Sample, error) {
	sample, err := scanSQLiteSample(
		s.getExecutor(ctx).QueryRowContext(ctx, sqliteSelectSample+` WHERE barcode=?`, barcode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newNotFound("sample", barcode)
	}

	return sample, err
}

func (s *SQLiteStore) CreateSampleLink(ctx context.Context, link *SampleLink) error {
	executor := s.getExecutor(ctx)

	if err := executor.QueryRowContext(ctx,
		`SELECT barcode FROM samples WHERE id=?`, link.SampleID,
	).Scan(&link.Barcode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newNotFound("sample", link.SampleID)
		}

		return err
	}

	q := `INSERT INTO sample_links (acceptance_item_id, sample_id, sample_type_id, active, created_at)
		VALUES(?, ?, ?, ?, ?)`
	res, err := executor.ExecContext(ctx, q,
		link.AcceptanceItemID, link.SampleID, link.SampleTypeID, link.Active, link.CreatedAt)
	if err != nil {
		return translateSQLiteError("create sample link", err)
	}
	link.ID, err = res.LastInsertId()

	return err
}

const sqliteSelectLinks = `SELECT l.id, l.acceptance_item_id, l.sample_id, l.sample_type_id, s.barcode,
	l.active, l.created_at, l.deactivated_at
	FROM sample_links l JOIN samples s ON s.id = l.sample_id`

func (s *SQLiteStore) DeactivateSampleLinks(
	ctx context.Context,
	itemID int64,
	sampleTypeID string,
	at time.Time,
) ([]*SampleLink, error) {
	executor := s.getExecutor(ctx)

	rows, err := executor.QueryContext(ctx,
		sqliteSelectLinks+` WHERE l.acceptance_item_id=? AND l.active=1 AND (?='' OR l.sample_type_id=?)`,
		itemID, sampleTypeID, sampleTypeID)
	if err != nil {
		return nil, err
	}
	links, err := collectSQLiteLinks(rows)
	if err != nil {
		return nil, err
	}

	for _, link := range links {
		if _, err := executor.ExecContext(ctx,
			`UPDATE sample_links SET active=0, deactivated_at=? WHERE id=?`, at, link.ID,
		); err != nil {
			return nil, translateSQLiteError("deactivate sample links", err)
		}
		deactivatedAt := at
		link.Active = false
		link.DeactivatedAt = &deactivatedAt
	}

	return links, nil
}

func (s *SQLiteStore) GetActiveSampleLinks(ctx context.Context, itemID int64) ([]*SampleLink, error) {
	rows, err := s.getExecutor(ctx).QueryContext(ctx,
		sqliteSelectLinks+` WHERE l.acceptance_item_id=? AND l.active=1 ORDER BY l.id`, itemID)
	if err != nil {
		return nil, err
	}

	return collectSQLiteLinks(rows)
}

func (s *SQLiteStore) GetActiveSampleLinksByBarcode(ctx context.Context, barcode string) ([]*SampleLink, error) {
	rows, err := s.getExecutor(ctx).QueryContext(ctx,
		sqliteSelectLinks+` WHERE s.barcode=? AND l.active=1 ORDER BY l.acceptance_item_id`, barcode)
	if err != nil {
		return nil, err
	}

	return collectSQLiteLinks(rows)
}

// States
func (s *SQLiteStore) CreateState(ctx context.Context, state *AcceptanceItemState) error {
	paramsJSON, targetJSON, err := marshalStateJSON(state)
	if err != nil {
		return err
	}

	q := `INSERT INTO acceptance_item_states (
		acceptance_item_id, workflow_id, section_id, step_order, status,
		started_by, finished_by, started_at, finished_at, parameters,
		rejection_detail, rework_target, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.getExecutor(ctx).ExecContext(ctx, q,
		state.AcceptanceItemID, state.WorkflowID, state.SectionID, state.Order, state.Status,
		state.StartedBy, state.FinishedBy, state.StartedAt, state.FinishedAt, string(paramsJSON),
		state.RejectionDetail, nullableJSON(targetJSON), state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		return translateSQLiteError("create state", err)
	}
	state.ID, err = res.LastInsertId()

	return err
}

func (s *SQLiteStore) UpdateState(ctx context.Context, state *AcceptanceItemState) error {
	paramsJSON, targetJSON, err := marshalStateJSON(state)
	if err != nil {
		return err
	}

	q := `UPDATE acceptance_item_states SET status=?, started_by=?, finished_by=?, started_at=?,
		finished_at=?, parameters=?, rejection_detail=?, rework_target=?, created_at=?, updated_at=? WHERE id=?`
	res, err := s.getExecutor(ctx).ExecContext(ctx, q,
		state.Status, state.StartedBy, state.FinishedBy, state.StartedAt, state.FinishedAt,
		string(paramsJSON), state.RejectionDetail, nullableJSON(targetJSON), state.CreatedAt, state.UpdatedAt, state.ID,
	)
	if err != nil {
		return translateSQLiteError("update state", err)
	}

	return requireAffected(res, "state", state.ID)
}

const sqliteSelectState = `SELECT id, acceptance_item_id, workflow_id, section_id, step_order, status,
	started_by, finished_by, started_at, finished_at, parameters,
	rejection_detail, rework_target, created_at, updated_at
	FROM acceptance_item_states`

func (s *SQLiteStore) GetState(ctx context.Context, id int64) (*AcceptanceItemState, error) {
	state, err := scanSQLiteState(s.getExecutor(ctx).QueryRowContext(ctx, sqliteSelectState+` WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newNotFound("state", id)
	}

	return state, err
}

func (s *SQLiteStore) GetStatesByItem(ctx context.Context, itemID int64) ([]*AcceptanceItemState, error) {
	rows, err := s.getExecutor(ctx).QueryContext(ctx,
		sqliteSelectState+` WHERE acceptance_item_id=? ORDER BY id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*AcceptanceItemState
	for rows.Next() {
		state, err := scanSQLiteState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	return states, rows.Err()
}

func (s *SQLiteStore) DeleteState(ctx context.Context, id int64) error {
	res, err := s.getExecutor(ctx).ExecContext(ctx, `DELETE FROM acceptance_item_states WHERE id=?`, id)
	if err != nil {
		return err
	}

	return requireAffected(res, "state", id)
}

// Activity
func (s *SQLiteStore) AppendActivity(ctx context.Context, entry *ActivityEntry) error {
	var payload any
	if len(entry.Payload) > 0 {
		payload = string(entry.Payload)
	}

	q := `INSERT INTO activity_log (entity_type, entity_id, action, actor_id, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`
	res, err := s.getExecutor(ctx).ExecContext(ctx, q,
		entry.EntityType, entry.EntityID, entry.Action, entry.ActorID, payload, entry.CreatedAt)
	if err != nil {
		return err
	}
	entry.ID, err = res.LastInsertId()

	return err
}

func (s *SQLiteStore) GetActivity(ctx context.Context, entityType, entityID string) ([]*ActivityEntry, error) {
	q := `SELECT id, entity_type, entity_id, action, actor_id, payload, created_at
		FROM activity_log WHERE entity_type=? AND entity_id=? ORDER BY id`
	rows, err := s.getExecutor(ctx).QueryContext(ctx, q, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		var entry ActivityEntry
		var payload sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action,
			&entry.ActorID, &payload, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if payload.Valid {
			entry.Payload = []byte(payload.String)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (s *SQLiteStore) GetSectionStats(ctx context.Context) ([]SectionStats, error) {
	q := `SELECT section_id,
		SUM(CASE WHEN status='waiting' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='processing' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='finished' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status='rejected' THEN 1 ELSE 0 END)
		FROM acceptance_item_states GROUP BY section_id ORDER BY section_id`
	rows, err := s.getExecutor(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SectionStats
	for rows.Next() {
		var st SectionStats
		if err := rows.Scan(&st.SectionID, &st.Waiting, &st.Processing, &st.Finished, &st.Rejected); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// SQLiteTxManager runs one transaction at a time on the store's database.
type SQLiteTxManager struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteTxManager(store *SQLiteStore) *SQLiteTxManager {
	return &SQLiteTxManager{db: store.db}
}

func (m *SQLiteTxManager) ReadCommitted(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, fn)
}

func (m *SQLiteTxManager) RepeatableRead(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, fn)
}

func (m *SQLiteTxManager) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if sqlTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, sqliteTxKey{}, tx)); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func translateSQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	if strings.Contains(msg, "samples.barcode") {
		return ErrDuplicateBarcode
	}

	return &ConcurrencyConflictError{Op: op, Err: err}
}

func requireAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return newNotFound(entity, id)
	}

	return nil
}

func nullableJSON(data []byte) any {
	if data == nil {
		return nil
	}

	return string(data)
}

func marshalSteps(steps []SectionStep) (string, error) {
	data, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("marshal steps: %w", err)
	}

	return string(data), nil
}

func scanSQLiteDefinition(row sqlRow) (*WorkflowDefinition, error) {
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

func scanSQLiteSample(row sqlRow) (*Sample, error) {
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

func collectSQLiteLinks(rows *sql.Rows) ([]*SampleLink, error) {
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

func scanSQLiteState(row sqlRow) (*AcceptanceItemState, error) {
	var state AcceptanceItemState
	var paramsJSON []byte
	var targetJSON sql.NullString

	if err := row.Scan(
		&state.ID, &state.AcceptanceItemID, &state.WorkflowID, &state.SectionID, &state.Order, &state.Status,
		&state.StartedBy, &state.FinishedBy, &state.StartedAt, &state.FinishedAt, &paramsJSON,
		&state.RejectionDetail, &targetJSON, &state.CreatedAt, &state.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var target []byte
	if targetJSON.Valid {
		target = []byte(targetJSON.String)
	}

	if err := unmarshalStateJSON(&state, paramsJSON, target); err != nil {
		return nil, err
	}

	return &state, nil
}
