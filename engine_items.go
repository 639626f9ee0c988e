package labflow

import (
	"context"
	"fmt"
	"strings"
)

// RegisterItem stores a new acceptance item. The item's method must already
// be bound to a workflow.
func (engine *Engine) RegisterItem(ctx context.Context, actor Actor, item *AcceptanceItem) error {
	if item.MethodID == "" {
		return fmt.Errorf("%w: method id is required", ErrInvalidInput)
	}
	if item.Price < 0 || item.Discount < 0 || item.Discount > item.Price {
		return fmt.Errorf("%w: price %d and discount %d are inconsistent", ErrInvalidInput, item.Price, item.Discount)
	}

	patients, err := normalizePatients(item.Patients)
	if err != nil {
		return err
	}

	def, err := engine.workflowForItem(ctx, item)
	if err != nil {
		return err
	}

	now := engine.now()
	item.Patients = patients
	item.Status = ItemStatusActive
	item.ReportID = nil
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := engine.store.CreateAcceptanceItem(ctx, item); err != nil {
		return fmt.Errorf("create acceptance item: %w", err)
	}

	uow := &unitOfWork{}
	uow.record(EntityAcceptanceItem, idKey(item.ID), ActivityCreate, actor, map[string]any{
		KeyMethodID:   item.MethodID,
		KeyWorkflowID: def.ID,
		KeyPatients:   item.Patients,
	})
	engine.commit(ctx, uow)

	return nil
}

// SyncPatients replaces the item's patient list.
func (engine *Engine) SyncPatients(
	ctx context.Context,
	actor Actor,
	itemID int64,
	patients []ItemPatient,
) (*AcceptanceItem, error) {
	normalized, err := normalizePatients(patients)
	if err != nil {
		return nil, err
	}

	var item *AcceptanceItem
	uow := &unitOfWork{}

	err = engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		locked, _, err := engine.lockActiveItem(ctx, itemID)
		if err != nil {
			return err
		}

		item = locked
		item.Patients = normalized
		item.UpdatedAt = engine.now()
		if err := engine.store.UpdateAcceptanceItem(ctx, item); err != nil {
			return fmt.Errorf("update acceptance item: %w", err)
		}

		uow.record(EntityAcceptanceItem, idKey(item.ID), ActivityUpdate, actor, map[string]any{
			KeyPatients: normalized,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.commit(ctx, uow)

	return item, nil
}

// CancelItem closes the item. Its history stays readable.
func (engine *Engine) CancelItem(ctx context.Context, actor Actor, itemID int64, reason string) error {
	return engine.closeItem(ctx, actor, itemID, ItemStatusCancelled, map[string]any{
		KeyReason: strings.TrimSpace(reason),
	}, nil)
}

// MarkReported closes the item once its report is issued.
func (engine *Engine) MarkReported(ctx context.Context, actor Actor, itemID, reportID int64) error {
	if reportID <= 0 {
		return fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}

	return engine.closeItem(ctx, actor, itemID, ItemStatusReported, map[string]any{
		KeyReportID: reportID,
	}, &reportID)
}

func (engine *Engine) closeItem(
	ctx context.Context,
	actor Actor,
	itemID int64,
	status ItemStatus,
	payload map[string]any,
	reportID *int64,
) error {
	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		item, err := engine.store.LockAcceptanceItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("lock acceptance item: %w", err)
		}
		if item.Status != ItemStatusActive {
			return &ItemClosedError{ItemID: item.ID, Status: item.Status}
		}

		payload[KeyPreviousStatus] = item.Status
		payload[KeyStatus] = status

		item.Status = status
		if reportID != nil {
			item.ReportID = reportID
		}
		item.UpdatedAt = engine.now()

		if err := engine.store.UpdateAcceptanceItem(ctx, item); err != nil {
			return fmt.Errorf("update acceptance item: %w", err)
		}

		uow.record(EntityAcceptanceItem, idKey(item.ID), ActivityUpdate, actor, payload)

		return nil
	})
	if err != nil {
		return err
	}

	engine.commit(ctx, uow)

	return nil
}

// DeleteState is an administrative correction and needs CanAccessAll.
func (engine *Engine) DeleteState(ctx context.Context, actor Actor, stateID int64) error {
	if !actor.CanAccessAll {
		return fmt.Errorf("%w: deleting states requires full access", ErrPermissionDenied)
	}

	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		state, err := engine.store.GetState(ctx, stateID)
		if err != nil {
			return fmt.Errorf("get state: %w", err)
		}

		if _, err := engine.store.LockAcceptanceItem(ctx, state.AcceptanceItemID); err != nil {
			return fmt.Errorf("lock acceptance item: %w", err)
		}

		if err := engine.store.DeleteState(ctx, stateID); err != nil {
			return fmt.Errorf("delete state: %w", err)
		}

		uow.record(EntityState, idKey(state.ID), ActivityDelete, actor, map[string]any{
			KeyItemID:    state.AcceptanceItemID,
			KeySectionID: state.SectionID,
			KeyStatus:    state.Status,
		})

		return nil
	})
	if err != nil {
		return err
	}

	engine.commit(ctx, uow)

	return nil
}

// normalizePatients enforces a single main patient, placed first. When none
// is flagged the first patient becomes main.
func normalizePatients(patients []ItemPatient) ([]ItemPatient, error) {
	if len(patients) == 0 {
		return []ItemPatient{}, nil
	}

	seen := make(map[string]struct{}, len(patients))
	mainIdx := -1
	for i, p := range patients {
		if strings.TrimSpace(p.PatientID) == "" {
			return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
		}
		if _, dup := seen[p.PatientID]; dup {
			return nil, fmt.Errorf("%w: patient %q listed twice", ErrInvalidInput, p.PatientID)
		}
		seen[p.PatientID] = struct{}{}

		if p.Main {
			if mainIdx >= 0 {
				return nil, fmt.Errorf("%w: more than one main patient", ErrInvalidInput)
			}
			mainIdx = i
		}
	}

	if mainIdx < 0 {
		mainIdx = 0
	}

	res := make([]ItemPatient, 0, len(patients))
	res = append(res, ItemPatient{PatientID: patients[mainIdx].PatientID, Main: true})
	for i, p := range patients {
		if i != mainIdx {
			res = append(res, ItemPatient{PatientID: p.PatientID})
		}
	}

	return res, nil
}
