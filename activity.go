package labflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ActivityLog receives one entry per committed mutation.
type ActivityLog interface {
	Record(ctx context.Context, entry *ActivityEntry) error
}

type storeActivityLog struct {
	store Store
}

func NewStoreActivityLog(store Store) ActivityLog {
	return &storeActivityLog{store: store}
}

func (l *storeActivityLog) Record(ctx context.Context, entry *ActivityEntry) error {
	if err := l.store.AppendActivity(ctx, entry); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}

	return nil
}

// unitOfWork collects side effects of a transaction. They run only after the
// transaction commits.
type unitOfWork struct {
	activities []*ActivityEntry
	hooks      []func(ctx context.Context)
}

func (u *unitOfWork) record(entityType, entityID string, action ActivityAction, actor Actor, payload map[string]any) {
	u.activities = append(u.activities, &ActivityEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actor.ID,
		Payload:    marshalPayload(payload),
	})
}

func (u *unitOfWork) after(hook func(ctx context.Context)) {
	u.hooks = append(u.hooks, hook)
}

// commit flushes the activity entries and fires plugin hooks. Neither can
// fail the already committed operation.
func (engine *Engine) commit(ctx context.Context, uow *unitOfWork) {
	now := engine.now()
	for _, entry := range uow.activities {
		entry.CreatedAt = now
		if err := engine.activityLog.Record(ctx, entry); err != nil {
			engine.log.Warn().Err(err).
				Str("entity_type", entry.EntityType).
				Str("entity_id", entry.EntityID).
				Str("action", string(entry.Action)).
				Msg("activity log write failed")
		}
	}

	for _, hook := range uow.hooks {
		hook(ctx)
	}
}

func marshalPayload(payload map[string]any) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}

	return data
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
