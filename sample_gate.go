package labflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// nextBarcodeTimestamp never returns a value at or below prev, so retries
// inside the same clock second still move forward.
func nextBarcodeTimestamp(now time.Time, prev int64) int64 {
	ts := now.Unix()
	if ts <= prev {
		ts = prev + 1
	}

	return ts
}

// ResolveOrCreateSample returns the sample carrying req.Barcode, creating it
// if needed. Without a barcode a new one is generated from the barcode group
// abbreviation and the clock, retrying on collision.
func (engine *Engine) ResolveOrCreateSample(ctx context.Context, actor Actor, req SampleRequest) (*Sample, error) {
	if strings.TrimSpace(req.SampleTypeID) == "" {
		return nil, fmt.Errorf("%w: sample type is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, fmt.Errorf("%w: patient is required", ErrInvalidInput)
	}

	if barcode := strings.TrimSpace(req.Barcode); barcode != "" {
		return engine.resolveSample(ctx, actor, req, barcode)
	}

	group := strings.TrimSpace(req.BarcodeGroup)
	if group == "" {
		return nil, fmt.Errorf("%w: barcode group is required to generate a barcode", ErrInvalidInput)
	}

	var (
		prev int64
		last string
	)
	for attempt := 0; attempt < engine.barcodeAttempts; attempt++ {
		ts := nextBarcodeTimestamp(engine.now(), prev)
		prev = ts
		last = group + strconv.FormatInt(ts, 10)

		sample, err := engine.createSample(ctx, actor, req, last)
		if err == nil {
			return sample, nil
		}
		if !errors.Is(err, ErrDuplicateBarcode) {
			return nil, err
		}

		engine.log.Debug().
			Str("barcode", last).
			Int("attempt", attempt+1).
			Msg("barcode collision, retrying")
	}

	return nil, &BarcodeGenerationError{Group: group, Attempts: engine.barcodeAttempts, Last: last}
}

func (engine *Engine) resolveSample(ctx context.Context, actor Actor, req SampleRequest, barcode string) (*Sample, error) {
	sample, err := engine.store.GetSampleByBarcode(ctx, barcode)
	switch {
	case err == nil:
		if sample.SampleTypeID != req.SampleTypeID {
			return nil, fmt.Errorf("%w: barcode %q belongs to a %q sample, not %q",
				ErrInvalidInput, barcode, sample.SampleTypeID, req.SampleTypeID)
		}

		return sample, nil
	case !errors.Is(err, ErrEntityNotFound):
		return nil, fmt.Errorf("get sample by barcode: %w", err)
	}

	sample, err = engine.createSample(ctx, actor, req, barcode)
	if errors.Is(err, ErrDuplicateBarcode) {
		return nil, &ConcurrencyConflictError{Op: "create sample", Err: err}
	}

	return sample, err
}

// createSample runs in its own transaction so that a unique violation does
// not poison a surrounding one.
func (engine *Engine) createSample(ctx context.Context, actor Actor, req SampleRequest, barcode string) (*Sample, error) {
	now := engine.now()
	sample := &Sample{
		Barcode:        barcode,
		SampleTypeID:   req.SampleTypeID,
		PatientID:      req.PatientID,
		CollectionDate: now,
		Status:         SampleStatusCollected,
		CreatedAt:      now,
	}
	if req.CollectionDate != nil {
		sample.CollectionDate = req.CollectionDate.UTC()
	}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		return engine.store.CreateSample(ctx, sample)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateBarcode) {
			return nil, err
		}

		return nil, fmt.Errorf("create sample: %w", err)
	}

	uow := &unitOfWork{}
	uow.record(EntitySample, idKey(sample.ID), ActivityCreate, actor, map[string]any{
		KeyBarcode:      sample.Barcode,
		KeySampleTypeID: sample.SampleTypeID,
		"patient_id":    sample.PatientID,
	})
	engine.commit(ctx, uow)

	return sample, nil
}

// ActivateForItems links the sample to each item as its active sample of
// that type. Previous active links of the same type are deactivated.
func (engine *Engine) ActivateForItems(
	ctx context.Context,
	actor Actor,
	sampleID int64,
	itemIDs []int64,
) ([]*SampleLink, error) {
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}

	ids := slices.Clone(itemIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var (
		sample *Sample
		links  []*SampleLink
	)
	uow := &unitOfWork{}

	err := engine.txManager.ReadCommitted(ctx, func(ctx context.Context) error {
		var err error
		sample, err = engine.store.GetSample(ctx, sampleID)
		if err != nil {
			return fmt.Errorf("get sample: %w", err)
		}

		items := make([]*AcceptanceItem, 0, len(ids))
		for _, itemID := range ids {
			item, _, err := engine.lockActiveItem(ctx, itemID)
			if err != nil {
				return err
			}
			if len(item.RequiredSampleTypes) > 0 && !slices.Contains(item.RequiredSampleTypes, sample.SampleTypeID) {
				return fmt.Errorf("%w: item %d does not take %q samples",
					ErrInvalidInput, item.ID, sample.SampleTypeID)
			}
			items = append(items, item)
		}

		now := engine.now()
		for _, item := range items {
			active, err := engine.store.GetActiveSampleLinks(ctx, item.ID)
			if err != nil {
				return fmt.Errorf("get sample links: %w", err)
			}
			if link := findLinkForSample(active, sample.ID); link != nil {
				links = append(links, link)

				continue
			}

			deactivated, err := engine.store.DeactivateSampleLinks(ctx, item.ID, sample.SampleTypeID, now)
			if err != nil {
				return fmt.Errorf("deactivate sample links: %w", err)
			}
			for _, old := range deactivated {
				uow.record(EntitySampleLink, idKey(old.ID), ActivityUpdate, actor, map[string]any{
					KeyItemID:   item.ID,
					KeySampleID: old.SampleID,
					"active":    false,
					KeyReason:   "replaced by sample " + sample.Barcode,
				})
			}

			link := &SampleLink{
				AcceptanceItemID: item.ID,
				SampleID:         sample.ID,
				SampleTypeID:     sample.SampleTypeID,
				Barcode:          sample.Barcode,
				Active:           true,
				CreatedAt:        now,
			}
			if err := engine.store.CreateSampleLink(ctx, link); err != nil {
				return fmt.Errorf("create sample link: %w", err)
			}
			links = append(links, link)

			uow.record(EntitySampleLink, idKey(link.ID), ActivityCreate, actor, map[string]any{
				KeyItemID:   item.ID,
				KeySampleID: sample.ID,
				KeyBarcode:  sample.Barcode,
			})

			collected := item
			uow.after(func(ctx context.Context) {
				engine.pluginManager.ExecuteSampleCollected(ctx, collected, sample)
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.commit(ctx, uow)

	return links, nil
}

// HasActiveSample reports whether the item has an active link of the type.
// An empty sampleTypeID matches any type.
func (engine *Engine) HasActiveSample(ctx context.Context, itemID int64, sampleTypeID string) (bool, error) {
	links, err := engine.store.GetActiveSampleLinks(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("get sample links: %w", err)
	}

	for _, link := range links {
		if sampleTypeID == "" || link.SampleTypeID == sampleTypeID {
			return true, nil
		}
	}

	return false, nil
}

// checkSampleGate blocks entry until every required sample type has an
// active link. Items without declared types need any active sample.
func (engine *Engine) checkSampleGate(ctx context.Context, item *AcceptanceItem, sectionID string) error {
	links, err := engine.store.GetActiveSampleLinks(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("get sample links: %w", err)
	}

	if sampleGateOpen(item, links) {
		return nil
	}

	return &OutOfOrderEntryError{ItemID: item.ID, SectionID: sectionID, Reason: ReasonSampleNotCollected}
}

func sampleGateOpen(item *AcceptanceItem, links []*SampleLink) bool {
	if len(item.RequiredSampleTypes) == 0 {
		return len(links) > 0
	}

	for _, required := range item.RequiredSampleTypes {
		if !slices.ContainsFunc(links, func(link *SampleLink) bool { return link.SampleTypeID == required }) {
			return false
		}
	}

	return true
}

func findLinkForSample(links []*SampleLink, sampleID int64) *SampleLink {
	for _, link := range links {
		if link.SampleID == sampleID {
			return link
		}
	}

	return nil
}
