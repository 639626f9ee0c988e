package labflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBarcodeTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	assert.Equal(t, int64(1_700_000_000), nextBarcodeTimestamp(now, 0))
	assert.Equal(t, int64(1_700_000_001), nextBarcodeTimestamp(now, 1_700_000_000))
	assert.Equal(t, int64(1_700_000_006), nextBarcodeTimestamp(now, 1_700_000_005))
}

func TestResolveOrCreateSample_GeneratesDistinctBarcodesInSameSecond(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine := newMemoryEngine(t, WithEngineClock(func() time.Time { return frozen }))

	req := SampleRequest{BarcodeGroup: "BL", SampleTypeID: "blood", PatientID: "p-1"}

	first, err := engine.ResolveOrCreateSample(ctx, tech, req)
	require.NoError(t, err)
	second, err := engine.ResolveOrCreateSample(ctx, tech, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Barcode, second.Barcode)
	assert.Equal(t, "BL1772355600", first.Barcode)
	assert.Equal(t, "BL1772355601", second.Barcode)
	assert.Equal(t, frozen, first.CollectionDate)
}

type collidingStore struct {
	*MemoryStore
	attempts int
}

func (s *collidingStore) CreateSample(context.Context, *Sample) error {
	s.attempts++

	return ErrDuplicateBarcode
}

func TestResolveOrCreateSample_GivesUpAfterRetries(t *testing.T) {
	store := &collidingStore{MemoryStore: NewMemoryStore()}
	engine := newMemoryEngine(t, WithEngineStore(store), WithEngineBarcodeAttempts(4))

	_, err := engine.ResolveOrCreateSample(context.Background(), tech, SampleRequest{
		BarcodeGroup: "BL", SampleTypeID: "blood", PatientID: "p-1",
	})

	var genErr *BarcodeGenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 4, genErr.Attempts)
	assert.Equal(t, 4, store.attempts)
	assert.Equal(t, KindBarcodeGeneration, KindOf(err))
}

func TestResolveOrCreateSample_Validation(t *testing.T) {
	engine := newMemoryEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SampleRequest
	}{
		{name: "no sample type", req: SampleRequest{BarcodeGroup: "BL", PatientID: "p-1"}},
		{name: "no patient", req: SampleRequest{BarcodeGroup: "BL", SampleTypeID: "blood"}},
		{name: "no group and no barcode", req: SampleRequest{SampleTypeID: "blood", PatientID: "p-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.ResolveOrCreateSample(ctx, tech, tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestResolveOrCreateSample_ReusesExistingBarcode(t *testing.T) {
	engine := newMemoryEngine(t)
	ctx := context.Background()

	req := SampleRequest{Barcode: "EXT-1", SampleTypeID: "blood", PatientID: "p-1"}
	first, err := engine.ResolveOrCreateSample(ctx, tech, req)
	require.NoError(t, err)
	second, err := engine.ResolveOrCreateSample(ctx, tech, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	activity, err := engine.GetActivity(ctx, EntitySample, idKey(first.ID))
	require.NoError(t, err)
	assert.Len(t, activity, 1)
}
