package labflow

import (
	"context"
)

type Monitor interface {
	GetSectionStats(ctx context.Context) ([]SectionStats, error)
}
