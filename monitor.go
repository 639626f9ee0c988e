package labflow

import (
	"context"
)

// GetSectionStats returns state counts per section from the section_stats view.
func (store *StoreImpl) GetSectionStats(ctx context.Context) ([]SectionStats, error) {
	const query = `
SELECT
	section_id,
	waiting,
	processing,
	finished,
	rejected
FROM labflow.section_stats`

	rows, err := store.getExecutor(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SectionStats
	for rows.Next() {
		var s SectionStats
		var waiting, processing, finished, rejected int64

		err := rows.Scan(
			&s.SectionID,
			&waiting,
			&processing,
			&finished,
			&rejected,
		)
		if err != nil {
			return nil, err
		}

		s.Waiting = uint(waiting)
		s.Processing = uint(processing)
		s.Finished = uint(finished)
		s.Rejected = uint(rejected)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}
