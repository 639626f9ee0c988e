package metrics

import (
	"time"
)

type MetricsCollector interface {
	RecordStateEntered(workflowID, sectionID string)
	RecordStateFinished(workflowID, sectionID string, duration time.Duration)
	RecordStateRejected(workflowID, sectionID, target string, duration time.Duration)
	RecordSampleCollected(sampleTypeID string)
	RecordItemReportable(workflowID string)
}
