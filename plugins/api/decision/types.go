package decision

import (
	"github.com/rom8726/labflow"
)

type FinishRequest struct {
	Parameters map[string]string `json:"parameters"`
}

// RejectRequest carries the rework target. A missing or null target sends
// the item back to sample collection.
type RejectRequest struct {
	Detail string                `json:"detail"`
	Target *labflow.ReworkTarget `json:"target,omitempty"`
}

func (r RejectRequest) reworkTarget() labflow.ReworkTarget {
	if r.Target == nil {
		return labflow.ReworkToSampleCollection()
	}

	return *r.Target
}
