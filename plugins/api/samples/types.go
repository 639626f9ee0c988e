package samples

import (
	"time"

	"github.com/rom8726/labflow"
)

type CollectRequest struct {
	BarcodeGroup   string     `json:"barcode_group"`
	Barcode        string     `json:"barcode"`
	SampleTypeID   string     `json:"sample_type_id"`
	PatientID      string     `json:"patient_id"`
	CollectionDate *time.Time `json:"collection_date,omitempty"`
	ItemIDs        []int64    `json:"item_ids"`
}

type ActivateRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

type CollectResponse struct {
	Sample *labflow.Sample       `json:"sample"`
	Links  []*labflow.SampleLink `json:"links"`
}
