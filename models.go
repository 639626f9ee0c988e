package labflow

import (
	"encoding/json"
	"time"
)

type StateStatus string

const (
	StateStatusWaiting    StateStatus = "waiting"
	StateStatusProcessing StateStatus = "processing"
	StateStatusFinished   StateStatus = "finished"
	StateStatusRejected   StateStatus = "rejected"
)

// IsCurrent reports whether a state still occupies its section.
func (s StateStatus) IsCurrent() bool {
	return s == StateStatusWaiting || s == StateStatusProcessing
}

type ItemStatus string

const (
	ItemStatusActive    ItemStatus = "active"
	ItemStatusReported  ItemStatus = "reported"
	ItemStatusCancelled ItemStatus = "cancelled"
)

type SampleStatus string

const (
	SampleStatusCollected SampleStatus = "collected"
)

type ParameterType string

const (
	ParameterTypeText    ParameterType = "text"
	ParameterTypeDate    ParameterType = "date"
	ParameterTypeTime    ParameterType = "time"
	ParameterTypeNumber  ParameterType = "number"
	ParameterTypeOptions ParameterType = "options"
	ParameterTypeFile    ParameterType = "file"
)

type ActivityAction string

const (
	ActivityCreate ActivityAction = "CREATE"
	ActivityUpdate ActivityAction = "UPDATE"
	ActivityDelete ActivityAction = "DELETE"
)

type ReworkKind string

const (
	ReworkKindSection          ReworkKind = "section"
	ReworkKindSampleCollection ReworkKind = "sample_collection"
)

// Actor is the capability object passed into every engine call.
type Actor struct {
	ID           string `json:"id"`
	CanAccessAll bool   `json:"can_access_all"`
}

type ParameterSpec struct {
	Name     string        `json:"name"`
	Type     ParameterType `json:"type"`
	Required bool          `json:"required"`
	Options  []string      `json:"options,omitempty"`
}

type SectionStep struct {
	Order      int             `json:"order"`
	SectionID  string          `json:"section_id"`
	Optional   bool            `json:"optional"`
	Parameters []ParameterSpec `json:"parameters"`
}

type WorkflowDefinition struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	MethodID  string        `json:"method_id"`
	Steps     []SectionStep `json:"steps"`
	CreatedAt time.Time     `json:"created_at"`
}

type ItemPatient struct {
	PatientID string `json:"patient_id"`
	Main      bool   `json:"main"`
}

type AcceptanceItem struct {
	ID                  int64         `json:"id"`
	AcceptanceID        int64         `json:"acceptance_id"`
	MethodID            string        `json:"method_id"`
	TestID              string        `json:"test_id"`
	Patients            []ItemPatient `json:"patients"`
	RequiredSampleTypes []string      `json:"required_sample_types"`
	Price               int64         `json:"price"`
	Discount            int64         `json:"discount"`
	ReportID            *int64        `json:"report_id"`
	Status              ItemStatus    `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

type Sample struct {
	ID             int64        `json:"id"`
	Barcode        string       `json:"barcode"`
	SampleTypeID   string       `json:"sample_type_id"`
	PatientID      string       `json:"patient_id"`
	CollectionDate time.Time    `json:"collection_date"`
	Status         SampleStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// SampleLink is the item/sample pivot row. Deactivated rows are kept.
type SampleLink struct {
	ID               int64      `json:"id"`
	AcceptanceItemID int64      `json:"acceptance_item_id"`
	SampleID         int64      `json:"sample_id"`
	SampleTypeID     string     `json:"sample_type_id"`
	Barcode          string     `json:"barcode"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	DeactivatedAt    *time.Time `json:"deactivated_at"`
}

// ReworkTarget is where a rejected item goes next: an earlier section of its
// workflow or the external sample collection stage.
type ReworkTarget struct {
	Kind      ReworkKind `json:"kind"`
	SectionID string     `json:"section_id,omitempty"`
}

func ReworkToSection(sectionID string) ReworkTarget {
	return ReworkTarget{Kind: ReworkKindSection, SectionID: sectionID}
}

func ReworkToSampleCollection() ReworkTarget {
	return ReworkTarget{Kind: ReworkKindSampleCollection}
}

func (t ReworkTarget) IsExternal() bool {
	return t.Kind == ReworkKindSampleCollection
}

func (t ReworkTarget) String() string {
	if t.IsExternal() {
		return string(ReworkKindSampleCollection)
	}

	return string(t.Kind) + ":" + t.SectionID
}

type CapturedParameter struct {
	Name  string        `json:"name"`
	Type  ParameterType `json:"type"`
	Value *string       `json:"value"`
}

type AcceptanceItemState struct {
	ID               int64               `json:"id"`
	AcceptanceItemID int64               `json:"acceptance_item_id"`
	WorkflowID       string              `json:"workflow_id"`
	SectionID        string              `json:"section_id"`
	Order            int                 `json:"order"`
	Status           StateStatus         `json:"status"`
	StartedBy        *string             `json:"started_by"`
	FinishedBy       *string             `json:"finished_by"`
	StartedAt        *time.Time          `json:"started_at"`
	FinishedAt       *time.Time          `json:"finished_at"`
	Parameters       []CapturedParameter `json:"parameters"`
	RejectionDetail  *string             `json:"rejection_detail"`
	ReworkTarget     *ReworkTarget       `json:"rework_target"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type ActivityEntry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     ActivityAction  `json:"action"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Position is the derived place of an item inside its workflow.
type Position struct {
	ItemID     int64                `json:"item_id"`
	WorkflowID string               `json:"workflow_id"`
	InProgress *AcceptanceItemState `json:"in_progress,omitempty"`
	Step       *SectionStep         `json:"step,omitempty"`
	Waiting    *AcceptanceItemState `json:"waiting,omitempty"`
	Enterable  []string             `json:"enterable"`
	Finished   []string             `json:"finished"`
	Complete   bool                 `json:"complete"`
	Reportable bool                 `json:"reportable"`
}

// ReworkOption is one selectable destination for a rejection.
type ReworkOption struct {
	Target ReworkTarget `json:"target"`
	Order  *int         `json:"order,omitempty"`
}

type SampleRequest struct {
	BarcodeGroup   string     `json:"barcode_group"`
	Barcode        string     `json:"barcode,omitempty"`
	SampleTypeID   string     `json:"sample_type_id"`
	PatientID      string     `json:"patient_id"`
	CollectionDate *time.Time `json:"collection_date,omitempty"`
}

type SectionStats struct {
	SectionID  string `json:"section_id"`
	Waiting    uint   `json:"waiting"`
	Processing uint   `json:"processing"`
	Finished   uint   `json:"finished"`
	Rejected   uint   `json:"rejected"`
}
