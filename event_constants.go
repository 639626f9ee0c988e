package labflow

const (
	// Activity entity types
	EntityWorkflow       = "workflow_definition"
	EntityAcceptanceItem = "acceptance_item"
	EntitySample         = "sample"
	EntitySampleLink     = "sample_link"
	EntityState          = "acceptance_item_state"

	// Activity payload keys
	KeyWorkflowID      = "workflow_id"
	KeyMethodID        = "method_id"
	KeySectionID       = "section_id"
	KeyItemID          = "acceptance_item_id"
	KeySampleID        = "sample_id"
	KeySampleTypeID    = "sample_type_id"
	KeyBarcode         = "barcode"
	KeyStatus          = "status"
	KeyPreviousStatus  = "previous_status"
	KeyParameters      = "parameters"
	KeyRejectionDetail = "rejection_detail"
	KeyReworkTarget    = "rework_target"
	KeyReason          = "reason"
	KeyReportID        = "report_id"
	KeyPatients        = "patients"
	KeyOrder           = "order"
)
