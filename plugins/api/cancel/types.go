package cancel

type CancelRequest struct {
	Reason string `json:"reason"`
}

type ReportedRequest struct {
	ReportID int64 `json:"report_id"`
}
