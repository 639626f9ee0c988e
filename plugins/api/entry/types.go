package entry

type ScanRequest struct {
	Barcode string `json:"barcode"`
}
