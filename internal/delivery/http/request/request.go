package request

// SubmitAuditRequest is the body of POST /api/audits.
type SubmitAuditRequest struct {
	URLs     []string `json:"urls"`
	Homepage string   `json:"homepage"`
	Level    string   `json:"level"`  // "A", "AA" or "AAA"; empty means AA
	Target   int      `json:"target"` // working pages to sample; 0 audits every URL
	StateID  string   `json:"state_id"`
}
