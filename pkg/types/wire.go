package types

// Wire contracts for the browser-facing upload endpoints. The browser
// client and the gateway both compile against these shapes; keep field
// names stable.

type UploadInitRequest struct {
	CaseID         string `json:"caseId"`
	ConversationID string `json:"conversationId,omitempty"`
}

type UploadInitResponse struct {
	OK       bool   `json:"ok"`
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
	PartSize int64  `json:"partSize"`
}

type UploadURLsRequest struct {
	UploadID    string  `json:"uploadId"`
	Key         string  `json:"key"`
	PartNumbers []int32 `json:"partNumbers"`
}

type UploadURLsResponse struct {
	OK   bool             `json:"ok"`
	URLs map[int32]string `json:"urls"`
}

type UploadPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

type UploadCompleteRequest struct {
	UploadID       string       `json:"uploadId"`
	Key            string       `json:"key"`
	Parts          []UploadPart `json:"parts"`
	CaseID         string       `json:"caseId"`
	ConversationID string       `json:"conversationId,omitempty"`
}

type UploadCompleteResponse struct {
	OK           bool   `json:"ok"`
	SimulationID string `json:"simulationId"`
}
