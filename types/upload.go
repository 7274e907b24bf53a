package types

// UploadTask is one file plus its destination metadata awaiting transmission.
// It is immutable once enqueued.
type UploadTask struct {
	ID        string            `json:"id"`
	ProductID int64             `json:"productId"`
	File      FileInfo          `json:"file"`
	Category  Category          `json:"category"`
	SectionID string            `json:"sectionId"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// UploadResult is the terminal outcome of exactly one UploadTask.
type UploadResult struct {
	Task     UploadTask `json:"task"`
	Success  bool       `json:"success"`
	ImageID  int64      `json:"imageId,omitempty"`
	ImageURL string     `json:"imageUrl,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// UploadResponse is the JSON body of the upload endpoint.
type UploadResponse struct {
	Success   bool   `json:"success"`
	ImageID   int64  `json:"image_id,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ImageType string `json:"image_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DeleteResponse is the JSON body of the delete endpoint.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ValidateResponse is the JSON body of the validation endpoint.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// UploadBatchSummary counts the results of one drain cycle.
type UploadBatchSummary struct {
	Total   int            `json:"total"`
	Success int            `json:"success"`
	Failed  int            `json:"failed"`
	Results []UploadResult `json:"results"`
}

// Summarize builds a batch summary from a drain cycle's results.
func Summarize(results []UploadResult) UploadBatchSummary {
	summary := UploadBatchSummary{
		Total:   len(results),
		Results: results,
	}
	for _, r := range results {
		if r.Success {
			summary.Success++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// SubmitResponse is the JSON body of a plain form submission.
type SubmitResponse struct {
	Success            bool     `json:"success"`
	ProductID          int64    `json:"product_id,omitempty"`
	SubmissionComplete bool     `json:"submission_complete"`
	Stored             int      `json:"stored"`
	Errors             []string `json:"errors,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// CSRFResponse is the JSON body of the token endpoint.
type CSRFResponse struct {
	Token string `json:"token"`
}
