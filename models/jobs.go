package models

import "sync"

// Dedupe job states.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// DedupeResponse is the immediate response for POST /api/v1/collections/:name/dedupe.
type DedupeResponse struct {
	Success bool         `json:"success"`
	ID      string       `json:"id,omitempty"`
	Status  string       `json:"status,omitempty"`
	Total   int          `json:"total"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// IDPair is a near-duplicate pair of stored records, with A < B.
type IDPair struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Distance int    `json:"distance"`
}

// JobStatusResponse is the response for GET /api/v1/jobs/:id.
type JobStatusResponse struct {
	Success    bool         `json:"success"`
	ID         string       `json:"id"`
	Collection string       `json:"collection"`
	Status     string       `json:"status"`
	Total      int          `json:"total"`
	Pairs      []IDPair     `json:"pairs,omitempty"`
	Passes     []PassInfo   `json:"passes,omitempty"`
	Message    string       `json:"message,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// DedupeJob tracks a background dedupe of one collection.
type DedupeJob struct {
	mu sync.Mutex

	ID         string
	Collection string
	Status     string
	Total      int
	Pairs      []IDPair
	Passes     []PassInfo
	Message    string
	CreatedAt  int64 // unix timestamp
}

// Finish records the outcome of the job.
func (j *DedupeJob) Finish(pairs []IDPair, passes []PassInfo, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.Status = JobFailed
		j.Message = err.Error()
		return
	}
	j.Status = JobCompleted
	j.Pairs = pairs
	j.Passes = passes
}

// Snapshot returns the job as an API response.
func (j *DedupeJob) Snapshot() *JobStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &JobStatusResponse{
		Success:    true,
		ID:         j.ID,
		Collection: j.Collection,
		Status:     j.Status,
		Total:      j.Total,
		Pairs:      j.Pairs,
		Passes:     j.Passes,
		Message:    j.Message,
	}
}

// Done reports whether the job has left the processing state.
func (j *DedupeJob) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status != JobProcessing
}
