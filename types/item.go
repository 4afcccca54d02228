package types

// ItemState is the lifecycle state of one upload item.
type ItemState string

const (
	StatePending   ItemState = "pending"
	StateUploading ItemState = "uploading"
	StateUploaded  ItemState = "uploaded"
	StateFailed    ItemState = "failed"
)

// FailReason classifies why an item ended up failed. Validation rejections
// never become items, so only transport-side reasons appear here.
type FailReason string

const (
	ReasonNetworkFailure     FailReason = "networkFailure"
	ReasonServerRejected     FailReason = "serverRejected"
	ReasonCancelled          FailReason = "cancelled"
	ReasonInvariantViolation FailReason = "invariantViolation"
)

// ItemSnapshot is the read-only view of an item handed to the UI layer.
type ItemSnapshot struct {
	ID             string    `json:"id"`
	FileName       string    `json:"fileName"`
	FileType       string    `json:"fileType"`
	Size           int64     `json:"size"`
	State          ItemState `json:"state"`
	Progress       int       `json:"progress"`
	PreviewID      string    `json:"previewId,omitempty"`
	RemoteLocation string    `json:"remoteLocation,omitempty"`
	ErrorReason    string    `json:"errorReason,omitempty"`
}

// BatchProgress is emitted to the caller on every state change.
type BatchProgress struct {
	SessionID       string         `json:"sessionId"`
	TotalFiles      int            `json:"totalFiles"`
	CompletedFiles  int            `json:"completedFiles"`
	OverallProgress int            `json:"overallProgress"`
	Items           []ItemSnapshot `json:"items"`
	Errors          []ItemError    `json:"errors,omitempty"`
	Settled         bool           `json:"settled"`
}

// ItemError pairs a failed item with its reason for the errors list.
type ItemError struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}
