package types

// SendOptions configures one logical transport call.
type SendOptions struct {
	Resize      bool
	Compress    bool
	MaxWidth    int
	MaxHeight   int
	Quality     int
	Concurrency int // bound on parallel physical transfers when the batch is split
}

// SendOptionsFromConfig converts the yaml transform block into send options.
func SendOptionsFromConfig(tc TransformConfig) SendOptions {
	return SendOptions{
		Resize:      tc.Resize,
		Compress:    tc.Compress,
		MaxWidth:    tc.MaxWidth,
		MaxHeight:   tc.MaxHeight,
		Quality:     tc.Quality,
		Concurrency: tc.Concurrency,
	}
}

// Outcome is the per-position result of a transport call. Exactly one of
// Location / Err is set.
type Outcome struct {
	Location string
	Err      error
}

// UploadEnvelope is the JSON response shape of the upload endpoint.
// Multi-file uploads fill Data.Files in submission order; the single-file
// variant fills Data.URL instead.
type UploadEnvelope struct {
	Success bool               `json:"success"`
	Data    UploadEnvelopeData `json:"data"`
	Message string             `json:"message,omitempty"`
}

type UploadEnvelopeData struct {
	Files []UploadedFile `json:"files,omitempty"`
	URL   string         `json:"url,omitempty"`
}

// UploadedFile is one persisted asset location returned by the endpoint.
type UploadedFile struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}
