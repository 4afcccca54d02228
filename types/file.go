package types

// FileMeta describes one candidate file at selection time. Name, Kind and
// Size are captured once and never mutated afterwards; Bytes is the source
// payload handed to the transport (and kept for retry).
type FileMeta struct {
	Name  string `json:"fileName"`
	Kind  string `json:"fileType"` // MIME type, e.g. "image/jpeg"
	Size  int64  `json:"size"`
	Bytes []byte `json:"-"`
}

// Policy bounds what a session accepts.
type Policy struct {
	AllowedKinds []string
	MinSize      int64
	MaxSize      int64
	Capacity     int // maximum concurrent item count per session
}

// PolicyFromConfig converts the yaml policy block into the runtime policy.
func PolicyFromConfig(pc PolicyConfig) Policy {
	return Policy{
		AllowedKinds: pc.AllowedKinds,
		MinSize:      pc.MinSize,
		MaxSize:      pc.MaxSize,
		Capacity:     pc.Capacity,
	}
}
