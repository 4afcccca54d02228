package batch

import (
	"github.com/chemora/batchup/preview"
	"github.com/chemora/batchup/types"
)

// UploadItem is the unit of work for one file: validation metadata captured
// at acceptance, a preview handle it exclusively owns, and the state machine
// Pending -> Uploading -> Uploaded|Failed (Failed -> Uploading on retry).
type UploadItem struct {
	ID         string
	SourceName string
	SourceKind string
	SourceSize int64

	Preview preview.Handle

	State          types.ItemState
	Progress       int // 0-100, monotone while Uploading
	RemoteLocation string
	ErrorReason    types.FailReason

	// source payload, kept so retry can re-send without the caller
	payload []byte
}

func (it *UploadItem) snapshot() types.ItemSnapshot {
	return types.ItemSnapshot{
		ID:             it.ID,
		FileName:       it.SourceName,
		FileType:       it.SourceKind,
		Size:           it.SourceSize,
		State:          it.State,
		Progress:       it.Progress,
		PreviewID:      it.Preview.ID,
		RemoteLocation: it.RemoteLocation,
		ErrorReason:    string(it.ErrorReason),
	}
}

func (it *UploadItem) terminal() bool {
	return it.State == types.StateUploaded || it.State == types.StateFailed
}

// markUploading resets the failure fields. Valid from Pending (dispatch) and
// Failed (explicit retry).
func (it *UploadItem) markUploading() {
	it.State = types.StateUploading
	it.Progress = 0
	it.ErrorReason = ""
}

func (it *UploadItem) markUploaded(location string) {
	it.State = types.StateUploaded
	it.Progress = 100
	it.RemoteLocation = location
	it.ErrorReason = ""
}

func (it *UploadItem) markFailed(reason types.FailReason) {
	it.State = types.StateFailed
	it.RemoteLocation = ""
	it.ErrorReason = reason
}

func (it *UploadItem) meta() types.FileMeta {
	return types.FileMeta{
		Name:  it.SourceName,
		Kind:  it.SourceKind,
		Size:  it.SourceSize,
		Bytes: it.payload,
	}
}
