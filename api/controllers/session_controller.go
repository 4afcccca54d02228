package controllers

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/chemora/batchup/api/models"
	"github.com/chemora/batchup/api/notifyhub"
	"github.com/chemora/batchup/batch"
	"github.com/chemora/batchup/notify"
	"github.com/chemora/batchup/tool"
	"github.com/chemora/batchup/transport"
	"github.com/chemora/batchup/types"
)

var (
	configMu     sync.RWMutex
	appConfig    *types.AppConfig
	hub          *notifyhub.Hub
	notifySocket string
)

// Configure wires the controllers with the loaded config and the notify hub.
// Call once from main before the server starts.
func Configure(cfg *types.AppConfig, h *notifyhub.Hub) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
	hub = h
	notifySocket = cfg.NotifySocket
}

func currentConfig() *types.AppConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func notifyBatchProgress(progress types.BatchProgress) {
	configMu.RLock()
	h := hub
	configMu.RUnlock()
	if h == nil {
		return
	}
	event := types.EventBatchProgress
	if progress.Settled {
		event = types.EventBatchSettled
	}
	h.Broadcast(&types.Notification{
		Event:     event,
		SessionID: progress.SessionID,
		Progress:  &progress,
	})
}

func notifySettled(sessionID string, urls []string) {
	configMu.RLock()
	h := hub
	socket := notifySocket
	configMu.RUnlock()
	if h != nil {
		h.Broadcast(&types.Notification{
			Event:     types.EventBatchSettled,
			SessionID: sessionID,
			URLs:      urls,
		})
	}
	if err := notify.SendNotification(&types.Notification{
		Event:     types.EventBatchSettled,
		SessionID: sessionID,
		URLs:      urls,
	}, socket); err != nil {
		tool.DefaultLogger.Debugf("Settle notification skipped: %v", err)
	}
}

// CreateSession opens a new upload session with the configured policy.
// POST /api/admin/v1/sessions
func CreateSession(c *gin.Context) {
	cfg := currentConfig()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Server not configured"))
		return
	}

	sessionID := tool.GenerateShortSessionID()
	session := batch.New(batch.Config{
		ID:          sessionID,
		Policy:      types.PolicyFromConfig(cfg.Policy),
		Options:     types.SendOptionsFromConfig(cfg.Transform),
		Destination: cfg.Destination,
		Client:      transport.NewHTTPClient(cfg.Endpoint, tool.BearerToken(cfg)),
		Callbacks: batch.Callbacks{
			OnBatchProgress: notifyBatchProgress,
			OnUploadedUrlsChanged: func(urls []string) {
				notifySettled(sessionID, urls)
			},
		},
	})
	models.PutSession(session)
	tool.DefaultLogger.Infof("Created upload session %s", sessionID)

	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{
		"sessionId": sessionID,
		"capacity":  cfg.Policy.Capacity,
	}))
}

// rejectionView is the JSON shape of one validation rejection.
type rejectionView struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// SubmitFiles validates and dispatches the multipart files of the request.
// POST /api/admin/v1/sessions/:sessionId/files
func SubmitFiles(c *gin.Context) {
	session, ok := lookupSession(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid multipart form: "+err.Error()))
		return
	}
	headers := form.File[transport.FileFieldName]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("No files provided"))
		return
	}

	candidates := make([]types.FileMeta, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, tool.FastReturnErrorWithData("Failed to open file part: "+err.Error(), map[string]any{"fileName": header.Filename}))
			return
		}
		data, err := io.ReadAll(f)
		closeErr := f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, tool.FastReturnErrorWithData("Failed to read file part: "+err.Error(), map[string]any{"fileName": header.Filename}))
			return
		}
		if closeErr != nil {
			tool.DefaultLogger.Errorf("Failed to close file part: %v", closeErr)
		}
		candidates = append(candidates, types.FileMeta{
			Name:  header.Filename,
			Kind:  tool.DetectKind(header.Filename, header.Header.Get("Content-Type"), data),
			Size:  int64(len(data)),
			Bytes: data,
		})
	}

	accepted, rejected, err := session.Submit(candidates)
	if err != nil {
		c.JSON(http.StatusConflict, tool.FastReturnError("Submit failed: "+err.Error()))
		return
	}

	rejections := make([]rejectionView, 0, len(rejected))
	for _, r := range rejected {
		rejections = append(rejections, rejectionView{FileName: r.Meta.Name, Reason: string(r.Reason)})
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{
		"accepted": accepted,
		"rejected": rejections,
	}))
}

// GetSession returns the current snapshot of the session.
// GET /api/admin/v1/sessions/:sessionId
func GetSession(c *gin.Context) {
	session, ok := lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{
		"progress":     session.Snapshot(),
		"uploadedUrls": session.UploadedURLs(),
	}))
}

// RetryFailed re-dispatches exactly the failed items of the session.
// POST /api/admin/v1/sessions/:sessionId/retry
func RetryFailed(c *gin.Context) {
	session, ok := lookupSession(c)
	if !ok {
		return
	}
	if err := session.RetryFailed(); err != nil {
		status := http.StatusConflict
		if errors.Is(err, batch.ErrSessionClosed) {
			status = http.StatusGone
		}
		c.JSON(status, tool.FastReturnError("Retry failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(session.Snapshot()))
}

// CancelSession signals cooperative cancellation of in-flight transfers.
// POST /api/admin/v1/sessions/:sessionId/cancel
func CancelSession(c *gin.Context) {
	session, ok := lookupSession(c)
	if !ok {
		return
	}
	session.Cancel()
	tool.DefaultLogger.Infof("Cancelled upload session %s", session.ID)
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// RemoveItem deletes one item and releases its preview handle.
// DELETE /api/admin/v1/sessions/:sessionId/items/:itemId
func RemoveItem(c *gin.Context) {
	session, ok := lookupSession(c)
	if !ok {
		return
	}
	itemID := c.Param("itemId")
	if err := session.Remove(itemID); err != nil {
		switch {
		case errors.Is(err, batch.ErrItemNotFound):
			c.JSON(http.StatusNotFound, tool.FastReturnError("Item not found"))
		case errors.Is(err, batch.ErrItemUploading):
			c.JSON(http.StatusConflict, tool.FastReturnError("Item is uploading, cancel first"))
		default:
			c.JSON(http.StatusInternalServerError, tool.FastReturnError("Remove failed: "+err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// CloseSession tears the session down ("clear all"): aborts in-flight work
// and releases every preview handle.
// DELETE /api/admin/v1/sessions/:sessionId
func CloseSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if !models.RemoveSession(sessionID) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found or expired"))
		return
	}
	tool.DefaultLogger.Infof("Closed upload session %s", sessionID)
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

func lookupSession(c *gin.Context) (*batch.Session, bool) {
	sessionID := c.Param("sessionId")
	session, ok := models.GetSession(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found or expired"))
		return nil, false
	}
	return session, true
}
