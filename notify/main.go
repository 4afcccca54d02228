// Package notify pushes batch settle events to an optional desktop notifier
// over a Unix domain socket. Presentation (toast rendering) is the
// notifier's job; this side only emits the event.
package notify

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/chemora/batchup/tool"
	"github.com/chemora/batchup/types"
)

// NotifyWriteChunkSize is the chunk size when writing payload to the Unix
// socket (avoid large single write) and also the payload ceiling.
const NotifyWriteChunkSize = 32 * 1024 // 32KB

// MaxNotifyURLs caps how many uploaded locations ride along in a settle
// event so the payload stays under the ceiling for large batches.
const MaxNotifyURLs = 10

var (
	// DefaultUnixSocketPath is the default Unix socket path for IPC
	DefaultUnixSocketPath = "/tmp/batchup-notify.sock"
	// UnixSocketTimeout is the timeout for Unix socket operations
	UnixSocketTimeout = 3 * time.Second
	UseNotify         = true
)

// SetUseNotify sets whether to use notify
func SetUseNotify(use bool) {
	UseNotify = use
}

// SendNotification sends a settle notification via Unix Domain Socket.
func SendNotification(notification *types.Notification, socketPath string) error {
	if !UseNotify {
		return nil
	}
	if socketPath == "" {
		socketPath = DefaultUnixSocketPath
	}
	if notification != nil && len(notification.URLs) > MaxNotifyURLs {
		notification.URLs = notification.URLs[:MaxNotifyURLs]
	}

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return fmt.Errorf("unix socket not found: %s (is the notifier running?)", socketPath)
	}

	var payload []byte
	var err error
	if notification != nil {
		payload, err = sonic.Marshal(notification)
		if err != nil {
			return fmt.Errorf("failed to serialize notification data: %v", err)
		}
	} else {
		payload = []byte("{}")
	}
	if len(payload) > NotifyWriteChunkSize {
		return fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), NotifyWriteChunkSize)
	}

	conn, err := net.DialTimeout("unix", socketPath, UnixSocketTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to Unix socket %s: %v", socketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close Unix socket connection: %v", err)
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(UnixSocketTimeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set write deadline: %v", err)
	}

	// length prefix (4 bytes, little-endian uint32) then payload in chunks
	lengthBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBuf, uint32(len(payload)))
	if _, err := conn.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write length to Unix socket: %v", err)
	}
	tool.DefaultLogger.Debugf("Sending settle notification to Unix socket (len=%d)", len(payload))
	for off := 0; off < len(payload); {
		chunkEnd := off + NotifyWriteChunkSize
		if chunkEnd > len(payload) {
			chunkEnd = len(payload)
		}
		nw, err := conn.Write(payload[off:chunkEnd])
		if err != nil {
			return fmt.Errorf("failed to write payload to Unix socket: %v", err)
		}
		off += nw
	}
	return nil
}
