package tool

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectKind resolves the MIME type of an incoming file. The declared type
// wins when present; otherwise the extension, then content sniffing.
func DetectKind(fileName, declared string, head []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		// strip parameters like "; charset=utf-8"
		if idx := strings.Index(declared, ";"); idx > 0 {
			declared = strings.TrimSpace(declared[:idx])
		}
		return declared
	}
	if kind := mime.TypeByExtension(filepath.Ext(fileName)); kind != "" {
		if idx := strings.Index(kind, ";"); idx > 0 {
			kind = strings.TrimSpace(kind[:idx])
		}
		return kind
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}
