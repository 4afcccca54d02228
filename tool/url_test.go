package tool

import (
	"testing"

	"github.com/chemora/batchup/types"
)

func TestBuildUploadURL(t *testing.T) {
	tests := []struct {
		name string
		opts types.SendOptions
		want string
	}{
		{"no transforms", types.SendOptions{}, "https://api.example.com/upload"},
		{"resize only", types.SendOptions{Resize: true, MaxWidth: 800, MaxHeight: 600}, "https://api.example.com/upload?height=600&width=800"},
		{"compress only", types.SendOptions{Compress: true, Quality: 85}, "https://api.example.com/upload?quality=85"},
		{"resize off drops dimensions", types.SendOptions{Resize: false, MaxWidth: 800, Compress: true, Quality: 85}, "https://api.example.com/upload?quality=85"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildUploadURL("https://api.example.com/upload", tt.opts)
			if err != nil {
				t.Fatalf("BuildUploadURL: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildUploadURLInvalidEndpoint(t *testing.T) {
	if _, err := BuildUploadURL("://bad", types.SendOptions{}); err == nil {
		t.Fatal("expected parse error")
	}
}
