package tool

import (
	"crypto/tls"
	"net/http"
	"time"
)

var (
	DefaultTimeout       = 30 * time.Second
	ConnectionHttpClient *http.Client
)

func init() {
	ConnectionHttpClient = NewHTTPClient()
}

// NewHTTPClient creates an HTTP client, skipping self-signed certificate
// verification so internal optimization backends with self-issued certs work.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     300 * time.Millisecond,
		DisableKeepAlives:   false,
	}
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
	}
}

func GetHttpClient() *http.Client {
	return ConnectionHttpClient
}

// NewHTTPReqWithAuth decorates a freshly built request with the bearer
// credential when one is present. Wraps the (req, err) pair so call sites
// stay one-liners.
func NewHTTPReqWithAuth(req *http.Request, err error, token string) (*http.Request, error) {
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
