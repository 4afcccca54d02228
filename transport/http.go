package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/chemora/batchup/tool"
	"github.com/chemora/batchup/types"
)

// FileFieldName is the fixed multipart field the endpoint reads file parts from.
const FileFieldName = "files"

// DestinationFieldName carries the destination path alongside the file parts.
const DestinationFieldName = "path"

// HTTPClient uploads batches to the optimization backend as multipart form
// requests and decodes the JSON envelope it answers with.
type HTTPClient struct {
	Endpoint string
	Token    string // bearer credential, empty = unauthenticated
	hc       *http.Client
}

func NewHTTPClient(endpoint, token string) *HTTPClient {
	return &HTTPClient{
		Endpoint: endpoint,
		Token:    token,
		hc:       tool.GetHttpClient(),
	}
}

// physicalCall is one HTTP request carrying a subset of the logical batch.
type physicalCall struct {
	positions   []int // indexes into the logical batch, in order
	body        []byte
	contentType string
}

// Send transfers the batch and returns outcomes in submission order.
// When opts.Concurrency > 1 the batch is split into one physical call per
// file, at most Concurrency of them in flight; otherwise the whole batch
// travels in a single multipart request.
func (c *HTTPClient) Send(ctx context.Context, files []types.FileMeta, destination string, opts types.SendOptions, onProgress func(pct int)) ([]types.Outcome, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("invalid parameters: files must not be empty")
	}

	// Check if already cancelled
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("upload cancelled: %w", ctx.Err())
	default:
	}

	url, err := tool.BuildUploadURL(c.Endpoint, opts)
	if err != nil {
		return nil, err
	}

	calls, err := buildCalls(files, destination, opts)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, call := range calls {
		total += int64(len(call.body))
	}
	tracker := newProgressTracker(total, onProgress)

	if len(calls) == 1 {
		outcomes, err := c.do(ctx, url, calls[0], tracker)
		if err != nil {
			return nil, err
		}
		tracker.finish()
		return outcomes, nil
	}
	return c.fanOut(ctx, url, calls, len(files), opts.Concurrency, tracker)
}

// buildCalls assembles the multipart bodies up front so the tracker knows the
// exact byte total before any transfer starts.
func buildCalls(files []types.FileMeta, destination string, opts types.SendOptions) ([]physicalCall, error) {
	split := opts.Concurrency > 1 && len(files) > 1
	if !split {
		positions := make([]int, len(files))
		for i := range files {
			positions[i] = i
		}
		body, contentType, err := buildMultipartBody(files, destination)
		if err != nil {
			return nil, err
		}
		return []physicalCall{{positions: positions, body: body, contentType: contentType}}, nil
	}

	calls := make([]physicalCall, 0, len(files))
	for i := range files {
		body, contentType, err := buildMultipartBody(files[i:i+1], destination)
		if err != nil {
			return nil, err
		}
		calls = append(calls, physicalCall{positions: []int{i}, body: body, contentType: contentType})
	}
	return calls, nil
}

func buildMultipartBody(files []types.FileMeta, destination string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FileFieldName, f.Name))
		header.Set("Content-Type", f.Kind)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form part: %v", err)
		}
		if _, err := part.Write(f.Bytes); err != nil {
			return nil, "", fmt.Errorf("failed to write form part: %v", err)
		}
	}
	if err := w.WriteField(DestinationFieldName, destination); err != nil {
		return nil, "", fmt.Errorf("failed to write destination field: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// do runs one physical call and maps its response to outcomes for the
// positions it carried.
func (c *HTTPClient) do(ctx context.Context, url string, call physicalCall, tracker *progressTracker) ([]types.Outcome, error) {
	reader := &countingReader{r: bytes.NewReader(call.body), tracker: tracker}
	rawReq, rawErr := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	req, err := tool.NewHTTPReqWithAuth(rawReq, rawErr, c.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %v", err)
	}
	req.Header.Set("Content-Type", call.contentType)
	req.ContentLength = int64(len(call.body))

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("upload cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to send upload request: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %v", err)
	}
	return decodeOutcomes(len(call.positions), resp.StatusCode, body)
}

// decodeOutcomes maps one endpoint response onto n positional outcomes.
// A success:false envelope or non-2xx status fails every position of the
// call; an outcome-count mismatch is a contract breach and fails the call
// outright.
func decodeOutcomes(n, status int, body []byte) ([]types.Outcome, error) {
	var envelope types.UploadEnvelope
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return rejectAll(n, fmt.Sprintf("upload request failed: %d", status)), nil
		}
		return nil, fmt.Errorf("failed to parse upload response: %v", err)
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices || !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = fmt.Sprintf("upload request failed: %d", status)
		}
		return rejectAll(n, message), nil
	}

	// single-file variant answers with data.url instead of data.files
	if n == 1 && len(envelope.Data.Files) == 0 {
		if strings.TrimSpace(envelope.Data.URL) == "" {
			return nil, &InvariantError{Want: 1, Got: 0}
		}
		return []types.Outcome{{Location: envelope.Data.URL}}, nil
	}

	if len(envelope.Data.Files) != n {
		return nil, &InvariantError{Want: n, Got: len(envelope.Data.Files)}
	}

	outcomes := make([]types.Outcome, n)
	for i, f := range envelope.Data.Files {
		switch {
		case f.Error != "":
			outcomes[i] = types.Outcome{Err: &ItemError{Reason: types.ReasonServerRejected, Message: f.Error}}
		case strings.TrimSpace(f.URL) == "":
			outcomes[i] = types.Outcome{Err: &ItemError{Reason: types.ReasonServerRejected, Message: "no location returned"}}
		default:
			outcomes[i] = types.Outcome{Location: f.URL}
		}
	}
	return outcomes, nil
}

func rejectAll(n int, message string) []types.Outcome {
	outcomes := make([]types.Outcome, n)
	for i := range outcomes {
		outcomes[i] = types.Outcome{Err: &ItemError{Reason: types.ReasonServerRejected, Message: message}}
	}
	return outcomes
}

// fanOut runs the physical calls with at most `concurrency` in flight and
// reassembles per-position outcomes. A connection failure only fails the
// positions of its own call; cancellation aborts the whole logical batch.
func (c *HTTPClient) fanOut(ctx context.Context, url string, calls []physicalCall, n, concurrency int, tracker *progressTracker) ([]types.Outcome, error) {
	outcomes := make([]types.Outcome, n)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(call physicalCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			got, err := c.do(ctx, url, call, tracker)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if inv, ok := err.(*InvariantError); ok {
					tool.DefaultLogger.Errorf("Upload endpoint contract breach: %v", inv)
					for _, pos := range call.positions {
						outcomes[pos] = types.Outcome{Err: &ItemError{Reason: types.ReasonInvariantViolation, Message: inv.Error()}}
					}
					return
				}
				for _, pos := range call.positions {
					outcomes[pos] = types.Outcome{Err: &ItemError{Reason: types.ReasonNetworkFailure, Message: err.Error()}}
				}
				return
			}
			for i, pos := range call.positions {
				outcomes[pos] = got[i]
			}
		}(call)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("upload cancelled: %w", ctx.Err())
	}
	tracker.finish()
	return outcomes, nil
}
