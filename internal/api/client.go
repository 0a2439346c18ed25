package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

// Client is the remote authority as the engine sees it. The exact transport
// configuration (TLS, retries at the proxy, token refresh) is a collaborator
// concern; the engine only distinguishes transport failures from business
// rejections.
type Client interface {
	// FetchPeriods returns full payloads for open periods and aggregate
	// summaries for closed ones.
	FetchPeriods(ctx context.Context, filter PeriodFilter) (*PeriodsPayload, error)
	// SubmitReading sends one reading value. The result carries the backend
	// reading id needed before an image can be attached.
	SubmitReading(ctx context.Context, serverID int64, sub ReadingSubmission) (*ReadingResult, error)
	// UploadReadingImage attaches a captured photo to a reading sub-resource.
	UploadReadingImage(ctx context.Context, backendReadingID int64, img ImageUpload) (*ImageResult, error)
	// SyncObservations submits all dirty observations and comments as one
	// atomic batch keyed by local ids.
	SyncObservations(ctx context.Context, req ObservationSyncRequest) (*ObservationSyncResponse, error)
	// SubmitLog delivers one diagnostic entry.
	SubmitLog(ctx context.Context, sub LogSubmission) error
}

// TokenFunc supplies the current auth token. Token acquisition and storage
// live outside the engine.
type TokenFunc func() string

// HTTPClient talks to the district sync API over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	token      TokenFunc
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the given base URL with a bounded
// per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, token TokenFunc) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}
}

// FetchPeriods implements Client.
func (c *HTTPClient) FetchPeriods(ctx context.Context, filter PeriodFilter) (*PeriodsPayload, error) {
	q := url.Values{}
	if filter.Scope != "" {
		q.Set("scope", filter.Scope)
	}
	for _, p := range filter.Periods {
		q.Add("period", p.Key())
	}

	endpoint := c.baseURL + "/api/periods"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload PeriodsPayload
	if err := c.do(req, "fetch periods", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SubmitReading implements Client.
func (c *HTTPClient) SubmitReading(ctx context.Context, serverID int64, sub ReadingSubmission) (*ReadingResult, error) {
	endpoint := fmt.Sprintf("%s/api/readings/%d", c.baseURL, serverID)
	req, err := c.jsonRequest(ctx, http.MethodPut, endpoint, sub)
	if err != nil {
		return nil, err
	}

	var result ReadingResult
	if err := c.do(req, "submit reading", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadReadingImage implements Client.
func (c *HTTPClient) UploadReadingImage(ctx context.Context, backendReadingID int64, img ImageUpload) (*ImageResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, img.Filename))
	header.Set("Content-Type", img.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, err
	}
	if err := writer.WriteField("size", strconv.Itoa(len(img.Data))); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/readings/%d/image", c.baseURL, backendReadingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result ImageResult
	if err := c.do(req, "upload reading image", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncObservations implements Client.
func (c *HTTPClient) SyncObservations(ctx context.Context, syncReq ObservationSyncRequest) (*ObservationSyncResponse, error) {
	endpoint := c.baseURL + "/api/observations/sync"
	req, err := c.jsonRequest(ctx, http.MethodPost, endpoint, syncReq)
	if err != nil {
		return nil, err
	}

	var resp ObservationSyncResponse
	if err := c.do(req, "sync observations", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitLog implements Client.
func (c *HTTPClient) SubmitLog(ctx context.Context, sub LogSubmission) error {
	endpoint := c.baseURL + "/api/logs"
	req, err := c.jsonRequest(ctx, http.MethodPost, endpoint, sub)
	if err != nil {
		return err
	}
	return c.do(req, "submit log", nil)
}

func (c *HTTPClient) jsonRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do runs the request and classifies the outcome: transport failures become
// NetworkError, 4xx/5xx become ServerRejection with the server's message
// preserved verbatim.
func (c *HTTPClient) do(req *http.Request, op string, out interface{}) error {
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &models.ServerRejection{
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(resp.Body),
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.NetworkError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// rejectionMessage extracts a human-readable message from an error body,
// falling back to the raw text.
func rejectionMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "request rejected"
	}

	var wrapped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		if wrapped.Error != "" {
			return wrapped.Error
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	return strings.TrimSpace(string(data))
}
