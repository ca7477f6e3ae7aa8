package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient implements QueryClient against the query service's HTTP actions.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080/labkey"). When token is non-empty, an
// Authorization header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Reads ---

func (c *HTTPClient) SelectRows(ctx context.Context, req *SelectRowsRequest) (*SelectRowsResponse, error) {
	var resp SelectRowsResponse
	if req.SQL != "" {
		form := cloneValues(req.Params)
		form.Set("sql", req.SQL)
		path := c.actionPath("query", req.ContainerPath, "executeSql.api")
		if err := c.doForm(ctx, path, form, &resp, req.Timeout); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	path := c.actionPath("query", req.ContainerPath, "selectRows.api")
	if len(req.Params) > 0 {
		path += "?" + req.Params.Encode()
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, req.Timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Writes ---

func (c *HTTPClient) SaveRows(ctx context.Context, req *SaveRowsRequest) (*SaveRowsResponse, error) {
	var resp SaveRowsResponse
	path := c.actionPath("query", req.ContainerPath, "saveRows.api")
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp, req.Timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) DeleteRows(ctx context.Context, req *DeleteRowsRequest) (*DeleteRowsResponse, error) {
	var resp DeleteRowsResponse
	path := c.actionPath("query", req.ContainerPath, "deleteRows.api")
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp, req.Timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Export ---

func (c *HTTPClient) Export(ctx context.Context, req *ExportRequest) (io.ReadCloser, error) {
	var (
		httpReq *http.Request
		err     error
	)
	ctx, cancel := withTimeout(ctx, req.Timeout)

	if req.SQL != "" {
		form := cloneValues(req.Params)
		form.Set("sql", req.SQL)
		form.Set("format", string(req.Format))
		path := c.actionPath("query", req.ContainerPath, "exportSql.view")
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		action := "exportRowsExcel.view"
		if req.Format == FormatTSV {
			action = "exportRowsTsv.view"
		}
		path := c.actionPath("query", req.ContainerPath, action)
		if len(req.Params) > 0 {
			path += "?" + req.Params.Encode()
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer cancel()
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp, respBody)
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnClose releases the request's timeout context once the caller is
// done streaming the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []RowError
}

// RowError carries the server's field errors for one submitted row.
// RowNumber is 1-based.
type RowError struct {
	RowNumber int          `json:"rowNumber"`
	Errors    []FieldIssue `json:"errors"`
}

// FieldIssue is a single server-side error on a field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// newAPIError normalizes an error response. The service reports failures in
// an "exception" field; "error" is accepted as well.
func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var errResp struct {
		Exception string     `json:"exception"`
		Error     string     `json:"error"`
		Errors    []RowError `json:"errors"`
	}
	if isJSON(resp) && json.Unmarshal(body, &errResp) == nil {
		apiErr.Errors = errResp.Errors
		switch {
		case errResp.Exception != "":
			apiErr.Message = errResp.Exception
		case errResp.Error != "":
			apiErr.Message = errResp.Error
		}
	}
	if apiErr.Message == "" {
		if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) < 512 {
			apiErr.Message = msg
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

func isJSON(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// actionPath builds /{controller}{container}/{action}.
func (c *HTTPClient) actionPath(controller, containerPath, action string) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(controller)
	for _, seg := range strings.Split(containerPath, "/") {
		if seg == "" {
			continue
		}
		b.WriteString("/")
		b.WriteString(url.PathEscape(seg))
	}
	b.WriteString("/")
	b.WriteString(action)
	return b.String()
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any, timeout time.Duration) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

// doForm POSTs url-encoded form values and decodes the JSON response.
func (c *HTTPClient) doForm(ctx context.Context, path string, form url.Values, result any, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req, result)
}

func (c *HTTPClient) send(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return newAPIError(resp, respBody)
	}

	if result != nil {
		if !isJSON(resp) {
			return fmt.Errorf("unexpected response content type %q", resp.Header.Get("Content-Type"))
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// withTimeout applies a per-request timeout; zero means none.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
