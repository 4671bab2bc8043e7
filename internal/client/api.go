package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/internal/session"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	bearerPrefix        = "Bearer "
	contentTypeJSON     = "application/json"

	// maxErrorBody caps how much of a failed response is read.
	maxErrorBody = 64 << 10
)

var errEmptyBody = errors.New("empty response body")

// Jar is a cookie jar that can be emptied on logout.
type Jar struct {
	jar *cookiejar.Jar
	mu  sync.RWMutex
}

func NewJar() *Jar {
	j, _ := cookiejar.New(nil)
	return &Jar{jar: j}
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// Reset drops every stored cookie.
func (j *Jar) Reset() {
	fresh, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()
}

// NewHTTPClient builds the client shared by every API client: one cookie
// jar, so the refresh cookie set by a verify endpoint reaches the refresh
// endpoint, and a logging transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Jar:       NewJar(),
		Transport: log.NewTransport(nil),
	}
}

// apiClient is the JSON-over-HTTP transport of one remote server.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	store      session.Store
}

func newAPIClient(baseURL string, httpClient *http.Client, store session.Store) *apiClient {
	if httpClient == nil {
		httpClient = NewHTTPClient(10 * time.Second)
	}
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		store:      store,
	}
}

type request struct {
	method string
	path   string // already escaped
	query  url.Values
	body   interface{}
	// auth attaches the stored credential when there is one.
	auth bool
}

func (c *apiClient) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends req and decodes a 2xx JSON body into out (when out is non-nil).
// Non-2xx responses become *domain.RemoteError.
func (c *apiClient) do(ctx context.Context, req request, out interface{}) error {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.url(req.path, req.query), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set(headerContentType, contentTypeJSON)

	if req.auth {
		cred, err := c.store.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to read credential: %w", err)
		}
		if !cred.IsZero() {
			httpReq.Header.Set(headerAuthorization, bearerPrefix+string(cred))
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeRemoteError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func decodeRemoteError(resp *http.Response) error {
	remote := &domain.RemoteError{
		Status: resp.StatusCode,
		Code:   strconv.Itoa(resp.StatusCode),
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		remote.Message = strings.TrimSpace(string(data))
		return remote
	}

	if code := parseCode(eb.Code); code != "" {
		remote.Code = code
	}
	remote.Message = eb.Message
	if remote.Message == "" {
		remote.Message = eb.Error
	}
	return remote
}

// parseCode accepts both string and numeric codes.
func parseCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func escapeID(id int) string {
	return strconv.Itoa(id)
}
