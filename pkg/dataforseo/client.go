// Package dataforseo provides a client for the DataForSEO On-Page Lighthouse API.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/seo-cli/internal/resilience"
)

// Default base URL for the Lighthouse endpoints of the DataForSEO v3 API.
const defaultBaseURL = "https://api.dataforseo.com/v3/on_page/lighthouse"

const (
	pathTasksReady = "/tasks_ready"
	pathTaskGet    = "/task_get/json/"
	pathTaskPost   = "/task_post"
	pathLive       = "/live/json"
)

// Client defines the DataForSEO Lighthouse operations.
type Client interface {
	// TasksReady lists tasks that have completed but not been collected.
	TasksReady(ctx context.Context) (*TasksReadyResponse, error)
	// TaskGet returns the stored result for a task id.
	TaskGet(ctx context.Context, id string) (*TaskResponse, error)
	// TaskPost submits an asynchronous Lighthouse task.
	TaskPost(ctx context.Context, req LighthouseRequest) (*TaskResponse, error)
	// Live runs a synchronous Lighthouse audit.
	Live(ctx context.Context, req LighthouseRequest) (*TaskResponse, error)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy applied to every request.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimiter makes every request wait on l before it is sent.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	login    string
	password string
	baseURL  string
	http     *http.Client
	retry    resilience.RetryConfig
	limiter  *rate.Limiter
}

// NewClient creates a new DataForSEO client authenticated with HTTP Basic
// credentials.
func NewClient(login, password string, opts ...Option) Client {
	c := &httpClient{
		login:    login,
		password: password,
		baseURL:  defaultBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("dataforseo", "request")
	}
	return c
}

func (c *httpClient) TasksReady(ctx context.Context) (*TasksReadyResponse, error) {
	var resp TasksReadyResponse
	if err := c.get(ctx, pathTasksReady, &resp); err != nil {
		return nil, eris.Wrap(err, "dataforseo: tasks ready")
	}
	return &resp, nil
}

func (c *httpClient) TaskGet(ctx context.Context, id string) (*TaskResponse, error) {
	var resp TaskResponse
	if err := c.get(ctx, pathTaskGet+url.PathEscape(id), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("dataforseo: task get %s", id))
	}
	return &resp, nil
}

func (c *httpClient) TaskPost(ctx context.Context, req LighthouseRequest) (*TaskResponse, error) {
	var resp TaskResponse
	if err := c.post(ctx, pathTaskPost, []LighthouseRequest{req}, &resp); err != nil {
		return nil, eris.Wrap(err, "dataforseo: task post")
	}
	return &resp, nil
}

func (c *httpClient) Live(ctx context.Context, req LighthouseRequest) (*TaskResponse, error) {
	var resp TaskResponse
	if err := c.post(ctx, pathLive, []LighthouseRequest{req}, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("dataforseo: live %s", req.URL))
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}
	return c.do(ctx, http.MethodPost, path, buf, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// rawResponse is one HTTP exchange as seen by the retry wrapper.
type rawResponse struct {
	status int
	body   []byte
}

func (r *rawResponse) HTTPStatus() int { return r.status }

func (c *httpClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := resilience.DoStatus(ctx, c.retry, func(ctx context.Context) (*rawResponse, error) {
		return c.send(ctx, method, path, body)
	})
	if err != nil {
		return err
	}

	if resp.status < 200 || resp.status >= 300 {
		return &APIError{
			StatusCode: resp.status,
			Body:       string(resp.body),
		}
	}

	if err := json.Unmarshal(resp.body, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

// send performs a single request. Transport errors are returned unwrapped so
// the retry wrapper can classify them.
func (c *httpClient) send(ctx context.Context, method, path string, body []byte) (*rawResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read response body"), resp.StatusCode)
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}
