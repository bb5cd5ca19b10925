package kmeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ruteri/etsi014-conformance/api"
	"github.com/ruteri/etsi014-conformance/interfaces"
)

// Exchange records a single request and its response.
type Exchange struct {
	Method       string        `json:"method"`
	URL          string        `json:"url"`
	RequestBody  string        `json:"request_body,omitempty"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseBody string        `json:"response_body,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Option configures a Client.
type Option func(*Client)

// WithExchangeHook registers a function called after every request that was sent.
func WithExchangeHook(fn func(Exchange)) Option {
	return func(c *Client) {
		c.onExchange = fn
	}
}

// Client sends ETSI 014 requests as a single SAE identity.
// The identity is whatever client certificate httpClient presents.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
	onExchange func(Exchange)
}

var _ interfaces.KeyRequester = (*Client)(nil)

// New creates a Client issuing requests against baseURL.
func New(httpClient *http.Client, baseURL string, log *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EncKeys requests new keys for target.
//
// Query style sends number and size as query parameters and cannot carry
// additional slave SAE ids. Body style sends only the fields that are set, so a
// request without parameters is sent as an empty JSON object.
func (c *Client) EncKeys(ctx context.Context, style interfaces.Style, target interfaces.SAEID, keyReq interfaces.KeyRequest) (*interfaces.KeyContainer, error) {
	endpoint := api.EndpointURL(c.baseURL, target, interfaces.OpEncKeys)

	var req *http.Request
	var body []byte
	var err error
	if style.IsBody() {
		fields := map[string]any{}
		if keyReq.Number.IsSet() {
			fields["number"] = keyReq.Number.JSONValue()
		}
		if keyReq.Size.IsSet() {
			fields["size"] = keyReq.Size.JSONValue()
		}
		if keyReq.HasAdditionalSlaveSAEIDs() {
			fields["additional_slave_SAE_IDs"] = keyReq.AdditionalSlaveSAEIDs
		}
		req, body, err = newJSONRequest(ctx, endpoint, fields)
	} else {
		if keyReq.HasAdditionalSlaveSAEIDs() {
			return nil, fmt.Errorf("additional_slave_SAE_IDs over GET: %w", ErrNotExpressible)
		}
		query := url.Values{}
		if keyReq.Number.IsSet() {
			query.Set("number", string(keyReq.Number))
		}
		if keyReq.Size.IsSet() {
			query.Set("size", string(keyReq.Size))
		}
		req, err = newQueryRequest(ctx, endpoint, query)
	}
	if err != nil {
		return nil, err
	}

	var container *interfaces.KeyContainer
	err = c.do(req, body, func(raw []byte) (err error) {
		container, err = decodeKeyContainer(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return container, nil
}

// DecKeys retrieves keys issued by master. Query style carries exactly one key id.
func (c *Client) DecKeys(ctx context.Context, style interfaces.Style, master interfaces.SAEID, keyIDs []string) (*interfaces.KeyContainer, error) {
	endpoint := api.EndpointURL(c.baseURL, master, interfaces.OpDecKeys)

	var req *http.Request
	var body []byte
	var err error
	if style.IsBody() {
		req, body, err = newJSONRequest(ctx, endpoint, interfaces.NewKeyIDs(keyIDs))
	} else {
		if len(keyIDs) != 1 {
			return nil, fmt.Errorf("%d key ids over GET: %w", len(keyIDs), ErrNotExpressible)
		}
		req, err = newQueryRequest(ctx, endpoint, url.Values{"key_ID": keyIDs})
	}
	if err != nil {
		return nil, err
	}

	var container *interfaces.KeyContainer
	err = c.do(req, body, func(raw []byte) (err error) {
		container, err = decodeKeyContainer(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return container, nil
}

// Status queries the defaults of the (caller, target) pair.
func (c *Client) Status(ctx context.Context, target interfaces.SAEID) (*interfaces.Status, error) {
	req, err := newQueryRequest(ctx, api.EndpointURL(c.baseURL, target, interfaces.OpStatus), nil)
	if err != nil {
		return nil, err
	}

	var status *interfaces.Status
	err = c.do(req, nil, func(raw []byte) (err error) {
		status, err = decodeStatus(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func newQueryRequest(ctx context.Context, endpoint string, query url.Values) (*http.Request, error) {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("could not marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, body, nil
}

// do sends req and routes the response body either to decode or to the error
// envelope decoder.
func (c *Client) do(req *http.Request, reqBody []byte, decode func([]byte) error) error {
	method, target := req.Method, req.URL.String()
	exchange := Exchange{Method: method, URL: target, RequestBody: string(reqBody)}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		exchange.Error = err.Error()
		exchange.Duration = time.Since(start)
		c.observe(exchange)
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	exchange.Duration = time.Since(start)
	exchange.StatusCode = resp.StatusCode
	exchange.ResponseBody = string(body)
	if err != nil {
		exchange.Error = err.Error()
		c.observe(exchange)
		return &TransportError{Method: method, URL: target, Err: fmt.Errorf("could not read response: %w", err)}
	}
	c.observe(exchange)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, err := decodeErrorMessage(body)
		if err != nil {
			return &SchemaViolationError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: body, Err: err}
		}
		return &RejectedError{Method: method, URL: target, StatusCode: resp.StatusCode, Message: *msg}
	}

	if err := decode(body); err != nil {
		return &SchemaViolationError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: body, Err: err}
	}
	return nil
}

func (c *Client) observe(exchange Exchange) {
	c.log.Debug("kme exchange",
		"method", exchange.Method,
		"url", exchange.URL,
		"status", exchange.StatusCode,
		"duration", exchange.Duration,
		"err", exchange.Error,
	)
	if c.onExchange != nil {
		c.onExchange(exchange)
	}
}
