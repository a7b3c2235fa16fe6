// Package api talks to the central factory API. It maps queued mutations to
// REST calls and classifies every outcome so the engine can decide between
// retrying, dropping, and conflict resolution without inspecting HTTP
// details itself.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/solarfab/linesync/custom_errors"
	"github.com/solarfab/linesync/types"
)

// Result is the classified outcome of a successful round trip. Conflict is
// set on HTTP 409 and ServerRecord then carries the server's current copy of
// the record, when the server included one.
type Result struct {
	StatusCode   int
	Conflict     bool
	ServerRecord json.RawMessage
}

type Client struct {
	baseURL   string
	endpoints map[string]string
	client    *http.Client
}

func NewClient(baseURL string, endpoints map[string]string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		client:    httpClient,
	}
}

// Push sends one mutation to the central API.
//
// A non-nil Result with Conflict set means the server rejected the write
// with 409; the caller resolves it. Errors are classified: unknown tables
// and 4xx responses are contract errors (retrying cannot help), network
// failures and 5xx responses are transient.
func (c *Client) Push(ctx context.Context, m *types.Mutation) (*Result, error) {
	url, err := c.resolve(m.Table, m.RecordID, m.Operation)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if m.Operation != types.OperationDelete {
		body = bytes.NewReader(m.Data)
	}

	req, err := http.NewRequestWithContext(ctx, methodFor(m.Operation), url, body)
	if err != nil {
		return nil, custom_errors.NewContract("building request for %s: %v", m.Table, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, custom_errors.NewTransient("pushing mutation", err)
	}
	defer resp.Body.Close()

	return classify(resp)
}

// Get fetches the server's current copy of a record. sql-style not-found is
// reported as a contract error since the record genuinely does not exist
// upstream.
func (c *Client) Get(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	url, err := c.resolve(table, recordID, types.OperationUpdate)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, custom_errors.NewContract("building request for %s: %v", table, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, custom_errors.NewTransient("fetching record", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, custom_errors.NewContract("record %s/%s not found upstream", table, recordID)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, custom_errors.NewTransient(fmt.Sprintf("fetching record: status %d", resp.StatusCode), nil)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) resolve(table, recordID string, op types.Operation) (string, error) {
	endpoint, ok := c.endpoints[table]
	if !ok {
		return "", custom_errors.NewContract("no endpoint configured for table %q", table)
	}
	if op == types.OperationCreate {
		return fmt.Sprintf("%s/api/%s", c.baseURL, endpoint), nil
	}
	return fmt.Sprintf("%s/api/%s/%s", c.baseURL, endpoint, recordID), nil
}

func methodFor(op types.Operation) string {
	switch op {
	case types.OperationCreate:
		return http.MethodPost
	case types.OperationDelete:
		return http.MethodDelete
	default:
		return http.MethodPut
	}
}

func classify(resp *http.Response) (*Result, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return &Result{StatusCode: resp.StatusCode}, nil

	case resp.StatusCode == http.StatusConflict:
		record, _ := io.ReadAll(resp.Body)
		return &Result{StatusCode: resp.StatusCode, Conflict: true, ServerRecord: record}, nil

	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return nil, custom_errors.NewContract("server rejected mutation with status %d", resp.StatusCode)

	default:
		return nil, custom_errors.NewTransient(fmt.Sprintf("server returned status %d", resp.StatusCode), nil)
	}
}
