package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iho/goimport/internal/adapter/http/dto"
	"github.com/iho/goimport/internal/adapter/http/middleware"
)

// apiClient talks to the process API of the server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e dto.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			if e.Message != "" {
				return fmt.Errorf("%s (status %d): %s", e.Error, resp.StatusCode, e.Message)
			}
			return fmt.Errorf("%s (status %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *apiClient) createProcess(ctx context.Context, req *dto.CreateProcessRequest) (*dto.ProcessResponse, error) {
	var process dto.ProcessResponse
	header := http.Header{}
	header.Set(middleware.IdempotencyKeyHeader, uuid.NewString())
	if err := c.do(ctx, http.MethodPost, "/api/v1/process", req, &process, header); err != nil {
		return nil, err
	}
	return &process, nil
}

func (c *apiClient) listProcesses(ctx context.Context, limit, offset int) ([]*dto.ProcessResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var processes []*dto.ProcessResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/process?"+q.Encode(), nil, &processes, nil); err != nil {
		return nil, err
	}
	return processes, nil
}

func (c *apiClient) getProcess(ctx context.Context, id string) (*dto.ProcessResponse, error) {
	var process dto.ProcessResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/process/"+url.PathEscape(id), nil, &process, nil); err != nil {
		return nil, err
	}
	return &process, nil
}

func (c *apiClient) input(ctx context.Context, id string, action *dto.ActionRequest) (*dto.ProcessResponse, error) {
	var process dto.ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/process/"+url.PathEscape(id), action, &process, nil); err != nil {
		return nil, err
	}
	return &process, nil
}
