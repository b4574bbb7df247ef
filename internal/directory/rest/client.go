// Package rest implementa directory.Service contra la API HTTP del servicio.
// Es el equivalente de los fetch('/api/check-user') / fetch('/api/save-user')
// que hace el cliente durante el onboarding.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/identsync/internal/directory"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", directory.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Desc  string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("directory api: %s (%s)", apiErr.Error, apiErr.Desc)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Exists(ctx context.Context, email string) (directory.ExistsResult, error) {
	var out struct {
		Exists bool   `json:"exists"`
		Name   string `json:"name"`
	}
	in := map[string]string{"email": email}
	if err := c.post(ctx, "/v1/directory/check", in, &out); err != nil {
		return directory.ExistsResult{}, err
	}
	return directory.ExistsResult{Exists: out.Exists, FullName: out.Name}, nil
}

func (c *Client) Upsert(ctx context.Context, rec directory.Record) (bool, error) {
	var out struct {
		Success bool   `json:"success"`
		Created bool   `json:"created"`
		Message string `json:"message"`
	}
	in := map[string]string{
		"email":     rec.Email,
		"user_id":   rec.UserID,
		"full_name": rec.FullName,
	}
	if err := c.post(ctx, "/v1/directory/save", in, &out); err != nil {
		return false, err
	}
	if !out.Success {
		return false, fmt.Errorf("%w: %s", directory.ErrUnavailable, out.Message)
	}
	return out.Created, nil
}

func (c *Client) Delete(ctx context.Context, userID string) (int64, error) {
	var out struct {
		Rows int64 `json:"rows"`
	}
	in := map[string]string{"user_id": userID}
	if err := c.post(ctx, "/v1/directory/delete", in, &out); err != nil {
		return 0, err
	}
	return out.Rows, nil
}

var _ directory.Service = (*Client)(nil)
