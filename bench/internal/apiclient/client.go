// Package apiclient is a minimal blog API client for the bench tools.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New builds a client. insecure skips TLS verification for self-signed certs.
func New(baseURL string, insecure bool) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecure}, //nolint:gosec
				MaxIdleConnsPerHost: 256,
			},
			Timeout: 10 * time.Second,
		},
	}
}

// Do sends a JSON request with an optional bearer token and decodes a 2xx
// response into out. It returns the status code.
func (c *Client) Do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

// Login returns a bearer token for username.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	creds := map[string]string{"username": username, "password": password}
	if _, err := c.Do(ctx, http.MethodPost, "/login", "", creds, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Signup registers username and logs it in.
func (c *Client) Signup(ctx context.Context, username, password string) (string, error) {
	creds := map[string]string{"username": username, "password": password}
	if _, err := c.Do(ctx, http.MethodPost, "/register", "", creds, nil); err != nil {
		return "", err
	}
	return c.Login(ctx, username, password)
}

// CreatePost returns the id of the new post.
func (c *Client) CreatePost(ctx context.Context, token, content string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if _, err := c.Do(ctx, http.MethodPost, "/api/blog", token, map[string]string{"content": content}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
