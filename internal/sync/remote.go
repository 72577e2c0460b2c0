// Package sync implements the Sync Bridge (C9): best-effort,
// write-through replication of experiment/log/metric/notification/
// approval state to a remote store, plus cold-start restore of pending
// approvals and notifications, per spec.md §4.9. The teacher has no
// server of its own to replicate against — no gRPC service, no remote
// database client — so this is modeled on the shape the teacher DOES
// have for talking to an external service: internal/models' provider
// clients (base URL + timeout + auth option construction over
// net/http), generalized from "call an LLM provider" to "call a
// private remote store".
package sync

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aegis-agent/aegis/internal/config"
)

const defaultTimeout = 10 * time.Second

// RemoteClient is a thin JSON-over-HTTP client for the remote store,
// optionally secured with a pinned root CA.
type RemoteClient struct {
	baseURL string
	http    *http.Client
}

// NewRemoteClient builds a client from RemoteStoreConfig. When
// RootCAPath is set, the client dials TLS with that CA as the sole
// trust root (the remote store's certificate must chain to it); when
// unset, it falls back to plain HTTP, appropriate for a loopback/dev
// remote store.
func NewRemoteClient(cfg config.RemoteStoreConfig) (*RemoteClient, error) {
	scheme := "http"
	transport := http.DefaultTransport

	if cfg.RootCAPath != "" {
		pem, err := os.ReadFile(cfg.RootCAPath)
		if err != nil {
			return nil, fmt.Errorf("sync: read root CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("sync: no valid certificates in %s", cfg.RootCAPath)
		}
		transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}
		scheme = "https"
	}

	return &RemoteClient{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		http:    &http.Client{Transport: transport, Timeout: defaultTimeout},
	}, nil
}

// post JSON-encodes body and POSTs it to path, retrying transient
// failures up to 3 attempts with a short linear backoff — modeled on
// the teacher's provider clients' own reconnect-on-failure style
// (internal/models/*.go wrap every call in the SDK's own retry, since
// this is a hand-rolled client we do the equivalent by hand).
func (c *RemoteClient) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sync: marshal %s: %w", path, err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("sync: build request %s: %w", path, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("sync: %s: server error %d", path, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("sync: %s: client error %d", path, resp.StatusCode)
		}
		return nil
	}
	return fmt.Errorf("sync: %s: %w", path, lastErr)
}

// get fetches path and decodes the JSON response into out.
func (c *RemoteClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("sync: build request %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sync: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sync: %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
