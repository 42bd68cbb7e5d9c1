package retrieval

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fixmate/fixmate/pkg/procedure"
	"github.com/fixmate/fixmate/pkg/urlvalidation"
)

// RemoteConfig configures the remote retrieval service client.
type RemoteConfig struct {
	URL        string
	AuthType   string // "bearer", "basic" or empty
	AuthSecret string // token, or "user:pass" for basic
	TimeoutSec int
}

// RemoteResolver fetches procedures from an external retrieval service.
type RemoteResolver struct {
	cfg          RemoteConfig
	httpClient   *http.Client
	validateOpts []urlvalidation.Option
}

// NewRemoteResolver creates a resolver that POSTs issue descriptions to a
// retrieval service and decodes the returned procedure.
func NewRemoteResolver(cfg RemoteConfig, validateOpts ...urlvalidation.Option) *RemoteResolver {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteResolver{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		validateOpts: validateOpts,
	}
}

type retrievalRequest struct {
	Issue       string `json:"issue"`
	ModelNumber string `json:"model_number,omitempty"`
}

// Resolve POSTs the issue to the retrieval service, decodes the procedure
// and validates it before handing it to the engine.
func (r *RemoteResolver) Resolve(ctx context.Context, issue, modelNumber string) (*procedure.Definition, error) {
	if err := urlvalidation.Validate(r.cfg.URL, r.validateOpts...); err != nil {
		return nil, fmt.Errorf("retrieval URL validation: %w", err)
	}

	body, err := json.Marshal(retrievalRequest{Issue: issue, ModelNumber: modelNumber})
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch r.cfg.AuthType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+r.cfg.AuthSecret)
	case "basic":
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(r.cfg.AuthSecret)))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	// Drain remainder for connection reuse.
	io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read retrieval response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("retrieval service returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var def procedure.Definition
	if err := json.Unmarshal(respBody, &def); err != nil {
		return nil, fmt.Errorf("unmarshal procedure: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("retrieved procedure invalid: %w", err)
	}

	return &def, nil
}
