package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

// PlatformClient publishes one payload unit and returns the id the
// platform assigned to it. Errors are classified with common.Transient or
// common.Terminal.
type PlatformClient interface {
	Publish(ctx context.Context, platform string, req *transfer.RelayPublishRequest) (string, error)
}

// RelayClient talks to a publishing gateway that fronts the real platform
// APIs: POST {base}/{platform}/posts.
type RelayClient struct {
	baseURL string
	http    *http.Client
}

func NewRelayClient(baseURL string, client *http.Client) *RelayClient {
	if client == nil {
		client = &http.Client{}
	}
	return &RelayClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *RelayClient) Publish(ctx context.Context, platform string, req *transfer.RelayPublishRequest) (string, error) {
	if c.baseURL == "" {
		return "", common.Terminal(errors.New("relay base url is not configured"))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", common.Terminal(err)
	}

	url := fmt.Sprintf("%s/%s/posts", c.baseURL, platform)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", common.Terminal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Network errors and deadline hits are worth another attempt.
		return "", common.Transient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", common.Transient(err)
	}

	var out transfer.RelayPublishResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out.ID == "" {
			return "", common.Terminal(fmt.Errorf("%s: response carried no post id", platform))
		}
		return out.ID, nil
	}

	msg := out.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	statusErr := fmt.Errorf("%s: status %d: %s", platform, resp.StatusCode, msg)

	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooEarly,
		resp.StatusCode == http.StatusTooManyRequests:
		return "", common.Transient(statusErr)
	default:
		return "", common.Terminal(statusErr)
	}
}
