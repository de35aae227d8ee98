package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPUserDirectory asks the identity service whether a user exists.
type HTTPUserDirectory struct {
	client  *http.Client
	baseURL string
}

func NewHTTPUserDirectory(baseURL string) *HTTPUserDirectory {
	return &HTTPUserDirectory{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: baseURL,
	}
}

func (d *HTTPUserDirectory) Exists(ctx context.Context, userID int64) (bool, error) {
	url := fmt.Sprintf("%s/v1/users/%d", d.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("user directory: unexpected status %d", resp.StatusCode)
	}
}

// StaticUserDirectory accepts every user id. Used when no directory URL is
// configured (single-tenant deployments) and in tests.
type StaticUserDirectory struct{}

func (StaticUserDirectory) Exists(ctx context.Context, userID int64) (bool, error) {
	return userID > 0, nil
}
