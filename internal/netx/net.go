// Package netx holds the plain-HTTP helpers used for audio downloads and
// the remote config document.
package netx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPStatusError is returned for any non-2xx response. Error() yields the
// status text alone ("404 Not Found") so it can be shown to users as is.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// OpenGet issues a GET and returns the response body with its advertised
// length (-1 when unknown). The caller must close the body. For non-2xx
// responses the body is drained and an *HTTPStatusError is returned.
func OpenGet(ctx context.Context, client *http.Client, url string) (io.ReadCloser, int64, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, 0, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp.Body, resp.ContentLength, nil
}

// GetJSON fetches url and decodes the JSON body into v.
func GetJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, _, err := OpenGet(ctx, client, url)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
