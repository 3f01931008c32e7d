package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// JSON returns a Fetcher that GETs url and decodes the response body as
// JSON into T. A nil client uses http.DefaultClient.
func JSON[T any](client *http.Client, url string) Fetcher[T] {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (T, error) {
		var out T

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return out, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return out, err
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			return out, fmt.Errorf("resource: GET %s: unexpected status %s", url, resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return out, fmt.Errorf("resource: GET %s: decode: %w", url, err)
		}
		return out, nil
	}
}
