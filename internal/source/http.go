package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultHTTPTimeout = 30 * time.Second

// HTTPFetcher downloads whole objects with GET.
type HTTPFetcher struct {
	client *http.Client
	// MaxBytes caps the accepted body size. Zero means unlimited.
	MaxBytes int64
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AcquisitionError{Location: location, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, &AcquisitionError{Location: location, Err: fmt.Errorf("body exceeds %d bytes", f.MaxBytes)}
	}
	return data, nil
}
