// Package fetch retrieves SPI documents and logo media from ranked
// candidate servers with per-source failure isolation.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dabtools/epgdc/internal/spi"
)

// maxBodySize bounds any fetched payload.
const maxBodySize = 16 * 1024 * 1024

// Outcome tags the result of a document fetch so every call site's
// recovery policy is visible at the type level.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Fetcher performs single-attempt HTTP document retrieval. Each candidate
// server is tried exactly once per document; redundancy comes solely from
// the caller advancing to the next ranked candidate.
type Fetcher struct {
	client *http.Client
	creds  Credentials
}

// New returns a fetcher with the given per-request timeout and credential
// map (which may be nil).
func New(timeout time.Duration, creds Credentials) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		creds:  creds,
	}
}

// Document retrieves one document. A 404 yields (nil, NotFound, nil):
// it is an expected condition, not an error. All other failures yield
// Failed with a classified *SourceError.
func (f *Fetcher) Document(ctx context.Context, url string) ([]byte, Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Failed, &SourceError{Sentinel: ErrTransport, URL: url, Err: err}
	}
	if cred, ok := f.creds.ForURL(url); ok {
		req.Header.Set("Authorization", "Bearer "+cred)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, Failed, &SourceError{Sentinel: ErrTransport, URL: url, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusNotFound:
		return nil, NotFound, nil
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, Failed, &SourceError{Sentinel: ErrAuthorization, URL: url, Status: res.StatusCode}
	case res.StatusCode >= 500:
		return nil, Failed, &SourceError{Sentinel: ErrUpstream, URL: url, Status: res.StatusCode}
	default:
		return nil, Failed, &SourceError{Sentinel: ErrTransport, URL: url, Status: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, Failed, &SourceError{Sentinel: ErrTransport, URL: url, Err: err}
	}
	return body, Found, nil
}

// ServiceInformation fetches and decodes an SI document, returning only
// the services whose bearers intersect the requested multiplex bearers.
// Zero matching services is a successful, empty result.
func (f *Fetcher) ServiceInformation(ctx context.Context, url string, bearers []spi.Bearer) ([]spi.Service, Outcome, error) {
	body, outcome, err := f.Document(ctx, url)
	if outcome != Found {
		return nil, outcome, err
	}
	si, err := spi.UnmarshalSI(body)
	if err != nil {
		return nil, Failed, &SourceError{Sentinel: ErrMalformed, URL: url, Err: err}
	}
	var matched []spi.Service
	for _, svc := range si.Services {
		if spi.IntersectsMultiplex(svc.Bearers, bearers) {
			matched = append(matched, svc)
		}
	}
	return matched, Found, nil
}

// ProgrammeInformation fetches and decodes a PI document.
func (f *Fetcher) ProgrammeInformation(ctx context.Context, url string) (*spi.ScheduleDocument, Outcome, error) {
	body, outcome, err := f.Document(ctx, url)
	if outcome != Found {
		return nil, outcome, err
	}
	doc, err := spi.UnmarshalPI(body)
	if err != nil {
		return nil, Failed, &SourceError{Sentinel: ErrMalformed, URL: url, Err: err}
	}
	return doc, Found, nil
}

// BaseURL builds the scheme://host:port prefix for a candidate server.
func BaseURL(target string, port uint16, secured bool) string {
	scheme := "http"
	if secured {
		scheme = "https"
	}
	if port == 0 || (secured && port == 443) || (!secured && port == 80) {
		return fmt.Sprintf("%s://%s", scheme, target)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, target, port)
}
