package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxResponseBody caps how much of a subscriber response is kept.
const maxResponseBody = 1024

// Response is the part of a subscriber's HTTP response that is recorded.
type Response struct {
	StatusCode int
	Body       string
}

// Sender performs one outbound webhook POST. The deadline is carried by ctx.
type Sender interface {
	Send(ctx context.Context, url string, header http.Header, body []byte) (*Response, error)
}

// Prober checks that an endpoint accepts connections.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// HTTPSender delivers webhooks over net/http. Redirects are returned as-is
// rather than followed.
type HTTPSender struct {
	client *http.Client
}

func NewHTTPSender() *HTTPSender {
	return &HTTPSender{
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (s *HTTPSender) Send(ctx context.Context, url string, header http.Header, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)

	return &Response{StatusCode: resp.StatusCode, Body: textBody(data)}, nil
}

// textBody turns a truncated response body into text a TEXT column accepts:
// a character cut at the limit is dropped, other invalid bytes become U+FFFD
// and NUL bytes are removed.
func textBody(data []byte) string {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				data = data[:i]
			}
			break
		}
	}
	s := strings.ToValidUTF8(string(data), "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// Probe issues a HEAD request. Any HTTP response counts as reachable.
func (s *HTTPSender) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
