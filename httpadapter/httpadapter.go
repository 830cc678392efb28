// Package httpadapter converts a claimed delivery attempt into an outbound
// HTTP request and its reply (or failure) into a recordable db.Response.
// It never raises to its caller: every failure mode becomes data.
package httpadapter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/caasmo/hookrelay/db"
)

// maxResponseBody caps how much of a reply body is retained; bytes beyond
// this are discarded by io.LimitReader, never buffered.
const maxResponseBody = 64 * 1024

// defaultTimeout bounds the whole round trip: dial, TLS, headers, body.
const defaultTimeout = 30 * time.Second

// Adapter dispatches claimed attempts over a shared, explicitly configured
// HTTP/2-capable transport, so timeout and redirect behavior is
// deterministic across HTTP/1.1 and HTTP/2 targets alike.
type Adapter struct {
	client *http.Client
}

func New() *Adapter {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	// Wire HTTP/2 explicitly rather than relying on the transport's
	// opportunistic upgrade, so behavior doesn't vary by target.
	_ = http2.ConfigureTransport(transport)
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &Adapter{
		client: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errTooManyRedirects
				}
				return nil
			},
		},
	}
}

var errTooManyRedirects = errors.New("httpadapter: stopped after 10 redirects")

// Dispatch sends target's request carrying payload/payloadContentType and
// returns a Response that is always recordable.
func (a *Adapter) Dispatch(ctx context.Context, target db.HTTPTarget, payload []byte, payloadContentType string) db.Response {
	start := time.Now()

	headers := map[string]string{}
	if target.Headers != "" {
		if err := json.Unmarshal([]byte(target.Headers), &headers); err != nil {
			return db.Response{
				ErrorKind:     db.ErrorKindInvalidHeaders,
				ElapsedTimeMs: elapsedMs(start),
			}
		}
	}

	reqURL, err := url.Parse(target.URL)
	if err != nil || !reqURL.IsAbs() {
		return db.Response{
			ErrorKind:     db.ErrorKindInvalidURL,
			ElapsedTimeMs: elapsedMs(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, bytes.NewReader(payload))
	if err != nil {
		return db.Response{
			ErrorKind:     db.ErrorKindInvalidURL,
			ElapsedTimeMs: elapsedMs(start),
		}
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", payloadContentType)
	}

	resp, err := a.client.Do(req)
	elapsed := elapsedMs(start)
	if err != nil {
		return db.Response{
			ErrorKind:     classifyTransportError(err),
			ElapsedTimeMs: elapsed,
		}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil && len(body) == 0 {
		return db.Response{
			ErrorKind:     db.ErrorKindOtherTransport,
			ElapsedTimeMs: elapsedMs(start),
		}
	}

	headerJSON, _ := json.Marshal(flattenHeaders(resp.Header))

	return db.Response{
		HTTPCode:      resp.StatusCode,
		Headers:       string(headerJSON),
		Body:          body,
		ElapsedTimeMs: elapsedMs(start),
	}
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func classifyTransportError(err error) db.ErrorKind {
	if errors.Is(err, errTooManyRedirects) {
		return db.ErrorKindTooManyRedirects
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return db.ErrorKindTimeout
		}
		if errors.Is(urlErr.Err, errTooManyRedirects) {
			return db.ErrorKindTooManyRedirects
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return db.ErrorKindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return db.ErrorKindConnectionError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return db.ErrorKindTimeout
	}

	return db.ErrorKindOtherTransport
}
