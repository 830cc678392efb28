package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const discordMaxMessageLength = 2000

type discordPayload struct {
	Content string `json:"content"`
}

// Discord posts reports to a Discord-style incoming webhook. Sends are
// rate-limited and non-blocking: Report launches a goroutine and returns
// immediately, logging send failures rather than propagating them.
type Discord struct {
	webhookURL string
	timeout    time.Duration
	logger     *slog.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewDiscord(webhookURL string, timeout time.Duration, logger *slog.Logger) *Discord {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Discord{
		webhookURL: webhookURL,
		timeout:    timeout,
		logger:     logger,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

var _ Reporter = (*Discord)(nil)

func (d *Discord) Report(_ context.Context, err error, fields map[string]any) {
	if !d.limiter.Allow() {
		d.logger.Warn("reporter: rate limit reached, dropping report", "error", err)
		return
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		body := discordPayload{Content: formatReport(err, fields)}
		jsonBody, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			d.logger.Error("reporter: failed to marshal payload", "error", marshalErr)
			return
		}

		req, reqErr := http.NewRequestWithContext(sendCtx, http.MethodPost, d.webhookURL, bytes.NewReader(jsonBody))
		if reqErr != nil {
			d.logger.Error("reporter: failed to build request", "error", reqErr)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := d.httpClient.Do(req)
		if doErr != nil {
			d.logger.Error("reporter: webhook send failed", "error", doErr)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			d.logger.Error("reporter: webhook returned non-2xx", "status", resp.StatusCode)
		}
	}()
}

func formatReport(err error, fields map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**error**: %s\n", err.Error())

	for k, v := range fields {
		if v == nil {
			continue
		}
		fmt.Fprintf(&b, "> %s: `%v`\n", k, v)
	}

	content := b.String()
	if len(content) > discordMaxMessageLength {
		return content[:discordMaxMessageLength-3] + "..."
	}
	return content
}
