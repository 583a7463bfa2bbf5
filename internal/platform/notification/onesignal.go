package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const DefaultOneSignalURL = "https://api.onesignal.com/notifications"

// OneSignalSender posts notifications to the OneSignal REST API, addressing
// users by their external_id alias.
type OneSignalSender struct {
	appID  string
	apiKey string
	url    string
	client *http.Client
}

// OneSignalOption configures a OneSignalSender.
type OneSignalOption func(*OneSignalSender)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) OneSignalOption {
	return func(s *OneSignalSender) { s.client = c }
}

// WithAPIURL overrides the notifications endpoint.
func WithAPIURL(url string) OneSignalOption {
	return func(s *OneSignalSender) {
		if url != "" {
			s.url = url
		}
	}
}

func NewOneSignalSender(appID, apiKey string, opts ...OneSignalOption) *OneSignalSender {
	s := &OneSignalSender{
		appID:  appID,
		apiKey: apiKey,
		url:    DefaultOneSignalURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type oneSignalRequest struct {
	AppID          string              `json:"app_id"`
	Headings       map[string]string   `json:"headings"`
	Contents       map[string]string   `json:"contents"`
	IncludeAliases map[string][]string `json:"include_aliases"`
	TargetChannel  string              `json:"target_channel"`
}

type oneSignalResponse struct {
	ID     string          `json:"id"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

func localized(lang, text string) map[string]string {
	// OneSignal rejects notifications without an English entry.
	m := map[string]string{"en": text}
	if lang != "" && lang != "en" {
		m[lang] = text
	}
	return m
}

// SendPush implements PushSender.
func (s *OneSignalSender) SendPush(ctx context.Context, msg PushMessage) error {
	payload, err := json.Marshal(oneSignalRequest{
		AppID:          s.appID,
		Headings:       localized(msg.Language, msg.Title),
		Contents:       localized(msg.Language, msg.Body),
		IncludeAliases: map[string][]string{"external_id": {msg.ExternalID}},
		TargetChannel:  "push",
	})
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrDispatchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: onesignal returned status %d: %s", ErrDispatchFailed, resp.StatusCode, body)
	}

	var out oneSignalResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrDispatchFailed, err)
	}
	// A 200 without an id means no subscription matched the alias.
	if out.ID == "" {
		return fmt.Errorf("%w: onesignal created no notification: %s", ErrDispatchFailed, out.Errors)
	}
	return nil
}

// LogPushSender logs pushes instead of sending them. Used when no push
// provider is configured.
type LogPushSender struct {
	Logger zerolog.Logger
}

func (s LogPushSender) SendPush(_ context.Context, msg PushMessage) error {
	s.Logger.Info().
		Str("external_id", msg.ExternalID).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Msg("push notification (not delivered: provider disabled)")
	return nil
}
