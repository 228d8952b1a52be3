package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-concierge/core"
)

const maxErrorBodyBytes = 4 << 10

// HTTPChannelClient posts replies to the messaging channel's graph API.
type HTTPChannelClient struct {
	apiBase       string
	phoneNumberID string
	accessToken   string
	client        *http.Client
}

func NewHTTPChannelClient(cfg core.ChannelConfig) (*HTTPChannelClient, error) {
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, fmt.Errorf("delivery: channel phone number id is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("delivery: channel access token is required")
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if apiBase == "" {
		apiBase = "https://graph.facebook.com/v19.0"
	}
	return &HTTPChannelClient{
		apiBase:       apiBase,
		phoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		accessToken:   strings.TrimSpace(cfg.AccessToken),
		client:        &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type channelTextRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             channelTextBody `json:"text"`
}

type channelTextBody struct {
	Body string `json:"body"`
}

func (c *HTTPChannelClient) SendText(ctx context.Context, recipient, text string) error {
	if c == nil {
		return fmt.Errorf("delivery: channel client is nil")
	}
	recipient = strings.TrimPrefix(core.NormalizeSenderID(recipient), "+")
	if recipient == "" {
		return fmt.Errorf("delivery: recipient is required")
	}

	payload, err := json.Marshal(channelTextRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
		Text:             channelTextBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("delivery: encode channel message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiBase, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("delivery: build channel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: send channel message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("delivery: channel API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

var _ ChannelSender = (*HTTPChannelClient)(nil)
