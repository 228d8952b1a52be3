package webhooks

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-concierge/core"
)

type channelPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []channelMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type channelMessage struct {
	From      string        `json:"from"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *channelText  `json:"text"`
	Image     *channelMedia `json:"image"`
	Video     *channelMedia `json:"video"`
	Document  *channelMedia `json:"document"`
}

type channelText struct {
	Body string `json:"body"`
}

type channelMedia struct {
	Link    string `json:"link"`
	Caption string `json:"caption"`
}

// DecodeChannelMessage walks the channel payload down to the first message
// and normalizes it. A missing node reports ok=false rather than an error
// so the caller can answer with a client error and stop. Unsupported
// message subtypes still decode, with an empty body and no media.
func DecodeChannelMessage(body []byte) (core.Envelope, bool) {
	var payload channelPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Envelope{}, false
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return core.Envelope{}, false
	}
	messages := payload.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return core.Envelope{}, false
	}
	message := messages[0]

	sender := core.NormalizeSenderID(message.From)
	if sender == "" {
		return core.Envelope{}, false
	}

	epoch, err := strconv.ParseInt(strings.TrimSpace(message.Timestamp), 10, 64)
	if err != nil {
		return core.Envelope{}, false
	}

	env := core.Envelope{
		Sender:     sender,
		ReceivedAt: time.Unix(epoch, 0).UTC(),
	}
	switch strings.ToLower(strings.TrimSpace(message.Type)) {
	case "text":
		if message.Text != nil {
			env.Body = message.Text.Body
		}
	case "image":
		env.Body, env.MediaURL = mediaFields(message.Image)
	case "video":
		env.Body, env.MediaURL = mediaFields(message.Video)
	case "document":
		env.Body, env.MediaURL = mediaFields(message.Document)
	}
	return env, true
}

func mediaFields(media *channelMedia) (body, url string) {
	if media == nil {
		return "", ""
	}
	return media.Caption, strings.TrimSpace(media.Link)
}

type paymentEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ClassifyPaymentEvent reads the provider's type tag and returns the event
// object. ok=false means the payload is not parseable or carries no type;
// recognizing the kind is the caller's decision.
func ClassifyPaymentEvent(body []byte) (string, map[string]any, bool) {
	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return "", nil, false
	}
	kind := strings.TrimSpace(event.Type)
	if kind == "" {
		return "", nil, false
	}
	return kind, event.Data, true
}
