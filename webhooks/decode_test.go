package webhooks

import (
	"testing"
	"time"
)

func TestDecodeChannelMessage_Text(t *testing.T) {
	body := []byte(`{
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "1 (555) 000-0000", "timestamp": "1700000000", "type": "text", "text": {"body": "help"}}
		]}}]}]
	}`)

	env, ok := DecodeChannelMessage(body)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if env.Sender != "+15550000000" {
		t.Fatalf("sender not normalized: %q", env.Sender)
	}
	if env.Body != "help" || env.MediaURL != "" {
		t.Fatalf("unexpected body/media: %q %q", env.Body, env.MediaURL)
	}
	if !env.ReceivedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("unexpected timestamp: %v", env.ReceivedAt)
	}
}

func TestDecodeChannelMessage_MediaSubtypes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"image", `{"entry":[{"changes":[{"value":{"messages":[{"from":"15550000000","timestamp":"1700000000","type":"image","image":{"link":"https://cdn.example/a.jpg","caption":"receipt"}}]}}]}]}`},
		{"video", `{"entry":[{"changes":[{"value":{"messages":[{"from":"15550000000","timestamp":"1700000000","type":"video","video":{"link":"https://cdn.example/a.jpg","caption":"receipt"}}]}}]}]}`},
		{"document", `{"entry":[{"changes":[{"value":{"messages":[{"from":"15550000000","timestamp":"1700000000","type":"document","document":{"link":"https://cdn.example/a.jpg","caption":"receipt"}}]}}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, ok := DecodeChannelMessage([]byte(tc.body))
			if !ok {
				t.Fatalf("expected decode to succeed")
			}
			if env.MediaURL != "https://cdn.example/a.jpg" {
				t.Fatalf("media not normalized: %q", env.MediaURL)
			}
			if env.Body != "receipt" {
				t.Fatalf("caption not carried: %q", env.Body)
			}
		})
	}
}

func TestDecodeChannelMessage_UnsupportedSubtype(t *testing.T) {
	body := []byte(`{"entry":[{"changes":[{"value":{"messages":[
		{"from":"15550000000","timestamp":"1700000000","type":"sticker"}
	]}}]}]}`)

	env, ok := DecodeChannelMessage(body)
	if !ok {
		t.Fatalf("unsupported subtype must still decode")
	}
	if env.Body != "" || env.MediaURL != "" {
		t.Fatalf("unsupported subtype must carry no body or media")
	}
}

func TestDecodeChannelMessage_MissingMessagesNode(t *testing.T) {
	cases := []string{
		`{}`,
		`{"entry":[]}`,
		`{"entry":[{"changes":[]}]}`,
		`{"entry":[{"changes":[{"value":{}}]}]}`,
		`not json`,
	}
	for _, body := range cases {
		if _, ok := DecodeChannelMessage([]byte(body)); ok {
			t.Fatalf("expected ok=false for %s", body)
		}
	}
}

func TestDecodeChannelMessage_InvalidTimestampFailsDecode(t *testing.T) {
	body := []byte(`{"entry":[{"changes":[{"value":{"messages":[
		{"from":"15550000000","timestamp":"yesterday","type":"text","text":{"body":"hi"}}
	]}}]}]}`)
	if _, ok := DecodeChannelMessage(body); ok {
		t.Fatalf("invalid timestamp must fail decode")
	}
}

func TestClassifyPaymentEvent(t *testing.T) {
	kind, data, ok := ClassifyPaymentEvent([]byte(`{"type":"payment.created","data":{"customer_phone":"15550000000","amount":2500}}`))
	if !ok || kind != "payment.created" {
		t.Fatalf("expected payment.created, got %q ok=%v", kind, ok)
	}
	if data["customer_phone"] != "15550000000" {
		t.Fatalf("event object not carried: %v", data)
	}

	if _, _, ok := ClassifyPaymentEvent([]byte(`{"data":{}}`)); ok {
		t.Fatalf("missing type tag must report ok=false")
	}
	if _, _, ok := ClassifyPaymentEvent([]byte(`nope`)); ok {
		t.Fatalf("unparseable payload must report ok=false")
	}
}
