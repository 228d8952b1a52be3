// Package webhooks verifies inbound transport signatures and decodes
// provider payloads into normalized envelopes.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/goliatone/go-concierge/core"
)

const (
	TransportChannel  = "channel"
	TransportPayments = "payments"
)

// Request carries the pieces of an inbound HTTP delivery that verification
// needs: the raw body and the headers as received.
type Request struct {
	Transport string
	Headers   map[string]string
	Body      []byte
}

type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// HeaderHMACVerifier checks an HMAC-SHA256 signature computed over the raw
// request body against a header value. Verification is pure: the same body
// and signature always yield the same outcome.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req Request) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return &core.SignatureError{Transport: req.Transport, Detail: "missing " + strings.TrimSpace(v.Header) + " header"}
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return &core.SignatureError{Transport: req.Transport, Detail: "verifier secret is not configured"}
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return &core.SignatureError{Transport: req.Transport, Detail: "empty signature value"}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return &core.SignatureError{Transport: req.Transport, Detail: "undecodable base64 signature"}
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return &core.SignatureError{Transport: req.Transport, Detail: "digest mismatch"}
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return &core.SignatureError{Transport: req.Transport, Detail: "undecodable hex signature"}
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return &core.SignatureError{Transport: req.Transport, Detail: "digest mismatch"}
		}
	}
	return nil
}

// Template binds a transport kind to its verifier.
type Template struct {
	Transport string
	Verifier  Verifier
}

// NewChannelTemplate verifies the messaging channel's deliveries: hex
// HMAC-SHA256 in X-Hub-Signature-256 with a sha256= prefix.
func NewChannelTemplate(secret string) Template {
	return Template{
		Transport: TransportChannel,
		Verifier: HeaderHMACVerifier{
			Header:   "X-Hub-Signature-256",
			Prefix:   "sha256=",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
	}
}

// NewPaymentsTemplate verifies the payment provider's callbacks: hex
// HMAC-SHA256 in X-Payment-Signature.
func NewPaymentsTemplate(secret string) Template {
	return Template{
		Transport: TransportPayments,
		Verifier: HeaderHMACVerifier{
			Header:   "X-Payment-Signature",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
	}
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
