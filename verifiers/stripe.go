package verifiers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeVerifier implements the timestamped signature scheme: the header
// carries t=<unix> plus one or more v1=<hex hmac> entries (v0 for legacy
// endpoints), and the signed message is "<t>.<body>". Any matching listed
// signature passes.
type StripeVerifier struct{}

func (StripeVerifier) Name() string {
	return "stripe"
}

func (StripeVerifier) Verify(payload []byte, headers map[string]string, cfg Config) bool {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return false
	}
	timestamp, signatures := parseStripeSignatureHeader(headerValue(headers, stripeSignatureHeader))
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	for _, signature := range signatures {
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return true
		}
	}
	return false
}

func (StripeVerifier) ExtractEventID(body map[string]any, _ map[string]string) (string, bool) {
	return stringField(body, "id")
}

func (StripeVerifier) ExtractEventType(body map[string]any, _ map[string]string) (string, bool) {
	return stringField(body, "type")
}

func (StripeVerifier) ExtractTimestamp(headers map[string]string) (int64, bool) {
	timestamp, _ := parseStripeSignatureHeader(headerValue(headers, stripeSignatureHeader))
	if timestamp == "" {
		return 0, false
	}
	parsed, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseStripeSignatureHeader(header string) (string, []string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "t":
			timestamp = value
		case "v1", "v0":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	return timestamp, signatures
}
