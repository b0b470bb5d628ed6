package verifiers

import "strings"

var paypalTransmissionHeaders = []string{
	"PAYPAL-TRANSMISSION-ID",
	"PAYPAL-TRANSMISSION-TIME",
	"PAYPAL-TRANSMISSION-SIG",
	"PAYPAL-CERT-URL",
}

// PayPalVerifier checks that the transmission headers are present. Full
// certificate-chain validation needs a round trip to the provider's
// verification API and is deliberately out of the hot path; deploys that
// need it wrap this verifier with one that calls the API.
type PayPalVerifier struct{}

func (PayPalVerifier) Name() string {
	return "paypal"
}

func (PayPalVerifier) Verify(_ []byte, headers map[string]string, _ Config) bool {
	for _, header := range paypalTransmissionHeaders {
		if strings.TrimSpace(headerValue(headers, header)) == "" {
			return false
		}
	}
	return true
}

func (PayPalVerifier) ExtractEventID(body map[string]any, _ map[string]string) (string, bool) {
	return stringField(body, "id")
}

func (PayPalVerifier) ExtractEventType(body map[string]any, _ map[string]string) (string, bool) {
	return stringField(body, "event_type")
}

func (PayPalVerifier) ExtractTimestamp(map[string]string) (int64, bool) {
	return 0, false
}
