package verifiers

import (
	"github.com/google/uuid"
)

// GenericVerifier accepts any delivery. It serves internal or custom
// providers whose authenticity is enforced by the endpoint token alone.
type GenericVerifier struct{}

func (GenericVerifier) Name() string {
	return "generic"
}

func (GenericVerifier) Verify([]byte, map[string]string, Config) bool {
	return true
}

// ExtractEventID prefers the payload id and otherwise mints a fresh UUID.
// A minted id never collides, so deliveries without ids are never deduped;
// providers that need dedupe must send an id.
func (GenericVerifier) ExtractEventID(body map[string]any, headers map[string]string) (string, bool) {
	if id, ok := stringField(body, "id"); ok {
		return id, true
	}
	if id, ok := stringField(body, "event_id"); ok {
		return id, true
	}
	return uuid.NewString(), true
}

func (GenericVerifier) ExtractEventType(body map[string]any, _ map[string]string) (string, bool) {
	if eventType, ok := stringField(body, "type"); ok {
		return eventType, true
	}
	if eventType, ok := stringField(body, "event"); ok {
		return eventType, true
	}
	return "webhook.received", true
}

func (GenericVerifier) ExtractTimestamp(map[string]string) (int64, bool) {
	return 0, false
}
