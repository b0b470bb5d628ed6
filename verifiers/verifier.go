package verifiers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config carries the per-provider inputs a verifier needs. Secret is the
// shared signing key; NotificationURL participates in schemes that sign the
// destination endpoint alongside the body.
type Config struct {
	Secret          string
	NotificationURL string
}

// Verifier authenticates one provider's deliveries and knows how to pull
// identity fields out of them. Verify is a pure boolean check over the raw
// body bytes; policy around missing secrets lives with the caller.
type Verifier interface {
	Name() string
	Verify(payload []byte, headers map[string]string, cfg Config) bool
	ExtractEventID(body map[string]any, headers map[string]string) (string, bool)
	ExtractEventType(body map[string]any, headers map[string]string) (string, bool)
	ExtractTimestamp(headers map[string]string) (int64, bool)
}

// Registry resolves verifier implementations by name.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// DefaultRegistry returns a registry preloaded with the built-in verifiers.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	for _, verifier := range []Verifier{
		StripeVerifier{},
		SquareVerifier{},
		PayPalVerifier{},
		GenericVerifier{},
	} {
		_ = registry.Register(verifier)
	}
	return registry
}

func (r *Registry) Register(verifier Verifier) error {
	if r == nil {
		return fmt.Errorf("verifiers: registry is nil")
	}
	if verifier == nil {
		return fmt.Errorf("verifiers: verifier is nil")
	}
	name := strings.TrimSpace(strings.ToLower(verifier.Name()))
	if name == "" {
		return fmt.Errorf("verifiers: verifier name is required")
	}
	r.mu.Lock()
	r.verifiers[name] = verifier
	r.mu.Unlock()
	return nil
}

func (r *Registry) Resolve(name string) (Verifier, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	verifier, ok := r.verifiers[strings.TrimSpace(strings.ToLower(name))]
	r.mu.RUnlock()
	return verifier, ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return value
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	for name, value := range headers {
		if strings.ToLower(strings.TrimSpace(name)) == lower {
			return value
		}
	}
	return ""
}

func stringField(body map[string]any, key string) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	raw, ok := body[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
