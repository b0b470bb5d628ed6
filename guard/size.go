package guard

import (
	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// SizeGuard rejects payloads above the provider's configured byte budget.
// A zero budget disables the check.
type SizeGuard struct{}

func (SizeGuard) Check(payload []byte, provider core.ProviderConfig) error {
	if provider.MaxPayloadBytes <= 0 {
		return nil
	}
	if len(payload) > provider.MaxPayloadBytes {
		return core.NewPayloadTooLargeError(provider.Name, len(payload), provider.MaxPayloadBytes)
	}
	return nil
}
