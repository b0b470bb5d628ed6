package guard

import (
	"time"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// TimeWindowValidator rejects deliveries whose signed timestamp falls
// outside the provider's tolerance on either side of now. Providers without
// timestamps and providers with zero tolerance skip the check.
type TimeWindowValidator struct {
	Now func() time.Time
}

func NewTimeWindowValidator() *TimeWindowValidator {
	return &TimeWindowValidator{
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (v *TimeWindowValidator) Check(timestamp int64, hasTimestamp bool, provider core.ProviderConfig) error {
	if provider.Tolerance <= 0 || !hasTimestamp {
		return nil
	}
	now := v.now()
	delta := now.Sub(time.Unix(timestamp, 0).UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > provider.Tolerance {
		return core.NewTimestampWindowError(provider.Name, timestamp)
	}
	return nil
}

func (v *TimeWindowValidator) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}
