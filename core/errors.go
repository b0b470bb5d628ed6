package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	HookErrorUnknownProvider  = "HOOK_UNKNOWN_PROVIDER"
	HookErrorProviderInactive = "HOOK_PROVIDER_INACTIVE"
	HookErrorInvalidToken     = "HOOK_INVALID_TOKEN"
	HookErrorInvalidSignature = "HOOK_INVALID_SIGNATURE"
	HookErrorRateLimited      = "HOOK_RATE_LIMITED"
	HookErrorPayloadTooLarge  = "HOOK_PAYLOAD_TOO_LARGE"
	HookErrorInvalidJSON      = "HOOK_INVALID_JSON"
	HookErrorTimestampWindow  = "HOOK_TIMESTAMP_WINDOW"
	HookErrorBadInput         = "HOOK_BAD_INPUT"
	HookErrorNotFound         = "HOOK_NOT_FOUND"
	HookErrorConflict         = "HOOK_CONFLICT"
	HookErrorInternal         = "HOOK_INTERNAL_ERROR"
)

// Client-facing messages are part of the response contract; transports must
// echo them verbatim.
const (
	MessageUnknownProvider  = "Unknown provider"
	MessageProviderInactive = "Provider is inactive"
	MessageInvalidToken     = "Invalid token"
	MessageInvalidSignature = "Invalid signature"
	MessageRateLimited      = "Rate limit exceeded"
	MessagePayloadTooLarge  = "Payload too large"
	MessageInvalidJSON      = "Invalid JSON"
	MessageTimestampWindow  = "Timestamp outside tolerance window"
)

func NewUnknownProviderError(provider string) *goerrors.Error {
	return goerrors.New(MessageUnknownProvider, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(HookErrorUnknownProvider).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider)})
}

func NewProviderInactiveError(provider string) *goerrors.Error {
	return goerrors.New(MessageProviderInactive, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(HookErrorProviderInactive).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider)})
}

func NewInvalidTokenError(provider string) *goerrors.Error {
	return goerrors.New(MessageInvalidToken, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(HookErrorInvalidToken).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider)})
}

func NewInvalidSignatureError(provider string) *goerrors.Error {
	return goerrors.New(MessageInvalidSignature, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(HookErrorInvalidSignature).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider)})
}

func NewRateLimitedError(provider string, limit int) *goerrors.Error {
	return goerrors.New(MessageRateLimited, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(HookErrorRateLimited).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider), "limit": limit})
}

func NewPayloadTooLargeError(provider string, size int, max int) *goerrors.Error {
	return goerrors.New(MessagePayloadTooLarge, goerrors.CategoryBadInput).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode(HookErrorPayloadTooLarge).
		WithMetadata(map[string]any{
			"provider": strings.TrimSpace(provider),
			"size":     size,
			"max":      max,
		})
}

func NewInvalidJSONError(provider string, cause error) *goerrors.Error {
	metadata := map[string]any{"provider": strings.TrimSpace(provider)}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	return goerrors.New(MessageInvalidJSON, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(HookErrorInvalidJSON).
		WithMetadata(metadata)
}

// NewMissingEventIDError covers a verified, well-formed payload whose
// provider-specific id field is absent. The JSON itself parsed fine, so
// this is bad input, not an invalid-JSON rejection.
func NewMissingEventIDError(provider string) *goerrors.Error {
	return goerrors.New("Missing event id", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(HookErrorBadInput).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider)})
}

func NewTimestampWindowError(provider string, timestamp int64) *goerrors.Error {
	return goerrors.New(MessageTimestampWindow, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(HookErrorTimestampWindow).
		WithMetadata(map[string]any{"provider": strings.TrimSpace(provider), "timestamp": timestamp})
}

// HookErrorMapper normalizes any error into the engine envelope. Rich errors
// keep their envelope; everything else is classified by message shape the
// way the guard and store layers phrase failures.
func HookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureHookErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newHookError(err.Error(), goerrors.CategoryNotFound, HookErrorNotFound)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newHookError(err.Error(), goerrors.CategoryRateLimit, HookErrorRateLimited)
	case strings.Contains(msg, "signature"), strings.Contains(msg, "token"):
		return newHookError(err.Error(), goerrors.CategoryAuth, HookErrorInvalidSignature)
	case strings.Contains(msg, "version conflict"), strings.Contains(msg, "stale"):
		return newHookError(err.Error(), goerrors.CategoryConflict, HookErrorConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newHookError(err.Error(), goerrors.CategoryBadInput, HookErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureHookErrorEnvelope(mapped)
}

func newHookError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureHookErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureHookErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = hookHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultHookTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultHookTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return HookErrorBadInput
	case goerrors.CategoryNotFound:
		return HookErrorNotFound
	case goerrors.CategoryAuth:
		return HookErrorInvalidToken
	case goerrors.CategoryAuthz:
		return HookErrorProviderInactive
	case goerrors.CategoryConflict:
		return HookErrorConflict
	case goerrors.CategoryRateLimit:
		return HookErrorRateLimited
	default:
		return HookErrorInternal
	}
}

func hookHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
