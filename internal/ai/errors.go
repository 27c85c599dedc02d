package ai

import "github.com/kiranshivaraju/cardiotriage/internal/ai/transport"

// Provider failures. Every provider wraps one of these so callers can use errors.Is.
var (
	ErrProviderUnavailable = transport.ErrProviderUnavailable
	ErrInferenceTimeout    = transport.ErrInferenceTimeout
	ErrInvalidResponse     = transport.ErrInvalidResponse
)
