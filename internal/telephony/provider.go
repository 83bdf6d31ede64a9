package telephony

import (
	"context"

	"voicedesk/internal/voice"
)

// Provider is the provider-agnostic telephony boundary.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Request/response types stay provider-agnostic; raw provider payloads
//   belong in call-state metadata, never in domain types.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// InitiateCall originates the outbound leg into a conference. The side
	// effect is real (a phone rings); callers must not retry on ambiguous
	// failure.
	InitiateCall(ctx context.Context, req voice.DialRequest) (voice.DialResult, error)
}
