package telephony

import (
	"net/http"

	"voicedesk/internal/voice"
)

// Parsers for the form-encoded webhook bodies Twilio posts. Values are lifted
// verbatim into normalized types; validation happens in the call engine.

// ConferenceStatusPayload is one conference lifecycle callback.
type ConferenceStatusPayload struct {
	ConferenceSid    string
	FriendlyName     string
	Event            string
	CallSid          string
	ParticipantLabel string
}

func ParseConferenceStatus(r *http.Request) (ConferenceStatusPayload, error) {
	if err := r.ParseForm(); err != nil {
		return ConferenceStatusPayload{}, err
	}
	return ConferenceStatusPayload{
		ConferenceSid:    r.PostFormValue("ConferenceSid"),
		FriendlyName:     r.PostFormValue("FriendlyName"),
		Event:            r.PostFormValue("StatusCallbackEvent"),
		CallSid:          r.PostFormValue("CallSid"),
		ParticipantLabel: r.PostFormValue("ParticipantLabel"),
	}, nil
}

// ConferenceEvent converts the payload into the engine's normalized event.
func (p ConferenceStatusPayload) ConferenceEvent() voice.ConferenceEvent {
	return voice.ConferenceEvent{
		Type:             voice.EventType(p.Event),
		CallSid:          p.CallSid,
		ConferenceID:     p.FriendlyName,
		ParticipantLabel: p.ParticipantLabel,
	}
}

// InboundVoicePayload is the provider's notification of a caller dialing one
// of the account's numbers.
type InboundVoicePayload struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallerName string
}

func ParseVoiceInbound(r *http.Request) (InboundVoicePayload, error) {
	if err := r.ParseForm(); err != nil {
		return InboundVoicePayload{}, err
	}
	return InboundVoicePayload{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       r.PostFormValue("From"),
		To:         r.PostFormValue("To"),
		Direction:  r.PostFormValue("Direction"),
		CallerName: r.PostFormValue("CallerName"),
	}, nil
}
