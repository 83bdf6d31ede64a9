package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"voicedesk/internal/voice"
)

func TestParseConferenceStatus(t *testing.T) {
	form := url.Values{
		"ConferenceSid":       {"CF123"},
		"FriendlyName":        {"conf_account_1_conv_7"},
		"StatusCallbackEvent": {"participant-join"},
		"CallSid":             {"CA1"},
		"ParticipantLabel":    {"agent_9"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/conference", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := ParseConferenceStatus(req)
	if err != nil {
		t.Fatalf("ParseConferenceStatus: %v", err)
	}
	want := ConferenceStatusPayload{
		ConferenceSid:    "CF123",
		FriendlyName:     "conf_account_1_conv_7",
		Event:            "participant-join",
		CallSid:          "CA1",
		ParticipantLabel: "agent_9",
	}
	if got != want {
		t.Fatalf("payload = %+v, want %+v", got, want)
	}

	ev := got.ConferenceEvent()
	if ev.Type != voice.EventParticipantJoin || ev.ConferenceID != "conf_account_1_conv_7" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestParseVoiceInbound(t *testing.T) {
	form := url.Values{
		"CallSid":    {"CA1"},
		"AccountSid": {"AC1"},
		"From":       {"+15550177"},
		"To":         {"+15550100"},
		"Direction":  {"inbound"},
		"CallerName": {"Grace"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := ParseVoiceInbound(req)
	if err != nil {
		t.Fatalf("ParseVoiceInbound: %v", err)
	}
	want := InboundVoicePayload{
		CallSid:    "CA1",
		AccountSid: "AC1",
		From:       "+15550177",
		To:         "+15550100",
		Direction:  "inbound",
		CallerName: "Grace",
	}
	if got != want {
		t.Fatalf("payload = %+v, want %+v", got, want)
	}
}

func TestParseVoiceInboundMissingFieldsAreEmpty(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/voice/inbound", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := ParseVoiceInbound(req)
	if err != nil {
		t.Fatal(err)
	}
	if got != (InboundVoicePayload{}) {
		t.Fatalf("payload = %+v, want zero value", got)
	}
}
