package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"voicedesk/internal/config"
	"voicedesk/internal/voice"
)

// TwilioProvider adapts the Twilio REST API to the Provider boundary. The
// outbound leg is dialed directly into the conversation's conference with the
// agent label, so the conference webhooks see the same vocabulary for both
// directions.
type TwilioProvider struct {
	client *twilio.RestClient
	cfg    config.TwilioConfig
}

func NewTwilioProvider(cfg config.TwilioConfig) (*TwilioProvider, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio credentials not configured")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioProvider{client: client, cfg: cfg}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

// HealthCheck verifies the credentials against the account's number inventory.
// The twilio-go client does not take a context; the ctx parameter is kept for
// boundary symmetry.
func (p *TwilioProvider) HealthCheck(_ context.Context) error {
	params := &twilioapi.ListIncomingPhoneNumberParams{}
	params.SetLimit(1)
	if _, err := p.client.Api.ListIncomingPhoneNumber(params); err != nil {
		return fmt.Errorf("telephony: twilio health check failed: %w", err)
	}
	return nil
}

func (p *TwilioProvider) InitiateCall(_ context.Context, req voice.DialRequest) (voice.DialResult, error) {
	if req.To == "" || req.From == "" || req.ConferenceName == "" {
		return voice.DialResult{}, errors.New("telephony: dial request incomplete")
	}

	twiml, err := ConferenceTwiML(req.ConferenceName, "caller", p.ConferenceCallbackURL())
	if err != nil {
		return voice.DialResult{}, err
	}

	params := &twilioapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetTwiml(twiml)

	resp, err := p.client.Api.CreateCall(params)
	if err != nil {
		return voice.DialResult{}, fmt.Errorf("telephony: create call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return voice.DialResult{}, errors.New("telephony: create call returned no sid")
	}
	return voice.DialResult{CallSid: *resp.Sid}, nil
}

// ConferenceCallbackURL is where the provider posts conference lifecycle
// events.
func (p *TwilioProvider) ConferenceCallbackURL() string {
	return p.cfg.StatusCallbackBase + "/webhooks/voice/conference"
}
