package telephony

import (
	"strings"
	"testing"
)

func TestConferenceTwiML(t *testing.T) {
	got, err := ConferenceTwiML("conf_account_1_conv_7", "caller", "https://api.example.com/webhooks/voice/conference")
	if err != nil {
		t.Fatalf("ConferenceTwiML: %v", err)
	}

	for _, want := range []string{
		"<Response>",
		"<Dial>",
		"conf_account_1_conv_7",
		`participantLabel="caller"`,
		`startConferenceOnEnter="true"`,
		`endConferenceOnExit="true"`,
		`statusCallback="https://api.example.com/webhooks/voice/conference"`,
		`statusCallbackEvent="start end join leave"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("twiml missing %q:\n%s", want, got)
		}
	}
	if !strings.HasPrefix(got, "<?xml") {
		t.Errorf("twiml missing xml header:\n%s", got)
	}
}

func TestConferenceTwiMLRequiresName(t *testing.T) {
	if _, err := ConferenceTwiML("", "caller", "https://x"); err == nil {
		t.Fatal("empty conference name must be rejected")
	}
}
