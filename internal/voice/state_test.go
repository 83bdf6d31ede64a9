package voice

import (
	"reflect"
	"testing"
)

func TestLoadApplyRoundTrip(t *testing.T) {
	attrs := map[string]any{}
	st := CallState{
		Status:            StatusInProgress,
		Direction:         DirectionOutbound,
		CallSid:           "CA123",
		ConferenceID:      "conf_account_7_conv_42",
		AgentID:           9,
		RequiresAgentJoin: true,
		EventPending:      true,
		AgentJoinedAt:     1700000001,
		CallerJoinedAt:    1700000005,
		SchemaVersion:     CallStateSchemaVersion,
	}
	st.Apply(attrs)

	got := Load(attrs)
	if !reflect.DeepEqual(got, st) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, st)
	}
}

func TestLoadDefaults(t *testing.T) {
	got := Load(nil)
	if got.Status != StatusNone {
		t.Fatalf("status = %q, want none", got.Status)
	}
	if got.SchemaVersion != CallStateSchemaVersion {
		t.Fatalf("schema version = %d, want %d", got.SchemaVersion, CallStateSchemaVersion)
	}

	got = Load(map[string]any{
		"call_status":    "warp_drive",
		"call_direction": "sideways",
	})
	if got.Status != StatusNone || got.Direction != "" {
		t.Fatalf("malformed values must degrade to zero, got %+v", got)
	}
}

func TestLoadHonorsLegacyConferenceAlias(t *testing.T) {
	attrs := map[string]any{"conference_sid": "conf_account_1_conv_2"}
	if got := Load(attrs).ConferenceID; got != "conf_account_1_conv_2" {
		t.Fatalf("conference id = %q, want legacy alias value", got)
	}

	// Canonical key wins when both are present.
	attrs["conference_id"] = "conf_account_1_conv_3"
	if got := Load(attrs).ConferenceID; got != "conf_account_1_conv_3" {
		t.Fatalf("conference id = %q, want canonical value", got)
	}
}

func TestApplyDropsLegacyConferenceAlias(t *testing.T) {
	attrs := map[string]any{"conference_sid": "conf_account_1_conv_2"}
	st := Load(attrs)
	st.Apply(attrs)

	if _, ok := attrs["conference_sid"]; ok {
		t.Fatal("conference_sid must be removed on write")
	}
	if attrs["conference_id"] != "conf_account_1_conv_2" {
		t.Fatalf("conference_id = %v, want migrated alias value", attrs["conference_id"])
	}
}

func TestLoadCoercesJSONNumbers(t *testing.T) {
	// JSON round-trips numbers as float64.
	attrs := map[string]any{
		"agent_joined_at": float64(1700000001),
		"agent_id":        float64(5),
	}
	st := Load(attrs)
	if st.AgentJoinedAt != 1700000001 || st.AgentID != 5 {
		t.Fatalf("numeric coercion failed: %+v", st)
	}
}

func TestConferenceNameDeterminism(t *testing.T) {
	a := ConferenceName(7, 42)
	b := ConferenceName(7, 42)
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}
	if a != "conf_account_7_conv_42" {
		t.Fatalf("name = %q", a)
	}

	accountID, displayID, ok := ParseConferenceName(a)
	if !ok || accountID != 7 || displayID != 42 {
		t.Fatalf("parse(%q) = %d, %d, %v", a, accountID, displayID, ok)
	}
}

func TestParseConferenceNameRejectsGarbage(t *testing.T) {
	for _, name := range []string{
		"",
		"conf_account_x_conv_1",
		"conf_account_1_conv_",
		"conference_1_2",
		"conf_account_1_conv_2_extra",
	} {
		if _, _, ok := ParseConferenceName(name); ok {
			t.Errorf("ParseConferenceName(%q) accepted", name)
		}
	}
}

func TestEnsureConferenceSelfHeals(t *testing.T) {
	st := CallState{}
	if !st.EnsureConference(7, 42) {
		t.Fatal("missing identifier must be regenerated")
	}
	if st.ConferenceID != "conf_account_7_conv_42" {
		t.Fatalf("conference id = %q", st.ConferenceID)
	}
	if st.EnsureConference(7, 42) {
		t.Fatal("valid identifier must not be regenerated")
	}

	st.ConferenceID = "garbage"
	if !st.EnsureConference(7, 42) {
		t.Fatal("malformed identifier must be regenerated")
	}
}

func TestJoinTimestampsWriteOnce(t *testing.T) {
	st := CallState{}
	st.MarkAgentJoined(100)
	st.MarkAgentJoined(200)
	st.MarkCallerJoined(300)
	st.MarkCallerJoined(400)
	if st.AgentJoinedAt != 100 || st.CallerJoinedAt != 300 {
		t.Fatalf("timestamps overwritten: agent=%d caller=%d", st.AgentJoinedAt, st.CallerJoinedAt)
	}
}

func TestResetAttemptKeepsConference(t *testing.T) {
	st := CallState{
		Status:            StatusEnded,
		CallSid:           "CA1",
		ConferenceID:      ConferenceName(1, 2),
		AgentJoinedAt:     10,
		CallerJoinedAt:    20,
		RequiresAgentJoin: true,
		AgentID:           3,
	}
	st.ResetAttempt()
	if st.Status != StatusNone || st.CallSid != "" || st.AgentJoinedAt != 0 || st.CallerJoinedAt != 0 || st.RequiresAgentJoin || st.AgentID != 0 {
		t.Fatalf("attempt fields not cleared: %+v", st)
	}
	if st.ConferenceID != ConferenceName(1, 2) {
		t.Fatal("conference identifier must survive a reset")
	}
}

func TestUIStatusMapping(t *testing.T) {
	cases := map[CallStatus]string{
		StatusInitiated:  "ringing",
		StatusRinging:    "ringing",
		StatusInProgress: "connected",
		StatusEnded:      "ended",
		StatusNoAnswer:   "no_answer",
	}
	for status, want := range cases {
		if got := status.UIStatus(); got != want {
			t.Errorf("UIStatus(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []CallStatus{StatusNone, StatusInitiated, StatusRinging, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []CallStatus{StatusEnded, StatusNoAnswer} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestClassifyParticipant(t *testing.T) {
	cases := map[string]ParticipantRole{
		"agent":      RoleAgent,
		"agent_42":   RoleAgent,
		"caller":     RoleCaller,
		"caller-leg": RoleCaller,
		"observer":   RoleUnknown,
		"":           RoleUnknown,
	}
	for label, want := range cases {
		if got := ClassifyParticipant(label); got != want {
			t.Errorf("ClassifyParticipant(%q) = %v, want %v", label, got, want)
		}
	}
}
