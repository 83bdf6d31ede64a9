package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
)

// Minimal TwiML builder for conference join responses. Only the verbs this
// service answers with are modeled; no provider SDK dependency here.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlConference struct {
	Name                   string `xml:",chardata"`
	ParticipantLabel       string `xml:"participantLabel,attr,omitempty"`
	StartConferenceOnEnter string `xml:"startConferenceOnEnter,attr,omitempty"`
	EndConferenceOnExit    string `xml:"endConferenceOnExit,attr,omitempty"`
	StatusCallback         string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent    string `xml:"statusCallbackEvent,attr,omitempty"`
}

// ConferenceTwiML renders the response that drops a leg into a conference.
// The status callback subscribes to the conference lifecycle events the call
// engine consumes.
func ConferenceTwiML(conferenceName, participantLabel, statusCallbackURL string) (string, error) {
	if conferenceName == "" {
		return "", errors.New("telephony: conference name required")
	}
	r := twimlResponse{
		Verbs: []any{twimlDial{
			Conference: &twimlConference{
				Name:                   conferenceName,
				ParticipantLabel:       participantLabel,
				StartConferenceOnEnter: "true",
				EndConferenceOnExit:    "true",
				StatusCallback:         statusCallbackURL,
				StatusCallbackEvent:    "start end join leave",
			},
		}},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
