package signal

import (
	"encoding/json"

	"vhrealtime/tools/decode"
	"vhrealtime/tools/errs"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindOffer
	KindAnswer
	KindICECandidate
	KindCallEnded
	KindPeerJoined
	KindPeerLeft
)

var kindNames = map[string]Kind{
	"offer":         KindOffer,
	"answer":        KindAnswer,
	"ice-candidate": KindICECandidate,
	"call-ended":    KindCallEnded,
	"peer-joined":   KindPeerJoined,
	"peer-left":     KindPeerLeft,
}

func (k Kind) String() string {
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return "unknown"
}

// Relayed reports whether frames of this kind are forwarded verbatim to the peers.
func (k Kind) Relayed() bool {
	return k == KindOffer || k == KindAnswer || k == KindICECandidate
}

// Envelope is a decoded client frame. Fields keeps the whole object so relayed kinds
// can be forwarded untouched; the SDP and candidate payloads are opaque here.
type Envelope struct {
	Kind   Kind
	Type   string
	Fields map[string]any
}

type header struct {
	Type string `json:"type"`
}

// ParseEnvelope classifies a client frame. Only frames that are not JSON objects are
// errors; an object with a missing or unrecognised type is KindUnknown.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Envelope{}, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	if m == nil {
		return Envelope{}, errs.ErrMalformedFrame.WrapMsg("frame is not an object")
	}
	env := Envelope{Kind: KindUnknown, Fields: m}
	h, err := decode.DecodeMap[header](m, decode.WithWeaklyTypedInput(false))
	if err != nil {
		return env, nil
	}
	env.Type = h.Type
	if k, ok := kindNames[h.Type]; ok {
		env.Kind = k
	}
	return env, nil
}
