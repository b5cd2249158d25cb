package chat

import (
	"encoding/json"

	"vhrealtime/tools/decode"
	"vhrealtime/tools/errs"
)

const (
	FrameChat   = "chat"
	FrameSystem = "system"
)

// Inbound is what a client sends on the chat socket. Extra fields are ignored.
type Inbound struct {
	Message string `json:"message"`
}

// Frame is every message the chat socket emits.
type Frame struct {
	Type       string `json:"type"`
	Sender     string `json:"sender,omitempty"`
	SenderRole string `json:"sender_role,omitempty"`
	SenderID   int64  `json:"sender_id,omitempty"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// ParseInbound decodes a client frame. Anything that is not a JSON object with an
// optional string "message" is a malformed frame.
func ParseInbound(raw []byte) (Inbound, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Inbound{}, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	if m == nil {
		return Inbound{}, errs.ErrMalformedFrame.WrapMsg("frame is not an object")
	}
	in, err := decode.DecodeMap[Inbound](m, decode.WithWeaklyTypedInput(false))
	if err != nil {
		return Inbound{}, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	return *in, nil
}
