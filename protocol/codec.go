package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrUnknownType is returned for an envelope whose type this client does not speak.
var ErrUnknownType = errors.New("protocol: unknown message type")

// Known reports whether t is one of the message types above.
func (t MessageType) Known() bool {
	switch t {
	case MsgRegister, MsgHeartbeat, MsgLog, MsgStatus, MsgEvent, MsgLogEnd,
		MsgSendMessage, MsgSetSpeech, MsgStopSpeech, MsgReset, MsgShutdown, MsgAck:
		return true
	}
	return false
}

// IsCommand reports whether t is sent by the control plane to drive the conversation.
func (t MessageType) IsCommand() bool {
	switch t {
	case MsgSendMessage, MsgSetSpeech, MsgStopSpeech, MsgReset, MsgShutdown:
		return true
	}
	return false
}

// Marshal encodes payload inside an Envelope of type msgType. A nil payload
// produces an envelope without a payload field.
func Marshal(msgType MessageType, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		b, err := sonic.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s payload: %w", msgType, err)
		}
		env.Payload = b
	}
	return sonic.Marshal(env)
}

// Unmarshal decodes an Envelope and checks its type.
func Unmarshal(data []byte) (MessageType, json.RawMessage, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	switch {
	case env.Type == "":
		return "", nil, fmt.Errorf("protocol: envelope without type")
	case !env.Type.Known():
		return env.Type, nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
	}
	return env.Type, env.Payload, nil
}

// UnmarshalPayload decodes raw into a T. An absent payload yields the zero T.
func UnmarshalPayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("protocol: decode %T: %w", v, err)
	}
	return v, nil
}
