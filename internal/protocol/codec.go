package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/danmuck/auctionctl/internal/protocol/frame"
)

// Encode packs msg into a frame. The payload is the JSON form of Payload.
func Encode(msg Message, flags uint32) (frame.Frame, error) {
	if !msg.Type.Valid() {
		return frame.Frame{}, fmt.Errorf("%w: %d", ErrUnknownMessageType, uint32(msg.Type))
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return frame.Frame{
		Header: frame.Header{
			MessageID:   msg.ID,
			MessageType: uint32(msg.Type),
			Flags:       flags,
		},
		Payload: raw,
	}, nil
}

// Decode unpacks a frame. Unknown types and undecodable payloads are errors;
// a payload missing its expected variant is not (see Validate).
func Decode(fr frame.Frame) (Message, error) {
	t := MessageType(fr.Header.MessageType)
	if !t.Valid() {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownMessageType, fr.Header.MessageType)
	}
	msg := Message{ID: fr.Header.MessageID, Type: t}
	if len(fr.Payload) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(fr.Payload, &msg.Payload); err != nil {
		return Message{}, fmt.Errorf("%w: type=%s: %v", ErrMalformedPayload, t, err)
	}
	return msg, nil
}

// WriteMessage encodes msg and writes it as one frame.
func WriteMessage(w io.Writer, msg Message, flags uint32, limits frame.Limits) error {
	fr, err := Encode(msg, flags)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, fr, limits)
}

// ReadMessage reads and decodes one frame.
func ReadMessage(r io.Reader, limits frame.Limits) (Message, error) {
	fr, err := frame.ReadFrame(r, limits)
	if err != nil {
		return Message{}, err
	}
	return Decode(fr)
}
