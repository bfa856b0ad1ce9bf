package protocol

import "errors"

var (
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrMalformedPayload   = errors.New("protocol: malformed payload")
	ErrMissingVariant     = errors.New("protocol: payload variant missing")
)
