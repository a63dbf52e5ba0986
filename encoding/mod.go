// Package encoding converts between the text of a post and the binary and
// base64 representations that the ledger uses for application arguments and
// global state values.
//
// The ledger exchanges binary values as standard base64 text (padded, non
// URL-safe alphabet). Text is always UTF-8.
package encoding

import (
	"encoding/base64"
	"unicode/utf8"
)

// TextToWire returns the UTF-8 bytes of the text.
func TextToWire(s string) []byte {
	return []byte(s)
}

// WireToText decodes the UTF-8 bytes into a text. It returns a CodecError if
// the bytes are not valid UTF-8.
func WireToText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", NewCodecError("utf-8", errInvalidUTF8)
	}

	return string(data), nil
}

// BytesToBase64 returns the standard base64 text of the bytes.
func BytesToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64ToBytes decodes a standard base64 text. It returns a CodecError if the
// text is malformed.
func Base64ToBytes(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, NewCodecError("base64", err)
	}

	return data, nil
}

// TextToBase64 is a shortcut to encode a text into base64.
func TextToBase64(s string) string {
	return BytesToBase64(TextToWire(s))
}

// Base64ToText is a shortcut to decode a base64 text that holds UTF-8 bytes.
func Base64ToText(text string) (string, error) {
	data, err := Base64ToBytes(text)
	if err != nil {
		return "", err
	}

	return WireToText(data)
}
