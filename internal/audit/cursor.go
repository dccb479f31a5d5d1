package audit

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

type cursorPayload struct {
	T  string `json:"t"`
	ID string `json:"id"`
}

// EncodeCursor produces the opaque position token for the entry e.
func EncodeCursor(e Entry) string {
	data, _ := json.Marshal(cursorPayload{T: e.Timestamp.UTC().Format(time.RFC3339Nano), ID: e.ID})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields nil.
func DecodeCursor(token string) (*Position, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var p cursorPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		return nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, p.T)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Position{Timestamp: ts, ID: p.ID}, nil
}
