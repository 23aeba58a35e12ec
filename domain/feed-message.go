package domain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

const (
	ActionPartial = "partial"
	ActionInsert  = "insert"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
)

var ErrUnknownAction = errors.New("unknown table action")

// FeedMessage is one realtime feed message: either a table envelope
// ({table, action, data, keys}) or a control message (welcome, ack, error).
type FeedMessage struct {
	Table  string   `json:"table"`
	Action string   `json:"action"`
	Data   []Record `json:"data"`
	Keys   KeySpec  `json:"keys"`

	Info      string `json:"info"`
	Subscribe string `json:"subscribe"`
	Success   bool   `json:"success"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
}

func DecodeFeedMessage(raw []byte) (*FeedMessage, error) {
	msg := &FeedMessage{}
	if err := decodeUseNumber(raw, msg); err != nil {
		return nil, fmt.Errorf("failed to decode feed message: %w", err)
	}
	return msg, nil
}

func (m *FeedMessage) IsTableMessage() bool {
	return m.Table != "" && m.Action != ""
}

func (m *FeedMessage) IsError() bool {
	return m.Error != ""
}

func (m *FeedMessage) IsSubscribeAck() bool {
	return m.Subscribe != ""
}

// ValidAction reports whether action is one of the four table actions.
func ValidAction(action string) bool {
	switch action {
	case ActionPartial, ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

func decodeUseNumber(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
