package momo

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Payment purposes carried in extraData.
const (
	PurposeDeposit = "deposit"
	PurposeOrder   = "order"
)

// ExtraData is the application correlation blob round-tripped through the gateway.
type ExtraData struct {
	UserID  string `json:"userId"`
	Type    string `json:"type"`
	OrderID string `json:"orderId,omitempty"`
}

// Encode renders the blob as base64(JSON).
func (e ExtraData) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeExtraData parses a base64(JSON) blob received from the gateway.
func DecodeExtraData(encoded string) (ExtraData, error) {
	if encoded == "" {
		return ExtraData{}, fmt.Errorf("extraData is empty")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ExtraData{}, fmt.Errorf("decode extraData: %w", err)
	}
	var e ExtraData
	if err := json.Unmarshal(raw, &e); err != nil {
		return ExtraData{}, fmt.Errorf("parse extraData: %w", err)
	}
	if e.UserID == "" {
		return ExtraData{}, fmt.Errorf("extraData is missing userId")
	}
	switch e.Type {
	case PurposeDeposit:
	case PurposeOrder:
		if e.OrderID == "" {
			return ExtraData{}, fmt.Errorf("extraData is missing orderId")
		}
	default:
		return ExtraData{}, fmt.Errorf("extraData has unknown type %q", e.Type)
	}
	return e, nil
}
