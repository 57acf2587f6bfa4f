package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is returned when an inbound payload does not carry the
// signature computed with the shared secret.
var ErrInvalidSignature = errors.New("invalid gateway signature")

// Field orders are alphabetical and fixed by the gateway; changing them breaks
// compatibility.
var (
	CreateSignatureFields = []string{
		"accessKey", "amount", "extraData", "ipnUrl", "orderId",
		"orderInfo", "partnerCode", "redirectUrl", "requestId", "requestType",
	}

	NotificationSignatureFields = []string{
		"accessKey", "amount", "extraData", "message", "orderId", "orderInfo",
		"orderType", "partnerCode", "payType", "requestId", "responseTime",
		"resultCode", "transId",
	}

	QuerySignatureFields = []string{"accessKey", "orderId", "partnerCode", "requestId"}
)

// RawSignature renders fields as key=value pairs joined with '&' in the given order.
// Missing keys contribute an empty value.
func RawSignature(fields map[string]string, order []string) string {
	var b strings.Builder
	for i, key := range order {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(fields[key])
	}
	return b.String()
}

// Signer computes and checks HMAC-SHA256 signatures with the partner secret.
type Signer struct {
	AccessKey string
	SecretKey string
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical message. When fields
// carry no accessKey the signer's own is used, since notifications omit it.
func (s Signer) Sign(fields map[string]string, order []string) string {
	withKey := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		withKey[k] = v
	}
	if _, ok := withKey["accessKey"]; !ok {
		withKey["accessKey"] = s.AccessKey
	}

	mac := hmac.New(sha256.New, []byte(s.SecretKey))
	mac.Write([]byte(RawSignature(withKey, order)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over fields, ignoring any "signature" entry, and
// compares it with the provided one.
func (s Signer) Verify(fields map[string]string, order []string, signature string) error {
	stripped := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "signature" {
			continue
		}
		stripped[k] = v
	}
	expected := s.Sign(stripped, order)
	if signature == "" || !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
