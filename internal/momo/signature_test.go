package momo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sandbox = Signer{AccessKey: "F8BBA842ECF85", SecretKey: "K951B6PE1waDMi640xX08PD3vg6EkVlz"}

func TestRawSignatureOrder(t *testing.T) {
	raw := RawSignature(map[string]string{
		"requestId": "r1",
		"orderId":   "o1",
		"accessKey": "ak",
	}, QuerySignatureFields)
	assert.Equal(t, "accessKey=ak&orderId=o1&partnerCode=&requestId=r1", raw)
}

func TestSignKnownVector(t *testing.T) {
	fields := map[string]string{
		"amount":      "50000",
		"extraData":   "",
		"ipnUrl":      "https://example.test/ipn",
		"orderId":     "MM1540456472575",
		"orderInfo":   "pay with MoMo",
		"partnerCode": "MOMO",
		"redirectUrl": "https://example.test/return",
		"requestId":   "MM1540456472575",
		"requestType": "captureWallet",
	}
	got := sandbox.Sign(fields, CreateSignatureFields)
	assert.Equal(t, "11f8c8c9a2a17e7896db744613120426f608e041ba9f4077ef58bb0f6596d12c", got)

	fields["accessKey"] = sandbox.AccessKey
	assert.Equal(t, got, sandbox.Sign(fields, CreateSignatureFields), "explicit accessKey must match the injected one")
}

func signedNotification() Notification {
	n := Notification{
		PartnerCode:  "MOMO",
		OrderID:      "DEP_1-1700000000000",
		RequestID:    "DEP_1-1700000000000",
		Amount:       50_000,
		OrderInfo:    "wallet deposit",
		OrderType:    "momo_wallet",
		TransID:      4088878653,
		ResultCode:   0,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: 1700000001000,
		ExtraData:    "eyJ1c2VySWQiOiJ1MSIsInR5cGUiOiJkZXBvc2l0In0=",
	}
	n.Sign(sandbox)
	return n
}

func TestNotificationRoundTrip(t *testing.T) {
	n := signedNotification()
	require.NotEmpty(t, n.Signature)
	assert.NoError(t, n.Verify(sandbox))
}

func TestNotificationTamperingDetected(t *testing.T) {
	mutations := map[string]func(*Notification){
		"amount":       func(n *Notification) { n.Amount++ },
		"resultCode":   func(n *Notification) { n.ResultCode = 1006 },
		"transId":      func(n *Notification) { n.TransID++ },
		"extraData":    func(n *Notification) { n.ExtraData = "e30=" },
		"orderId":      func(n *Notification) { n.OrderID = "DEP_2-1700000000000" },
		"message":      func(n *Notification) { n.Message = "ok" },
		"responseTime": func(n *Notification) { n.ResponseTime++ },
		"signature":    func(n *Notification) { n.Signature = n.Signature[:len(n.Signature)-1] + "0" },
		"empty sig":    func(n *Notification) { n.Signature = "" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			n := signedNotification()
			mutate(&n)
			if name == "signature" && n.Signature == signedNotification().Signature {
				t.Skip("mutation produced the same signature")
			}
			assert.True(t, errors.Is(n.Verify(sandbox), ErrInvalidSignature))
		})
	}
}

func TestVerifyWithWrongSecret(t *testing.T) {
	n := signedNotification()
	other := Signer{AccessKey: sandbox.AccessKey, SecretKey: "another-secret"}
	assert.ErrorIs(t, n.Verify(other), ErrInvalidSignature)
}

func TestVerifyIgnoresSignatureField(t *testing.T) {
	n := signedNotification()
	fields := n.Fields()
	fields["signature"] = n.Signature
	assert.NoError(t, sandbox.Verify(fields, NotificationSignatureFields, n.Signature))
}

func TestTransactionRef(t *testing.T) {
	n := signedNotification()
	assert.Equal(t, "momo:4088878653", n.TransactionRef())
	assert.Equal(t, "50000", n.AmountDecimal().String())
}
