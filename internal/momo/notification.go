package momo

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Notification is the signed payload the gateway posts to the IPN endpoint and
// appends to the browser redirect.
type Notification struct {
	PartnerCode  string `json:"partnerCode" query:"partnerCode"`
	OrderID      string `json:"orderId" query:"orderId"`
	RequestID    string `json:"requestId" query:"requestId"`
	Amount       int64  `json:"amount" query:"amount"`
	OrderInfo    string `json:"orderInfo" query:"orderInfo"`
	OrderType    string `json:"orderType" query:"orderType"`
	TransID      int64  `json:"transId" query:"transId"`
	ResultCode   int    `json:"resultCode" query:"resultCode"`
	Message      string `json:"message" query:"message"`
	PayType      string `json:"payType" query:"payType"`
	ResponseTime int64  `json:"responseTime" query:"responseTime"`
	ExtraData    string `json:"extraData" query:"extraData"`
	Signature    string `json:"signature" query:"signature"`
}

// Fields renders the signed fields as strings, the way the gateway formats them.
func (n Notification) Fields() map[string]string {
	return map[string]string{
		"amount":       strconv.FormatInt(n.Amount, 10),
		"extraData":    n.ExtraData,
		"message":      n.Message,
		"orderId":      n.OrderID,
		"orderInfo":    n.OrderInfo,
		"orderType":    n.OrderType,
		"partnerCode":  n.PartnerCode,
		"payType":      n.PayType,
		"requestId":    n.RequestID,
		"responseTime": strconv.FormatInt(n.ResponseTime, 10),
		"resultCode":   strconv.Itoa(n.ResultCode),
		"transId":      strconv.FormatInt(n.TransID, 10),
	}
}

// Verify checks the notification signature.
func (n Notification) Verify(s Signer) error {
	return s.Verify(n.Fields(), NotificationSignatureFields, n.Signature)
}

// Sign fills in the signature. Used by tests and sandbox tooling that impersonate
// the gateway.
func (n *Notification) Sign(s Signer) {
	n.Signature = s.Sign(n.Fields(), NotificationSignatureFields)
}

// TransactionRef is the gateway transaction id as a ledger reference.
func (n Notification) TransactionRef() string {
	return "momo:" + strconv.FormatInt(n.TransID, 10)
}

// AmountDecimal returns the notified amount.
func (n Notification) AmountDecimal() decimal.Decimal {
	return decimal.NewFromInt(n.Amount)
}
