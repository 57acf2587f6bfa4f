package momo

import "fmt"

// Outcome groups gateway result codes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

var resultCodes = map[int]string{
	0:    "Successful",
	10:   "System is under maintenance",
	11:   "Access denied",
	12:   "Unsupported API version",
	13:   "Merchant authentication failed",
	20:   "Bad request format",
	21:   "Invalid transaction amount",
	22:   "Transaction amount out of range",
	40:   "Duplicated requestId",
	41:   "Duplicated orderId",
	42:   "Invalid orderId or orderId not found",
	43:   "Conflicting transaction in progress",
	45:   "Duplicated itemId",
	47:   "Inapplicable information in the given set of valuable data",
	98:   "QR code generation failed",
	99:   "Unknown error",
	1000: "Transaction initiated, waiting for user confirmation",
	1001: "Insufficient funds in payer account",
	1002: "Transaction rejected by the issuer",
	1003: "Transaction cancelled after authorization",
	1004: "Amount exceeds payment limit",
	1005: "Payment URL or QR code expired",
	1006: "User denied the payment",
	1007: "Payer account is inactive",
	1017: "Transaction cancelled by merchant",
	1026: "Transaction restricted by promotion rules",
	1080: "Refund attempt failed",
	1081: "Refund rejected",
	2019: "Invalid orderGroupId",
	4001: "Payer account is restricted",
	4002: "Payer account is not verified",
	4100: "User failed to log in",
	7000: "Transaction is being processed",
	7002: "Transaction is being processed by the payment provider",
	8000: "Transaction awaiting user confirmation",
	9000: "Transaction authorized, awaiting capture",
}

// Describe maps a result code to a human-readable status.
func Describe(code int) string {
	if msg, ok := resultCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("unrecognized result code %d", code)
}

// Classify reports whether code is final success, still pending, or failure.
// Only 0 is success; unknown codes are failures.
func Classify(code int) Outcome {
	switch code {
	case 0:
		return OutcomeSuccess
	case 1000, 7000, 7002, 8000, 9000:
		return OutcomePending
	default:
		return OutcomeFailed
	}
}
