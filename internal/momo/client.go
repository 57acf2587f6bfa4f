package momo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	createPath = "/v2/gateway/api/create"
	queryPath  = "/v2/gateway/api/query"

	defaultTimeout     = 10 * time.Second
	defaultRequestType = "captureWallet"
	defaultLang        = "vi"
	jsonContentType    = "application/json"
)

// ErrOutcomeUnknown means the gateway could not be reached or did not answer in
// time. The payment may or may not exist; the IPN is the source of truth.
var ErrOutcomeUnknown = errors.New("gateway outcome unknown")

// GatewayError is a definitive non-zero result code from the gateway.
type GatewayError struct {
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway rejected request: %d %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway rejected request: %d %s", e.Code, Describe(e.Code))
}

// Config holds partner credentials and callback URLs.
type Config struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	RequestType string
	Lang        string
	Timeout     time.Duration
}

// PaymentRequest is what callers supply; the client fills in credentials and the
// signature. RequestID is derived from Reference when empty.
type PaymentRequest struct {
	Reference string
	RequestID string
	Amount    decimal.Decimal
	OrderInfo string
	ExtraData ExtraData
}

// PaymentResponse is the gateway answer to a create request.
type PaymentResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

// StatusResponse is the gateway answer to a status query.
type StatusResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	ExtraData    string `json:"extraData"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	PayType      string `json:"payType"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

type createBody struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	Lang        string `json:"lang"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
}

type queryBody struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	OrderID     string `json:"orderId"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// Client talks to the MoMo payment gateway. It never retries; retry policy belongs
// to callers and is safe because settlement is idempotent.
type Client struct {
	cfg    Config
	signer Signer
	http   *resty.Client
	now    func() time.Time
}

// NewClient builds a gateway client with a bounded timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestType == "" {
		cfg.RequestType = defaultRequestType
	}
	if cfg.Lang == "" {
		cfg.Lang = defaultLang
	}
	httpClient := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", jsonContentType)
	return &Client{
		cfg:    cfg,
		signer: Signer{AccessKey: cfg.AccessKey, SecretKey: cfg.SecretKey},
		http:   httpClient,
		now:    time.Now,
	}
}

// Signer exposes the client's signer for verifying inbound notifications.
func (c *Client) Signer() Signer {
	return c.signer
}

// NewRequestID combines a reference with a millisecond timestamp so retries of the
// same logical payment stay unique on the gateway side.
func NewRequestID(reference string, now time.Time) string {
	return reference + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// CreatePayment signs and submits a payment creation request. A nil error only
// means the gateway accepted the request, not that the payment succeeded.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	ctx, span := otel.Tracer("github.com/learnhub/learnhub-wallet/internal/momo").Start(ctx, "momo.CreatePayment")
	defer span.End()

	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return PaymentResponse{}, fmt.Errorf("gateway amount must be a positive whole number, got %s", req.Amount)
	}
	extra, err := req.ExtraData.Encode()
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("encode extraData: %w", err)
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = NewRequestID(req.Reference, c.now())
	}
	body := createBody{
		PartnerCode: c.cfg.PartnerCode,
		AccessKey:   c.cfg.AccessKey,
		RequestID:   requestID,
		Amount:      req.Amount.IntPart(),
		OrderID:     requestID,
		OrderInfo:   req.OrderInfo,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		Lang:        c.cfg.Lang,
		ExtraData:   extra,
		RequestType: c.cfg.RequestType,
	}
	body.Signature = c.signer.Sign(map[string]string{
		"accessKey":   body.AccessKey,
		"amount":      strconv.FormatInt(body.Amount, 10),
		"extraData":   body.ExtraData,
		"ipnUrl":      body.IPNURL,
		"orderId":     body.OrderID,
		"orderInfo":   body.OrderInfo,
		"partnerCode": body.PartnerCode,
		"redirectUrl": body.RedirectURL,
		"requestId":   body.RequestID,
		"requestType": body.RequestType,
	}, CreateSignatureFields)
	span.SetAttributes(attribute.String("momo.request_id", requestID))

	var out PaymentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		ForceContentType(jsonContentType).
		Post(createPath)
	if err := classifyReply(resp, err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		out.RequestID, out.OrderID = requestID, requestID
		return out, err
	}
	span.SetAttributes(attribute.Int("momo.result_code", out.ResultCode))
	if out.ResultCode != 0 {
		return out, &GatewayError{Code: out.ResultCode, Message: out.Message}
	}
	return out, nil
}

// QueryStatus asks the gateway for the current state of a payment.
func (c *Client) QueryStatus(ctx context.Context, orderID string) (StatusResponse, error) {
	ctx, span := otel.Tracer("github.com/learnhub/learnhub-wallet/internal/momo").Start(ctx, "momo.QueryStatus")
	defer span.End()

	body := queryBody{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   NewRequestID(orderID+"-q", c.now()),
		OrderID:     orderID,
		Lang:        c.cfg.Lang,
	}
	body.Signature = c.signer.Sign(map[string]string{
		"orderId":     body.OrderID,
		"partnerCode": body.PartnerCode,
		"requestId":   body.RequestID,
	}, QuerySignatureFields)

	var out StatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		ForceContentType(jsonContentType).
		Post(queryPath)
	if err := classifyReply(resp, err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return out, err
	}
	return out, nil
}

// classifyReply maps anything short of a decodable reply carrying a resultCode to
// ErrOutcomeUnknown. A zero-valued response must never read as code 0.
func classifyReply(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%w: gateway responded %d", ErrOutcomeUnknown, resp.StatusCode())
	}
	var head struct {
		ResultCode *int `json:"resultCode"`
	}
	if err := json.Unmarshal(resp.Body(), &head); err != nil {
		return fmt.Errorf("%w: undecodable reply (status %d): %v", ErrOutcomeUnknown, resp.StatusCode(), err)
	}
	if head.ResultCode == nil {
		return fmt.Errorf("%w: reply without resultCode (status %d)", ErrOutcomeUnknown, resp.StatusCode())
	}
	return nil
}
