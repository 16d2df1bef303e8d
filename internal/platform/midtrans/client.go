package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/pkg/httpx"
	"github.com/yungbote/lessonpay-backend/internal/pkg/strutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/envutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

const (
	ProviderName = "midtrans"
	maxItemName  = 50
)

type Config struct {
	ServerKey  string `yaml:"server_key"`
	Production bool   `yaml:"production"`
	// NotifyURL overrides the dashboard notification URL for every transaction.
	NotifyURL string `yaml:"notify_url"`
}

func ConfigFromEnv(base Config) Config {
	return Config{
		ServerKey:  envutil.String("MIDTRANS_SERVER_KEY", base.ServerKey),
		Production: envutil.Bool("MIDTRANS_PRODUCTION", base.Production),
		NotifyURL:  envutil.String("MIDTRANS_NOTIFY_URL", base.NotifyURL),
	}
}

type snapCreator interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *mt.Error)
}

type Client struct {
	log      *logger.Logger
	cfg      Config
	snap     snapCreator
	validate *validator.Validate
}

var _ gateway.Adapter = (*Client)(nil)

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.ServerKey) == "" {
		return nil, fmt.Errorf("missing MIDTRANS_SERVER_KEY")
	}
	env := mt.Sandbox
	if cfg.Production {
		env = mt.Production
	}
	var sc snap.Client
	sc.New(cfg.ServerKey, env)
	if cfg.NotifyURL != "" && sc.Options != nil {
		sc.Options.SetPaymentOverrideNotification(cfg.NotifyURL)
	}
	return &Client{
		log:      log.With("client", "MidtransClient"),
		cfg:      cfg,
		snap:     &sc,
		validate: validator.New(),
	}, nil
}

func (c *Client) Provider() string { return ProviderName }

func (c *Client) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResponse, error) {
	if c == nil || c.snap == nil {
		return nil, fmt.Errorf("midtrans client unavailable")
	}
	if req.OrderID == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("midtrans: order id and positive amount required: %w", pkgerrors.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("midtrans create transaction: %v: %w", err, pkgerrors.ErrUpstreamUnavailable)
	}
	name := req.OrderInfo
	if name == "" {
		name = "Lesson"
	}
	name = strutil.Truncate(name, maxItemName)
	sreq := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		Items: &[]mt.ItemDetails{{
			ID:    req.LessonID.String(),
			Price: req.Amount,
			Qty:   1,
			Name:  name,
		}},
		CustomField1: req.UserID.String(),
		CustomField2: req.LessonID.String(),
	}

	resp, merr := c.snap.CreateTransaction(sreq)
	if merr != nil {
		code := merr.StatusCode
		if code == 0 || httpx.IsRetryableHTTPStatus(code) {
			return nil, fmt.Errorf("midtrans create transaction: %s: %w", merr.Message, pkgerrors.ErrUpstreamUnavailable)
		}
		c.log.Warn("Midtrans rejected transaction", "order_id", req.OrderID, "status_code", code, "message", merr.Message)
		return nil, fmt.Errorf("midtrans create transaction: %d %s: %w", code, merr.Message, pkgerrors.ErrGatewayRejected)
	}
	if resp == nil || resp.RedirectURL == "" {
		return nil, fmt.Errorf("midtrans create transaction: empty redirect url: %w", pkgerrors.ErrUpstreamUnavailable)
	}
	return &gateway.PaymentResponse{PayURL: resp.RedirectURL, ResultCode: "201"}, nil
}

// Notification is the HTTP notification body Midtrans POSTs after a status change.
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	TransactionID     string `json:"transaction_id"`
	StatusMessage     string `json:"status_message"`
	StatusCode        string `json:"status_code" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	OrderID           string `json:"order_id" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	CustomField1      string `json:"custom_field1"`
	CustomField2      string `json:"custom_field2"`
}

// SignatureKey is SHA512(order_id + status_code + gross_amount + server_key), hex.
func SignatureKey(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (c *Client) Verify(n Notification) error {
	want := SignatureKey(n.OrderID, n.StatusCode, n.GrossAmount, c.cfg.ServerKey)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return pkgerrors.ErrInvalidSignature
	}
	return nil
}

func (c *Client) ParseNotification(ctx context.Context, raw []byte) (*gateway.Event, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("midtrans notification decode: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	if err := c.validate.StructCtx(ctx, n); err != nil {
		return nil, fmt.Errorf("midtrans notification: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	if err := c.Verify(n); err != nil {
		return nil, err
	}

	amount, err := parseGrossAmount(n.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("midtrans notification gross_amount: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	userID, err := uuid.Parse(n.CustomField1)
	if err != nil {
		return nil, fmt.Errorf("midtrans notification custom_field1: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	lessonID, err := uuid.Parse(n.CustomField2)
	if err != nil {
		return nil, fmt.Errorf("midtrans notification custom_field2: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}

	outcome, err := outcomeFor(n.StatusCode, n.TransactionStatus, n.FraudStatus)
	if err != nil {
		c.log.Warn("Midtrans notification status disagrees with signed status_code",
			"order_id", n.OrderID,
			"status_code", n.StatusCode,
			"transaction_status", n.TransactionStatus,
		)
		return nil, err
	}

	msg := n.StatusMessage
	if msg == "" {
		msg = "midtrans " + n.TransactionStatus
	}
	return &gateway.Event{
		Provider:   ProviderName,
		OrderID:    n.OrderID,
		TransID:    n.TransactionID,
		Amount:     amount,
		ResultCode: n.StatusCode,
		Message:    msg,
		Outcome:    outcome,
		Method:     MethodFor(n.PaymentType),
		UserID:     userID,
		LessonID:   lessonID,
		Signature:  n.SignatureKey,
		Raw:        raw,
	}, nil
}

// outcomeFor classifies a notification. Only status_code is covered by the
// signature, so a success needs a signed 200 and a failure must not carry the
// pending code 201. Any other disagreement is treated as a forgery.
func outcomeFor(statusCode, transactionStatus, fraudStatus string) (gateway.Outcome, error) {
	claimed := statusOutcome(transactionStatus, fraudStatus)
	code := strings.TrimSpace(statusCode)
	switch claimed {
	case gateway.OutcomeSuccess:
		if code != "200" {
			return "", fmt.Errorf("midtrans %s with status_code %s: %w", transactionStatus, code, pkgerrors.ErrInvalidSignature)
		}
	case gateway.OutcomeFailure:
		if code == "201" {
			return "", fmt.Errorf("midtrans %s with status_code %s: %w", transactionStatus, code, pkgerrors.ErrInvalidSignature)
		}
	}
	return claimed, nil
}

func statusOutcome(transactionStatus, fraudStatus string) gateway.Outcome {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return gateway.OutcomeSuccess
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return gateway.OutcomeSuccess
		case "challenge":
			return gateway.OutcomeIgnored
		default:
			return gateway.OutcomeFailure
		}
	case "deny", "cancel", "expire", "failure":
		return gateway.OutcomeFailure
	default:
		// pending, refund, partial_refund, authorize
		return gateway.OutcomeIgnored
	}
}

// MethodFor maps a Midtrans payment_type onto card, bank or wallet.
func MethodFor(paymentType string) string {
	switch strings.ToLower(paymentType) {
	case "credit_card":
		return "card"
	case "bank_transfer", "echannel", "permata", "bca_klikpay", "bca_klikbca", "cimb_clicks", "danamon_online", "bri_epay":
		return "bank"
	default:
		return "wallet"
	}
}

func parseGrossAmount(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return int64(math.Round(f)), nil
}
