package momo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
)

const (
	ResultSuccess        = 0
	resultProcessing     = 7000
	resultProcessingUser = 7002
)

// Notification is the IPN body MoMo POSTs to ipnUrl.
type Notification struct {
	PartnerCode  string `json:"partnerCode" validate:"required"`
	OrderID      string `json:"orderId" validate:"required"`
	RequestID    string `json:"requestId" validate:"required"`
	Amount       int64  `json:"amount" validate:"gte=0"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature" validate:"required"`
}

// ExtraData rides along with the payment so a callback can be cross-checked
// against the learner and lesson it was issued for.
type ExtraData struct {
	UserID   string `json:"user_id"`
	LessonID string `json:"lesson_id"`
}

func EncodeExtraData(d ExtraData) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeExtraData(s string) (ExtraData, error) {
	var d ExtraData
	s = strings.TrimSpace(s)
	if s == "" {
		return d, fmt.Errorf("empty extraData")
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("extraData base64: %w", err)
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("extraData json: %w", err)
	}
	return d, nil
}

// Verify recomputes the IPN signature with the configured access/secret key.
func (c *Client) Verify(n Notification) error {
	if n.PartnerCode != c.cfg.PartnerCode {
		return pkgerrors.ErrInvalidSignature
	}
	expected := Sign(c.cfg.SecretKey, NotificationSignaturePayload(c.cfg.AccessKey, n))
	if !signatureMatches(expected, n.Signature) {
		return pkgerrors.ErrInvalidSignature
	}
	return nil
}

func (c *Client) ParseNotification(ctx context.Context, raw []byte) (*gateway.Event, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("momo notification decode: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	if err := c.validate.StructCtx(ctx, n); err != nil {
		return nil, fmt.Errorf("momo notification: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	if err := c.Verify(n); err != nil {
		return nil, err
	}

	extra, err := DecodeExtraData(n.ExtraData)
	if err != nil {
		return nil, fmt.Errorf("momo notification: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	userID, err := uuid.Parse(extra.UserID)
	if err != nil {
		return nil, fmt.Errorf("momo notification user_id: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	lessonID, err := uuid.Parse(extra.LessonID)
	if err != nil {
		return nil, fmt.Errorf("momo notification lesson_id: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}

	ev := &gateway.Event{
		Provider:   ProviderName,
		OrderID:    n.OrderID,
		RequestID:  n.RequestID,
		Amount:     n.Amount,
		ResultCode: strconv.Itoa(n.ResultCode),
		Message:    n.Message,
		Outcome:    outcomeFor(n.ResultCode),
		Method:     ProviderName,
		UserID:     userID,
		LessonID:   lessonID,
		Signature:  n.Signature,
		Raw:        raw,
	}
	if n.TransID != 0 {
		ev.TransID = strconv.FormatInt(n.TransID, 10)
	}
	return ev, nil
}

func outcomeFor(code int) gateway.Outcome {
	switch code {
	case ResultSuccess:
		return gateway.OutcomeSuccess
	case resultProcessing, resultProcessingUser:
		return gateway.OutcomeIgnored
	default:
		return gateway.OutcomeFailure
	}
}

type Ack struct {
	PartnerCode  string `json:"partnerCode"`
	RequestID    string `json:"requestId"`
	OrderID      string `json:"orderId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

// NewAck is the body MoMo expects once a notification has been handled,
// including idempotent no-ops.
func NewAck(ev *gateway.Event, partnerCode string) Ack {
	a := Ack{
		PartnerCode:  partnerCode,
		ResultCode:   ResultSuccess,
		Message:      "success",
		ResponseTime: time.Now().UnixMilli(),
	}
	if ev != nil {
		a.RequestID = ev.RequestID
		a.OrderID = ev.OrderID
	}
	return a
}

func (c *Client) PartnerCode() string { return c.cfg.PartnerCode }
