package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/lessonpay-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/pkg/httpx"
	"github.com/yungbote/lessonpay-backend/internal/platform/envutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

const (
	ProviderName       = "momo"
	defaultEndpoint    = "https://test-payment.momo.vn/v2/gateway/api/create"
	defaultRequestType = "captureWallet"
)

type Config struct {
	PartnerCode string        `yaml:"partner_code"`
	AccessKey   string        `yaml:"access_key"`
	SecretKey   string        `yaml:"secret_key"`
	Endpoint    string        `yaml:"endpoint"`
	RequestType string        `yaml:"request_type"`
	Lang        string        `yaml:"lang"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ConfigFromEnv overlays MOMO_* environment variables on base.
func ConfigFromEnv(base Config) Config {
	return Config{
		PartnerCode: envutil.String("MOMO_PARTNER_CODE", base.PartnerCode),
		AccessKey:   envutil.String("MOMO_ACCESS_KEY", base.AccessKey),
		SecretKey:   envutil.String("MOMO_SECRET_KEY", base.SecretKey),
		Endpoint:    envutil.String("MOMO_ENDPOINT", base.Endpoint),
		RequestType: envutil.String("MOMO_REQUEST_TYPE", base.RequestType),
		Lang:        envutil.String("MOMO_LANG", base.Lang),
		Timeout:     envutil.Duration("MOMO_TIMEOUT", base.Timeout),
	}
}

type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	validate   *validator.Validate
}

var _ gateway.Adapter = (*Client)(nil)

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.PartnerCode) == "" {
		return nil, fmt.Errorf("missing MOMO_PARTNER_CODE")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing MOMO_ACCESS_KEY / MOMO_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if strings.TrimSpace(cfg.RequestType) == "" {
		cfg.RequestType = defaultRequestType
	}
	if strings.TrimSpace(cfg.Lang) == "" {
		cfg.Lang = "vi"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		log:        log.With("client", "MomoClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		validate:   validator.New(),
	}, nil
}

func (c *Client) Provider() string { return ProviderName }

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
	Lang        string `json:"lang"`
}

type createResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink,omitempty"`
	QRCodeURL    string `json:"qrCodeUrl,omitempty"`
}

// CreatePayment issues a captureWallet intent. Transport failures and 5xx
// answers come back wrapped in ErrUpstreamUnavailable; a non-zero resultCode
// is ErrGatewayRejected.
func (c *Client) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResponse, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("momo client unavailable")
	}
	if req.OrderID == "" || req.RequestID == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("momo: orderId, requestId and positive amount required: %w", pkgerrors.ErrInvalidArgument)
	}
	extra, err := EncodeExtraData(ExtraData{UserID: req.UserID.String(), LessonID: req.LessonID.String()})
	if err != nil {
		return nil, err
	}
	orderInfo := strings.ToValidUTF8(req.OrderInfo, "")
	if orderInfo == "" {
		orderInfo = "Lesson " + req.LessonID.String()
	}

	wire := createRequest{
		PartnerCode: c.cfg.PartnerCode,
		AccessKey:   c.cfg.AccessKey,
		RequestID:   req.RequestID,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		OrderInfo:   orderInfo,
		RedirectURL: req.ReturnURL,
		IpnURL:      req.NotifyURL,
		ExtraData:   extra,
		RequestType: c.cfg.RequestType,
		Lang:        c.cfg.Lang,
	}
	wire.Signature = Sign(c.cfg.SecretKey, CreateSignaturePayload(wire))

	raw, err := c.doOnce(ctx, wire)
	if err != nil {
		if httpx.IsRetryableError(err) {
			return nil, fmt.Errorf("momo create payment: %v: %w", err, pkgerrors.ErrUpstreamUnavailable)
		}
		return nil, fmt.Errorf("momo create payment: %v: %w", err, pkgerrors.ErrGatewayRejected)
	}

	var resp createResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("momo create payment: decode response: %v: %w", err, pkgerrors.ErrUpstreamUnavailable)
	}
	if resp.ResultCode != 0 {
		c.log.Warn("MoMo rejected payment request",
			"order_id", req.OrderID,
			"result_code", resp.ResultCode,
			"message", resp.Message,
		)
		return nil, fmt.Errorf("momo create payment: resultCode=%d %s: %w", resp.ResultCode, resp.Message, pkgerrors.ErrGatewayRejected)
	}
	return &gateway.PaymentResponse{
		PayURL:     resp.PayURL,
		ResultCode: fmt.Sprint(resp.ResultCode),
		Message:    resp.Message,
	}, nil
}

func (c *Client) doOnce(ctx context.Context, body any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.cfg.Endpoint, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 2000 {
			msg = msg[:2000] + "..."
		}
		return nil, &httpx.StatusError{Code: resp.StatusCode, Body: msg}
	}
	return raw, nil
}
