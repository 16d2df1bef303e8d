package momo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/platform/gateway"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
)

func testClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(logger.Nop(), Config{
		PartnerCode: "MOMOTEST",
		AccessKey:   "access",
		SecretKey:   "secret",
		Endpoint:    endpoint,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func signedNotification(t *testing.T, c *Client, userID, lessonID uuid.UUID, resultCode int, amount int64) Notification {
	t.Helper()
	extra, err := EncodeExtraData(ExtraData{UserID: userID.String(), LessonID: lessonID.String()})
	if err != nil {
		t.Fatalf("EncodeExtraData: %v", err)
	}
	n := Notification{
		PartnerCode:  c.cfg.PartnerCode,
		OrderID:      "order-1",
		RequestID:    "req-1",
		Amount:       amount,
		OrderInfo:    "Lesson",
		OrderType:    "momo_wallet",
		TransID:      4088878653,
		ResultCode:   resultCode,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: 1721720663942,
		ExtraData:    extra,
	}
	n.Signature = Sign(c.cfg.SecretKey, NotificationSignaturePayload(c.cfg.AccessKey, n))
	return n
}

func TestNotificationSignaturePayloadOrder(t *testing.T) {
	n := Notification{
		PartnerCode: "P", Amount: 10, ExtraData: "e", Message: "m", OrderID: "o",
		OrderInfo: "i", OrderType: "t", PayType: "q", RequestID: "r",
		ResponseTime: 5, ResultCode: 0, TransID: 7,
	}
	want := "partnerCode=P&accessKey=A&amount=10&extraData=e&message=m&orderId=o&orderInfo=i&orderType=t&payType=q&requestId=r&responseTime=5&resultCode=0&transId=7"
	if got := NotificationSignaturePayload("A", n); got != want {
		t.Fatalf("payload mismatch:\nwant %s\ngot  %s", want, got)
	}
}

func TestSignKnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got := Sign("key", "The quick brown fox jumps over the lazy dog"); got != want {
		t.Fatalf("Sign: want %s got %s", want, got)
	}
}

func TestParseNotification(t *testing.T) {
	c := testClient(t, "")
	userID, lessonID := uuid.New(), uuid.New()

	t.Run("valid success", func(t *testing.T) {
		raw, _ := json.Marshal(signedNotification(t, c, userID, lessonID, 0, 100000))
		ev, err := c.ParseNotification(context.Background(), raw)
		if err != nil {
			t.Fatalf("ParseNotification: %v", err)
		}
		if ev.Outcome != gateway.OutcomeSuccess || ev.Amount != 100000 || ev.TransID != "4088878653" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.UserID != userID || ev.LessonID != lessonID {
			t.Fatalf("extraData not decoded: user=%s lesson=%s", ev.UserID, ev.LessonID)
		}
	})

	t.Run("tampered amount", func(t *testing.T) {
		n := signedNotification(t, c, userID, lessonID, 0, 100000)
		n.Amount = 1
		raw, _ := json.Marshal(n)
		if _, err := c.ParseNotification(context.Background(), raw); !errors.Is(err, pkgerrors.ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("foreign partner", func(t *testing.T) {
		n := signedNotification(t, c, userID, lessonID, 0, 100000)
		n.PartnerCode = "OTHER"
		n.Signature = Sign(c.cfg.SecretKey, NotificationSignaturePayload(c.cfg.AccessKey, n))
		raw, _ := json.Marshal(n)
		if _, err := c.ParseNotification(context.Background(), raw); !errors.Is(err, pkgerrors.ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("failure code", func(t *testing.T) {
		raw, _ := json.Marshal(signedNotification(t, c, userID, lessonID, 1006, 100000))
		ev, err := c.ParseNotification(context.Background(), raw)
		if err != nil {
			t.Fatalf("ParseNotification: %v", err)
		}
		if ev.Outcome != gateway.OutcomeFailure {
			t.Fatalf("expected failure outcome, got %s", ev.Outcome)
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		n := signedNotification(t, c, userID, lessonID, 0, 100000)
		n.Signature = ""
		raw, _ := json.Marshal(n)
		if _, err := c.ParseNotification(context.Background(), raw); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := c.ParseNotification(context.Background(), []byte("{")); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestCreatePayment(t *testing.T) {
	var seen createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &seen)
		_ = json.NewEncoder(w).Encode(createResponse{
			PartnerCode: seen.PartnerCode,
			OrderID:     seen.OrderID,
			RequestID:   seen.RequestID,
			Amount:      seen.Amount,
			ResultCode:  0,
			Message:     "Successful.",
			PayURL:      "https://pay.example/" + seen.OrderID,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	userID, lessonID := uuid.New(), uuid.New()
	resp, err := c.CreatePayment(context.Background(), gateway.PaymentRequest{
		OrderID:   "order-9",
		RequestID: "req-9",
		Amount:    100000,
		UserID:    userID,
		LessonID:  lessonID,
		ReturnURL: "https://app.example/return",
		NotifyURL: "https://api.example/webhooks/momo",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if resp.PayURL != "https://pay.example/order-9" {
		t.Fatalf("unexpected payUrl %q", resp.PayURL)
	}
	if seen.RequestType != "captureWallet" || seen.IpnURL != "https://api.example/webhooks/momo" {
		t.Fatalf("unexpected wire request: %+v", seen)
	}
	sig := seen.Signature
	seen.Signature = ""
	if want := Sign("secret", CreateSignaturePayload(seen)); sig != want {
		t.Fatalf("request signature mismatch")
	}
	extra, err := DecodeExtraData(seen.ExtraData)
	if err != nil || extra.UserID != userID.String() || extra.LessonID != lessonID.String() {
		t.Fatalf("extraData: %+v err=%v", extra, err)
	}
}

func TestCreatePaymentErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "5xx is upstream unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: pkgerrors.ErrUpstreamUnavailable,
		},
		{
			name: "non-zero result code is rejection",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(createResponse{ResultCode: 22, Message: "amount out of range"})
			},
			want: pkgerrors.ErrGatewayRejected,
		},
		{
			name: "4xx is rejection",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			want: pkgerrors.ErrGatewayRejected,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := testClient(t, srv.URL)
			_, err := c.CreatePayment(context.Background(), gateway.PaymentRequest{
				OrderID: "o", RequestID: "r", Amount: 1, UserID: uuid.New(), LessonID: uuid.New(),
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	c := testClient(t, "http://127.0.0.1:1")
	_, err := c.CreatePayment(context.Background(), gateway.PaymentRequest{
		OrderID: "o", RequestID: "r", Amount: 1, UserID: uuid.New(), LessonID: uuid.New(),
	})
	if !errors.Is(err, pkgerrors.ErrUpstreamUnavailable) {
		t.Fatalf("connection refused: expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestCreatePaymentSignsWhatItSends(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(createResponse{ResultCode: 0, Message: "Successful.", PayURL: "https://pay.example/x"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	// A byte-cut title ending in half of "ệ".
	title := "Lesson: Tiếng Việt cơ bản " + string([]byte("ệ")[:2])
	if _, err := c.CreatePayment(context.Background(), gateway.PaymentRequest{
		OrderID:   "order-vi",
		RequestID: "req-vi",
		Amount:    100000,
		OrderInfo: title,
		UserID:    uuid.New(),
		LessonID:  uuid.New(),
	}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	var seen createRequest
	if err := json.Unmarshal(body, &seen); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if seen.OrderInfo != "Lesson: Tiếng Việt cơ bản " {
		t.Fatalf("orderInfo: %q", seen.OrderInfo)
	}
	sig := seen.Signature
	seen.Signature = ""
	if want := Sign("secret", CreateSignaturePayload(seen)); sig != want {
		t.Fatalf("signature does not match the decoded request")
	}
}
