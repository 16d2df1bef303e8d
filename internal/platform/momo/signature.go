package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of raw under secret.
func Sign(secret, raw string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateSignaturePayload builds the canonical string MoMo signs for a
// captureWallet request. Keys are alphabetical.
func CreateSignaturePayload(r createRequest) string {
	return joinPairs([][2]string{
		{"accessKey", r.AccessKey},
		{"amount", strconv.FormatInt(r.Amount, 10)},
		{"extraData", r.ExtraData},
		{"ipnUrl", r.IpnURL},
		{"orderId", r.OrderID},
		{"orderInfo", r.OrderInfo},
		{"partnerCode", r.PartnerCode},
		{"redirectUrl", r.RedirectURL},
		{"requestId", r.RequestID},
		{"requestType", r.RequestType},
	})
}

// NotificationSignaturePayload builds the canonical IPN string. The field
// order is fixed and must not be re-sorted: partnerCode leads.
func NotificationSignaturePayload(accessKey string, n Notification) string {
	return joinPairs([][2]string{
		{"partnerCode", n.PartnerCode},
		{"accessKey", accessKey},
		{"amount", strconv.FormatInt(n.Amount, 10)},
		{"extraData", n.ExtraData},
		{"message", n.Message},
		{"orderId", n.OrderID},
		{"orderInfo", n.OrderInfo},
		{"orderType", n.OrderType},
		{"payType", n.PayType},
		{"requestId", n.RequestID},
		{"responseTime", strconv.FormatInt(n.ResponseTime, 10)},
		{"resultCode", strconv.Itoa(n.ResultCode)},
		{"transId", strconv.FormatInt(n.TransID, 10)},
	})
}

func joinPairs(pairs [][2]string) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(p[1])
	}
	return b.String()
}

func signatureMatches(expected, got string) bool {
	got = strings.ToLower(strings.TrimSpace(got))
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
