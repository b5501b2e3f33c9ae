//go:build integration

package integration

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

type createPaymentRequest struct {
	OrderNumber string `json:"order_number"`
}

// webhookSignature mimics the gateway's shared-secret signature:
// hex(sha512(order_id + status_code + gross_amount + server_key)).
func webhookSignature(orderRef, statusCode, grossAmount string) string {
	h := sha512.New()
	h.Write([]byte(orderRef))
	h.Write([]byte(statusCode))
	h.Write([]byte(grossAmount))
	h.Write([]byte(testServerKey))
	return hex.EncodeToString(h.Sum(nil))
}

// placeOrderWithPayment checks out an order for userID and attaches a
// pending payment row directly, standing in for the gateway handshake
// that no service in this compose project can answer.
func placeOrderWithPayment(t *testing.T, userID, productID string, quantity int) (orderResponse, string) {
	t.Helper()

	token := customerToken(t, userID)
	addressID := insertAddress(t, userID)
	addToCart(t, token, productID, quantity)
	order := checkout(t, token, addressID)

	gatewayOrderID := "gw-" + userID
	execSQL(t, fmt.Sprintf(
		`INSERT INTO payments (id, order_id, user_id, gateway_order_id, amount, status)
		 SELECT 'pay-%s', id, user_id, '%s', total_amount, 'pending'
		 FROM orders WHERE order_number = '%s'`,
		userID, gatewayOrderID, order.Number,
	))

	return order, gatewayOrderID
}

func TestCreatePayment_GatewayUnavailable(t *testing.T) {
	userID := "user-pay-502"
	token := customerToken(t, userID)
	addressID := insertAddress(t, userID)
	addToCart(t, token, "prod-bird-seed-1kg", 1)
	order := checkout(t, token, addressID)

	resp := doPostWithAuth(t, "/api/payments", createPaymentRequest{OrderNumber: order.Number}, token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	// The failed handshake must leave no payment behind.
	resp2 := doGetWithAuth(t, "/api/payments/"+order.Number, token)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after failed initiation, got %d", resp2.StatusCode)
	}
}

func TestWebhook_Malformed(t *testing.T) {
	resp := doPost(t, "/api/webhooks/payment", map[string]any{"transaction_status": "settlement"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhook_UnknownPayment(t *testing.T) {
	body := map[string]any{
		"order_id":           "gw-nobody-knows-this",
		"transaction_status": "settlement",
		"status_code":        "200",
		"gross_amount":       "10.00",
		"signature_key":      webhookSignature("gw-nobody-knows-this", "200", "10.00"),
	}
	resp := doPost(t, "/api/webhooks/payment", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	_, gatewayOrderID := placeOrderWithPayment(t, "user-webhook-forged", "prod-bird-seed-1kg", 1)

	body := map[string]any{
		"order_id":           gatewayOrderID,
		"transaction_status": "settlement",
		"status_code":        "200",
		"gross_amount":       "4.75",
		"signature_key":      "not-the-right-signature",
	}
	resp := doPost(t, "/api/webhooks/payment", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWebhook_Settlement(t *testing.T) {
	userID := "user-webhook-settle"
	order, gatewayOrderID := placeOrderWithPayment(t, userID, "prod-bird-seed-1kg", 2)
	token := customerToken(t, userID)

	body := map[string]any{
		"order_id":           gatewayOrderID,
		"transaction_id":     "txn-" + userID,
		"transaction_status": "settlement",
		"fraud_status":       "accept",
		"payment_type":       "bank_transfer",
		"status_code":        "200",
		"gross_amount":       "9.50",
		"settlement_time":    "2026-08-29 10:15:00",
		"signature_key":      webhookSignature(gatewayOrderID, "200", "9.50"),
	}

	resp := doPost(t, "/api/webhooks/payment", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", resp.StatusCode)
	}

	// The payment reflects the gateway state.
	resp2 := doGetWithAuth(t, "/api/payments/"+order.Number, token)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("get payment: expected 200, got %d", resp2.StatusCode)
	}
	payment := decodeData[paymentResponse](t, resp2)
	if payment.Status != "settlement" {
		t.Errorf("payment status: got %q, want %q", payment.Status, "settlement")
	}
	if payment.PaymentType != "bank_transfer" {
		t.Errorf("payment_type: got %q, want %q", payment.PaymentType, "bank_transfer")
	}
	if payment.TransactionID != "txn-"+userID {
		t.Errorf("transaction_id: got %q, want %q", payment.TransactionID, "txn-"+userID)
	}

	// The order moved to paid/confirmed.
	resp3 := doGetWithAuth(t, "/api/orders/"+order.Number, token)
	defer resp3.Body.Close()
	got := decodeData[orderResponse](t, resp3)
	if got.PaymentStatus != "paid" {
		t.Errorf("order payment_status: got %q, want %q", got.PaymentStatus, "paid")
	}
	if got.Status != "confirmed" {
		t.Errorf("order status: got %q, want %q", got.Status, "confirmed")
	}

	// A byte-for-byte duplicate is acknowledged again and changes nothing.
	resp4 := doPost(t, "/api/webhooks/payment", body)
	defer resp4.Body.Close()
	if resp4.StatusCode != http.StatusOK {
		t.Fatalf("duplicate webhook: expected 200, got %d", resp4.StatusCode)
	}

	resp5 := doGetWithAuth(t, "/api/payments/"+order.Number, token)
	defer resp5.Body.Close()
	again := decodeData[paymentResponse](t, resp5)
	if again.Status != "settlement" {
		t.Errorf("payment status after duplicate: got %q, want %q", again.Status, "settlement")
	}
}

func TestWebhook_ConcurrentDuplicates(t *testing.T) {
	userID := "user-webhook-race"
	order, gatewayOrderID := placeOrderWithPayment(t, userID, "prod-bird-seed-1kg", 1)
	token := customerToken(t, userID)

	body := map[string]any{
		"order_id":           gatewayOrderID,
		"transaction_id":     "txn-" + userID,
		"transaction_status": "settlement",
		"status_code":        "200",
		"gross_amount":       "4.75",
		"signature_key":      webhookSignature(gatewayOrderID, "200", "4.75"),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}

	// The gateway retries aggressively, so identical notifications can
	// land at the same instant. Both must be acknowledged and both must
	// end up in the audit log.
	type result struct {
		status int
		err    error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp, err := httpClient.Post(baseURL+"/api/webhooks/payment", "application/json", bytes.NewReader(payload))
			if err != nil {
				results <- result{err: err}
				return
			}
			resp.Body.Close()
			results <- result{status: resp.StatusCode}
		}()
	}
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("concurrent webhook: %v", r.err)
		}
		if r.status != http.StatusOK {
			t.Fatalf("concurrent webhook: expected 200, got %d", r.status)
		}
	}

	resp := doGetWithAuth(t, "/api/payments/"+order.Number, token)
	defer resp.Body.Close()
	payment := decodeData[paymentResponse](t, resp)
	if payment.Status != "settlement" {
		t.Errorf("payment status: got %q, want %q", payment.Status, "settlement")
	}

	assertRowCount(t, "payment_notifications", fmt.Sprintf("payment_id = 'pay-%s'", userID), 2)
}

func TestWebhook_SettlementAfterCancelKeepsOrderCancelled(t *testing.T) {
	userID := "user-cancel-late"
	order, gatewayOrderID := placeOrderWithPayment(t, userID, "prod-bird-seed-1kg", 1)
	token := customerToken(t, userID)

	resp := doPostWithAuth(t, "/api/orders/"+order.Number+"/cancel", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}

	// The gateway settles anyway: it is authoritative for the payment,
	// but a cancelled order never flips back to confirmed.
	body := map[string]any{
		"order_id":           gatewayOrderID,
		"transaction_id":     "txn-" + userID,
		"transaction_status": "settlement",
		"status_code":        "200",
		"gross_amount":       "4.75",
		"signature_key":      webhookSignature(gatewayOrderID, "200", "4.75"),
	}
	resp2 := doPost(t, "/api/webhooks/payment", body)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", resp2.StatusCode)
	}

	resp3 := doGetWithAuth(t, "/api/payments/"+order.Number, token)
	defer resp3.Body.Close()
	payment := decodeData[paymentResponse](t, resp3)
	if payment.Status != "settlement" {
		t.Errorf("payment status: got %q, want %q", payment.Status, "settlement")
	}

	resp4 := doGetWithAuth(t, "/api/orders/"+order.Number, token)
	defer resp4.Body.Close()
	got := decodeData[orderResponse](t, resp4)
	if got.Status != "cancelled" {
		t.Errorf("order status: got %q, want %q", got.Status, "cancelled")
	}
	if got.PaymentStatus != "paid" {
		t.Errorf("order payment_status: got %q, want %q", got.PaymentStatus, "paid")
	}
}

func TestWebhook_UnknownStatusAcknowledged(t *testing.T) {
	userID := "user-webhook-odd"
	order, gatewayOrderID := placeOrderWithPayment(t, userID, "prod-bird-seed-1kg", 1)
	token := customerToken(t, userID)

	body := map[string]any{
		"order_id":           gatewayOrderID,
		"transaction_status": "chargeback",
		"status_code":        "200",
		"gross_amount":       "4.75",
		"signature_key":      webhookSignature(gatewayOrderID, "200", "4.75"),
	}
	resp := doPost(t, "/api/webhooks/payment", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// The unknown status is recorded but not applied.
	resp2 := doGetWithAuth(t, "/api/payments/"+order.Number, token)
	defer resp2.Body.Close()
	payment := decodeData[paymentResponse](t, resp2)
	if payment.Status != "pending" {
		t.Errorf("payment status: got %q, want %q", payment.Status, "pending")
	}
}

func TestGetPayment_OtherUserNotFound(t *testing.T) {
	order, _ := placeOrderWithPayment(t, "user-payment-owner", "prod-bird-seed-1kg", 1)

	otherToken := customerToken(t, "user-payment-snoop")
	resp := doGetWithAuth(t, "/api/payments/"+order.Number, otherToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
