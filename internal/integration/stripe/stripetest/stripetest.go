// Package stripetest собирает подписанные события Stripe для тестов обработчиков вебхуков.
package stripetest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Sign возвращает значение заголовка Stripe-Signature для тела запроса
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Event сериализует событие Stripe с объектом obj
func Event(id, eventType string, created time.Time, obj any) []byte {
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2023-10-16",
		"livemode":    false,
		"data":        map[string]any{"object": obj},
	})
	if err != nil {
		panic(err)
	}
	return body
}

// Subscription объект подписки в формате API Stripe
func Subscription(id, customerID, status, priceID string, metadata map[string]string) map[string]any {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             customerID,
		"status":               status,
		"metadata":             metadata,
		"cancel_at_period_end": false,
		"current_period_start": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"current_period_end":   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"items": map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{
					"id":     "si_" + id,
					"object": "subscription_item",
					"price":  map[string]any{"id": priceID, "object": "price"},
				},
			},
		},
	}
}

// CheckoutSession объект завершенной сессии checkout
func CheckoutSession(id, customerID, subscriptionID string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":             id,
		"object":         "checkout.session",
		"mode":           "subscription",
		"customer":       customerID,
		"subscription":   subscriptionID,
		"customer_email": "owner@example.com",
		"metadata":       metadata,
	}
}

// Invoice объект счета
func Invoice(id, customerID, subscriptionID string, amountPaid, attempts int64) map[string]any {
	return map[string]any{
		"id":                 id,
		"object":             "invoice",
		"customer":           customerID,
		"subscription":       subscriptionID,
		"customer_email":     "owner@example.com",
		"amount_paid":        amountPaid,
		"amount_due":         amountPaid,
		"currency":           "usd",
		"attempt_count":      attempts,
		"hosted_invoice_url": "https://invoice.stripe.com/i/" + id,
	}
}
