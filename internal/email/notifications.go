package email

import (
	"fmt"
	"strings"

	"github.com/Dhoini/ekaty/internal/templating"
)

// Kind вид уведомления по подписке
type Kind string

const (
	KindSubscriptionActivated Kind = "subscription_activated"
	KindSubscriptionUpdated   Kind = "subscription_updated"
	KindSubscriptionCanceled  Kind = "subscription_canceled"
	KindPaymentReceipt        Kind = "payment_receipt"
	KindPaymentFailed         Kind = "payment_failed"
	KindClaimConfirmed        Kind = "claim_confirmed"
)

type notificationTemplate struct {
	subject string
	body    string
}

const layout = `<!doctype html><html><body style="font-family:Arial,sans-serif;color:#1f2937">
<h2 style="color:#b91c1c">eKaty</h2>
{{content}}
<p style="color:#6b7280;font-size:12px">{{sender_name}} &middot; <a href="{{site_url}}">{{site_url}}</a></p>
</body></html>`

var notificationTemplates = map[Kind]notificationTemplate{
	KindSubscriptionActivated: {
		subject: "Your eKaty {{tier}} plan is active",
		body: `<p>Hi {{name}},</p><p>Your <strong>{{tier}}</strong> partnership plan is now active.` +
			` Manage your listing from your <a href="{{account_url}}">account page</a>.</p>`,
	},
	KindSubscriptionUpdated: {
		subject: "Your eKaty plan was updated",
		body:    `<p>Hi {{name}},</p><p>Your plan is now <strong>{{tier}}</strong> ({{status}}).</p>`,
	},
	KindSubscriptionCanceled: {
		subject: "Your eKaty subscription was canceled",
		body: `<p>Hi {{name}},</p><p>Your {{previous_tier}} subscription has been canceled and your listing` +
			` is back on the free plan. You can resubscribe any time from your <a href="{{account_url}}">account page</a>.</p>`,
	},
	KindPaymentReceipt: {
		subject: "Receipt for your eKaty subscription",
		body: `<p>Hi {{name}},</p><p>We received your payment of <strong>{{amount}}</strong>.` +
			` <a href="{{invoice_url}}">View invoice</a>.</p>`,
	},
	KindPaymentFailed: {
		subject: "Action needed: payment failed for your eKaty plan",
		body: `<p>Hi {{name}},</p><p>We could not charge <strong>{{amount}}</strong> for your {{tier}} plan` +
			` (attempt {{attempt}}). Please update your card in the <a href="{{account_url}}">billing portal</a>` +
			` to keep your listing benefits.</p>`,
	},
	KindClaimConfirmed: {
		subject: "You now manage {{restaurant_name}} on eKaty",
		body: `<p>Hi {{name}},</p><p>Your claim for <strong>{{restaurant_name}}</strong> is confirmed on the` +
			` {{tier}} plan.</p>`,
	},
}

// Notification готовит письмо уведомления. Значения vars экранируются.
func Notification(kind Kind, to string, vars map[string]string) (Message, error) {
	tmpl, ok := notificationTemplates[kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown notification %q", ErrInvalidMessage, kind)
	}
	// Рамка и содержимое рендерятся отдельно, чтобы готовый HTML не экранировался повторно
	head, tail, _ := strings.Cut(layout, "{{content}}")
	html := templating.RenderHTML(head, vars) + templating.RenderHTML(tmpl.body, vars) + templating.RenderHTML(tail, vars)

	return Message{
		To:      to,
		Subject: templating.RenderText(tmpl.subject, vars),
		HTML:    html,
		Tag:     string(kind),
	}, nil
}

// FormatAmount форматирует сумму в центах: 1900, "usd" -> "$19.00"
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	value := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if strings.EqualFold(currency, "usd") || currency == "" {
		return sign + "$" + value
	}
	return sign + value + " " + strings.ToUpper(currency)
}
