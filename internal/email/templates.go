package email

import (
	"fmt"
	"html"
	"strings"
)

// FailedShop is a shop whose order could not be created
type FailedShop struct {
	Name    string
	Message string
}

// CheckoutSummary is what the checkout emails report
type CheckoutSummary struct {
	CheckoutID  string
	OrderIDs    []string
	FailedShops []FailedShop
	PaymentURL  string
}

// BuildCheckoutConfirmationBody builds the HTML body for the checkout confirmation email
func BuildCheckoutConfirmationBody(s CheckoutSummary) string {
	var ordersHTML strings.Builder
	for _, id := range s.OrderIDs {
		ordersHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; font-family: monospace;">%s</td>
			</tr>`,
			html.EscapeString(id),
		))
	}

	payment := ""
	if s.PaymentURL != "" {
		payment = fmt.Sprintf(`
		<div style="text-align: center; margin: 30px 0;">
			<a href="%s" style="background: #667eea; color: white; padding: 12px 24px; border-radius: 5px; text-decoration: none;">お支払いへ進む</a>
		</div>`, html.EscapeString(s.PaymentURL))
	}

	return page("ご注文ありがとうございます", fmt.Sprintf(`
		<p style="margin-top: 0;">この度はご注文いただき、誠にありがとうございます。</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">受付番号</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">作成されたご注文（%d件）</h2>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">注文番号</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>
		%s%s`,
		html.EscapeString(s.CheckoutID),
		len(s.OrderIDs),
		ordersHTML.String(),
		failedShopsSection(s.FailedShops),
		payment,
	))
}

// BuildCheckoutFailedBody builds the HTML body sent when no order could be created
func BuildCheckoutFailedBody(s CheckoutSummary) string {
	return page("ご注文を受け付けできませんでした", fmt.Sprintf(`
		<p style="margin-top: 0;">申し訳ございません。ご注文の処理中に問題が発生し、注文は作成されませんでした。</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">受付番号</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>
		%s
		<p>カートの商品はそのまま残っています。時間をおいて再度お試しください。</p>`,
		html.EscapeString(s.CheckoutID),
		failedShopsSection(s.FailedShops),
	))
}

func failedShopsSection(shops []FailedShop) string {
	if len(shops) == 0 {
		return ""
	}
	var rows strings.Builder
	for _, shop := range shops {
		rows.WriteString(fmt.Sprintf(
			`<li style="margin-bottom: 6px;"><strong>%s</strong>: %s</li>`,
			html.EscapeString(shop.Name),
			html.EscapeString(shop.Message),
		))
	}
	return fmt.Sprintf(`
		<div style="background: #fff4e5; border-left: 4px solid #f0ad4e; padding: 15px; margin: 20px 0;">
			<p style="margin: 0 0 10px 0; font-weight: bold;">以下のショップのご注文は作成できませんでした</p>
			<ul style="margin: 0; padding-left: 20px;">%s</ul>
		</div>`, rows.String())
}

func page(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">%s

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			このメールは自動送信されています。ご不明な点がございましたら、サポートまでお問い合わせください。
		</p>
	</div>
</body>
</html>`, title, content)
}
