package notifications

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return "£" + d.StringFixed(2) },
	"plural": func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	},
}

func mustTemplate(kind Kind, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(string(kind) + "_subject").Funcs(funcs).Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(string(kind) + "_body").Funcs(funcs).Option("missingkey=zero").Parse(body)),
	}
}

var templates = map[Kind]messageTemplate{
	KindMilestoneDelivered: mustTemplate(KindMilestoneDelivered,
		`{{if .Birthday}}Happy Birthday, {{.Name}}!{{else}}Happy {{.Years}}-year work anniversary, {{.Name}}!{{end}}`,
		`Hi {{.Name}},

{{if .Birthday}}Wishing you a wonderful birthday from all of us.{{else}}Thank you for {{.Years}} {{plural .Years "year" "years"}} with the company.{{end}}
Here is a {{money .Amount}} gift card to celebrate.

Voucher: {{.Voucher}}
`),
	KindApprovalRequired: mustTemplate(KindApprovalRequired,
		`Performance reward awaiting your approval: {{.Employee}}`,
		`Hi {{.Manager}},

A new performance reward requires approval for {{.Employee}} - {{money .Amount}}{{if .Tier}} ({{.Tier}} tier){{end}}.
{{if .Target}}Target: {{.Target}}
{{end}}Item ID: {{.ItemID}}
`),
	KindApprovalDecision: mustTemplate(KindApprovalDecision,
		`{{if .Approved}}Your performance reward has been approved!{{else}}Update on your performance reward application{{end}}`,
		`{{if .Approved}}Congratulations {{.Name}}! Your performance reward of {{money .Amount}} has been approved. {{if .IssuanceDelayed}}We are still arranging your gift card and will be in touch once it is ready.{{else}}Your gift card details follow in a separate email.{{end}}{{else}}Hi {{.Name}}, your performance reward application has been reviewed. {{if .Comments}}{{.Comments}}{{else}}Please contact your manager for more details.{{end}}{{end}}
`),
	KindGiftCardIssued: mustTemplate(KindGiftCardIssued,
		`Your performance reward gift card is ready!`,
		`Hi {{.Name}},

Your performance reward gift card for {{money .Amount}} is now ready!

Gift Card Details:
- Code: {{.Code}}
- Merchant: {{.Merchant}}
- Value: {{money .Amount}}
{{if .Expiry}}- Expires: {{.Expiry}}
{{end}}
Congratulations on your outstanding performance!
`),
	KindOverdueReminder: mustTemplate(KindOverdueReminder,
		`Overdue: Performance reward approval needed`,
		`Hi{{if .Manager}} {{.Manager}}{{end}},

The performance reward for {{.Employee}} has been pending approval for {{.DaysPending}} {{plural .DaysPending "day" "days"}}.
Please review and approve/reject at your earliest convenience.

Item ID: {{.ItemID}}
`),
	KindFullyRedeemed: mustTemplate(KindFullyRedeemed,
		`Gift card fully redeemed`,
		`Hi {{.Name}},

Your performance reward gift card ({{.Code}}) for {{money .Amount}} has been fully redeemed.
Thank you for your outstanding performance!
`),
	KindExpiryWarning: mustTemplate(KindExpiryWarning,
		`Gift card expiring soon`,
		`Hi {{.Name}},

Your gift card ({{.Code}}) with {{money .Remaining}} remaining will expire in {{.DaysLeft}} {{plural .DaysLeft "day" "days"}}.
Please use it before it expires!
`),
	KindJobSummary: mustTemplate(KindJobSummary,
		`{{if .Failed}}[FAILED] {{end}}{{.Job}}`,
		`{{.Summary}}`),
}

// Render fills n.Subject and n.Body from the Kind's template. A notification
// that already carries a subject is left untouched.
func Render(n *Notification) error {
	if n.Subject != "" {
		return nil
	}
	tmpl, ok := templates[n.Kind]
	if !ok {
		return fmt.Errorf("no template for notification kind %q", n.Kind)
	}
	var subject, body strings.Builder
	if err := tmpl.subject.Execute(&subject, n.Data); err != nil {
		return fmt.Errorf("rendering %s subject: %w", n.Kind, err)
	}
	if err := tmpl.body.Execute(&body, n.Data); err != nil {
		return fmt.Errorf("rendering %s body: %w", n.Kind, err)
	}
	n.Subject = subject.String()
	n.Body = body.String()
	return nil
}
