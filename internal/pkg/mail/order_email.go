package mail

import (
	"fmt"
	"html"
	"strings"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// OrderConfirmation renders the fixed confirmation email for a paid order.
// Every issued ticket gets one line with its token and signature, the pair a
// door device needs.
func OrderConfirmation(event *models.Event, order *models.Order, tickets []models.Ticket) (string, string) {
	subject := fmt.Sprintf("Your tickets for %s (order %s)", event.Name, order.Reference)

	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>Hello %s,</p>", html.EscapeString(order.BuyerName))
	fmt.Fprintf(&b, "<p>thank you for your order <strong>%s</strong> for %s on %s.</p>",
		html.EscapeString(order.Reference),
		html.EscapeString(event.Name),
		event.StartsAt.UTC().Format("2006-01-02 15:04 MST"))
	b.WriteString("<p>Show one of these codes per guest at the entrance:</p><ul>")
	n := 0
	for _, t := range tickets {
		if t.Status != models.TicketStatusIssued {
			continue
		}
		n++
		fmt.Fprintf(&b, "<li>Ticket %d: <code>%s.%s</code></li>", n, t.Token, t.Signature)
	}
	b.WriteString("</ul></body></html>")
	return subject, b.String()
}
