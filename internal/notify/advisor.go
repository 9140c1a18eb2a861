package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/alejandria/sales-ai-platform/internal/leads"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// Promotion describes a lead that just left the bot for a human advisor.
type Promotion struct {
	LeadID         int64
	ConversationID string
	Category       leads.Category
	Tag            string
	LastMessage    string
	LastReply      string
	At             time.Time
}

// AdvisorNotifier emails the sales advisors when a lead is promoted.
type AdvisorNotifier struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewAdvisorNotifier returns a notifier. With no sender or no recipients it logs and skips.
func NewAdvisorNotifier(email EmailSender, recipients []string, logger *logging.Logger) *AdvisorNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	cleaned := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &AdvisorNotifier{email: email, recipients: cleaned, logger: logger}
}

// NotifyPromotion sends one email per recipient. Every recipient is attempted;
// the returned error joins the individual failures.
func (n *AdvisorNotifier) NotifyPromotion(ctx context.Context, p Promotion) error {
	if n.email == nil || len(n.recipients) == 0 {
		n.logger.Debug("notify: advisor alerts not configured, skipping", "lead_id", p.LeadID)
		return nil
	}
	if !p.Category.Promoted() {
		return nil
	}

	subject := fmt.Sprintf("Lead %d listo para asesor (%s)", p.LeadID, p.Category)
	body := n.formatText(p)
	htmlBody := n.formatHTML(p)
	tags := map[string]string{
		"lead_id":  strconv.FormatInt(p.LeadID, 10),
		"category": string(p.Category),
	}

	var errs []error
	for _, to := range n.recipients {
		if err := n.email.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body, HTML: htmlBody, Tags: tags}); err != nil {
			n.logger.Error("notify: advisor email failed", "error", err, "to", to, "lead_id", p.LeadID)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: advisor alert: %w", errors.Join(errs...))
	}
	n.logger.Info("notify: advisors alerted", "lead_id", p.LeadID, "category", string(p.Category), "recipients", len(n.recipients))
	return nil
}

func (n *AdvisorNotifier) formatText(p Promotion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead: %d\n", p.LeadID)
	fmt.Fprintf(&b, "Conversación: %s\n", p.ConversationID)
	fmt.Fprintf(&b, "Categoría: %s (%s)\n", p.Category, p.Tag)
	if !p.At.IsZero() {
		fmt.Fprintf(&b, "Fecha: %s\n", p.At.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\nÚltimo mensaje del cliente:\n%s\n", truncate(p.LastMessage, 500))
	if p.LastReply != "" {
		fmt.Fprintf(&b, "\nRespuesta del asistente:\n%s\n", truncate(p.LastReply, 500))
	}
	b.WriteString("\nEl bot se detuvo (etiqueta STOP). Continúa la conversación desde Kommo.")
	return b.String()
}

func (n *AdvisorNotifier) formatHTML(p Promotion) string {
	return fmt.Sprintf(
		"<h2>Lead %d listo para asesor</h2><p><strong>Categoría:</strong> %s (%s)</p><p><strong>Conversación:</strong> %s</p><p><strong>Cliente:</strong> %s</p><p><strong>Asistente:</strong> %s</p>",
		p.LeadID,
		html.EscapeString(string(p.Category)),
		html.EscapeString(p.Tag),
		html.EscapeString(p.ConversationID),
		html.EscapeString(truncate(p.LastMessage, 500)),
		html.EscapeString(truncate(p.LastReply, 500)),
	)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
