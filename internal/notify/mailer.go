package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
	"time"

	"berserk/internal/config"
	"berserk/internal/models"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

var mailTemplates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"studioEmail": func() string { return StudioEmail },
	"studioPhone": func() string { return StudioPhone },
}).Parse(`
{{define "confirmation"}}<h2>Your Consultation is Confirmed!</h2>
<p>Hi {{.FirstName}},</p>
<p>Thank you for booking your consultation with {{.DisplayArtist}}.</p>
<p><strong>Appointment Details:</strong></p>
<ul>
<li>Date: {{.AppointmentDate}}</li>
<li>Time: {{.AppointmentTime}}</li>
<li>Artist: {{.DisplayArtist}}</li>
<li>Booking ID: {{.ID}}</li>
</ul>
<p>We look forward to seeing you!</p>
<p>Questions? Contact us at {{studioEmail}} or {{studioPhone}}</p>{{end}}
{{define "payment_failed"}}<h2>Your payment didn't go through</h2>
<p>Hi {{.FirstName}},</p>
<p>We couldn't process the deposit for your consultation with {{.DisplayArtist}} on {{.AppointmentDate}} at {{.AppointmentTime}}.</p>
<p>Your booking ({{.ID}}) is on hold. You can try again from our booking page, or contact us at {{studioEmail}} or {{studioPhone}}.</p>{{end}}
{{define "studio_new_booking"}}<p>New consultation booking received:</p>
<ul>
<li>Customer: {{.CustomerName}}</li>
<li>Email: {{.Email}}</li>
<li>Phone: {{.Phone}}</li>
<li>Artist: {{.DisplayArtist}}</li>
<li>Date: {{.AppointmentDate}} at {{.AppointmentTime}}</li>
<li>Placement: {{.Placement}}</li>
<li>Size: {{.Size}}</li>
<li>Description: {{.Description}}</li>
<li>Booking ID: {{.ID}}</li>
</ul>{{end}}
{{define "studio_payment_failed"}}<p>Deposit payment failed for booking {{.ID}} ({{.CustomerName}}, {{.AppointmentDate}} {{.AppointmentTime}}).</p>{{end}}
`))

// SendFunc delivers a composed message. The default dials the configured
// SMTP server for every call.
type SendFunc func(ctx context.Context, msg *mail.Msg) error

const defaultSMTPTimeout = 15 * time.Second

// Mailer sends HTML mail with a plain-text alternative. It serves customers
// and, when a studio address is configured, the studio inbox.
type Mailer struct {
	cfg    config.SMTPConfig
	send   SendFunc
	logger *zerolog.Logger
	now    func() time.Time
}

func NewMailer(cfg config.SMTPConfig, logger *zerolog.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp port %d out of range", cfg.Port)
	}
	client, err := newSMTPClient(cfg)
	if err != nil {
		return nil, err
	}
	send := func(ctx context.Context, msg *mail.Msg) error {
		return client.DialAndSendWithContext(ctx, msg)
	}
	return &Mailer{cfg: cfg, send: send, logger: logger, now: time.Now}, nil
}

func newSMTPClient(cfg config.SMTPConfig) (*mail.Client, error) {
	policy, err := tlsPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(policy),
	}
	if cfg.Port == 465 && policy != mail.NoTLS {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown smtp tls policy %q", name)
	}
}

func (m *Mailer) SendConfirmation(ctx context.Context, b *models.Booking) error {
	return m.render(ctx, b.Email, "Booking Confirmed - Berserk Tattoos", "confirmation", b)
}

func (m *Mailer) SendPaymentFailed(ctx context.Context, b *models.Booking, _ models.PaymentFailure) error {
	return m.render(ctx, b.Email, "Payment Failed - Berserk Tattoos", "payment_failed", b)
}

func (m *Mailer) NotifyNewBooking(ctx context.Context, b *models.Booking) error {
	return m.render(ctx, m.studioAddress(), "New Booking: "+b.CustomerName(), "studio_new_booking", b)
}

func (m *Mailer) NotifyPaymentFailed(ctx context.Context, b *models.Booking, _ models.PaymentFailure) error {
	return m.render(ctx, m.studioAddress(), "Payment Failed: "+b.ID, "studio_payment_failed", b)
}

func (m *Mailer) studioAddress() string {
	if m.cfg.StudioEmail != "" {
		return m.cfg.StudioEmail
	}
	return StudioEmail
}

func (m *Mailer) render(ctx context.Context, to, subject, name string, b *models.Booking) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient address is empty")
	}
	var body bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&body, name, b); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return m.SendHTML(ctx, to, subject, body.String())
}

// SendHTML delivers one message to a single recipient.
func (m *Mailer) SendHTML(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.compose(to, subject, htmlBody)
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info().Str("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}

func (m *Mailer) compose(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(m.now())
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	msg.AddAlternativeString(mail.TypeTextPlain, plainText(htmlBody))
	return msg, nil
}

var (
	blockTags = regexp.MustCompile(`(?i)</?(p|h[1-6]|ul|li|br)\b[^>]*>`)
	anyTag    = regexp.MustCompile(`<[^>]*>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// plainText flattens the rendered templates for clients that skip HTML.
func plainText(htmlBody string) string {
	s := blockTags.ReplaceAllString(htmlBody, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
