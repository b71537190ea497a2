package mail

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/rideya/rideya-backend/internal/config"
)

// Message письмо для отправки.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// SMTPMailer отправляет письма через SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

// Send отправляет письмо и возвращает присвоенный Message-ID.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@rideya>", uuid.NewString())

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetHeader("Message-ID", messageID)

	switch {
	case msg.Text != "" && msg.HTML != "":
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		gm.SetBody("text/html", msg.HTML)
	default:
		gm.SetBody("text/plain", msg.Text)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return "", fmt.Errorf("smtp: send to %s: %w", msg.To, err)
	}
	return messageID, nil
}

// SendWelcome отправляет приветственное письмо после регистрации.
func (m *SMTPMailer) SendWelcome(ctx context.Context, to, firstName string) error {
	_, err := m.Send(ctx, WelcomeMessage(to, firstName))
	return err
}

// WelcomeMessage формирует приветственное письмо.
func WelcomeMessage(to, firstName string) Message {
	return Message{
		To:      to,
		Subject: "Welcome to Rideya!",
		Text:    fmt.Sprintf("Hi %s, your Rideya account has been created.", firstName),
		HTML: fmt.Sprintf(`
		<h2>Welcome to Rideya, %s!</h2>
		<p>Your account has been successfully created.</p>
		<p>Have a great ride,<br>The Rideya Team</p>
	`, firstName),
	}
}
