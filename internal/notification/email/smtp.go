package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/railzwaylabs/subsync/internal/config"
	notificationdomain "github.com/railzwaylabs/subsync/internal/notification/domain"
	"go.uber.org/zap"
)

const dialTimeout = 15 * time.Second

// SMTPSender delivers HTML mail through a relay.
type SMTPSender struct {
	cfg config.SMTPConfig
	log *zap.Logger
}

func NewSMTPSender(cfg config.SMTPConfig, log *zap.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log.Named("notification.smtp")}
}

func (s *SMTPSender) Send(ctx context.Context, msg notificationdomain.Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%w: empty recipient", notificationdomain.ErrDeliveryFailed)
	}

	client, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", notificationdomain.ErrDeliveryFailed, err)
	}
	defer client.Close()

	if err := s.deliver(client, msg); err != nil {
		return fmt.Errorf("%w: %w", notificationdomain.ErrDeliveryFailed, err)
	}
	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if s.cfg.UseTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if !s.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return client, nil
}

func (s *SMTPSender) deliver(client *smtp.Client, msg notificationdomain.Message) error {
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range splitRecipients(msg.To) {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(buildMessage(s.cfg.From, msg)); err != nil {
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	return w.Close()
}

func splitRecipients(to string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(to, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func buildMessage(from string, msg notificationdomain.Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(splitRecipients(msg.To), ", ") + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
