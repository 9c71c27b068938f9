package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/smallbiznis/revenuepulse/internal/config"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"go.uber.org/zap"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<h2>{{.Header}}</h2>
<hr>
<table cellpadding="6">
{{- range .Fields}}
<tr><td><strong>{{.Label}}</strong></td><td align="right">{{.Value}}</td></tr>
{{- end}}
</table>
<p><em>{{.Footer}}</em></p>
</body>
</html>
`))

// Sink mails reports as HTML over SMTP.
type Sink struct {
	cfg  Config
	send SendFunc
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Sink {
	return NewWithSender(cfg, smtp.SendMail, log)
}

func NewWithSender(cfg Config, send SendFunc, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{cfg: cfg, send: send, log: log.Named("providers.email")}
}

func (s *Sink) Name() string { return config.SinkEmail }

func (s *Sink) Deliver(ctx context.Context, report reportdomain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.cfg.To) == 0 {
		return fmt.Errorf("email: no recipients")
	}

	msg, err := s.message(report)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, s.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Info("report mailed", zap.Int("recipients", len(s.cfg.To)))
	return nil
}

func (s *Sink) message(report reportdomain.Report) ([]byte, error) {
	var body bytes.Buffer
	if err := reportTemplate.Execute(&body, report); err != nil {
		return nil, fmt.Errorf("render email template: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject(report))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func subject(report reportdomain.Report) string {
	if report.GeneratedAt.IsZero() {
		return report.Title
	}
	return fmt.Sprintf("%s - %s", report.Title, report.GeneratedAt.Format("Jan 2, 2006"))
}
