package alerting

import (
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/zaorak/affiliate-hub/internal/config"
)

// Mailer 定义告警投递接口。Send 返回投递结果与一段说明文字,
// 两者都会进入审计日志。
type Mailer interface {
	Send(subject, body string) (sent bool, info string)
}

// SMTPMailer 通过 SMTP 发送纯文本告警邮件。
type SMTPMailer struct {
	cfg    config.SMTPConfig
	dial   func(m *gomail.Message) error
	logger zerolog.Logger
}

// NewSMTPMailer 构造 SMTP 告警器。
func NewSMTPMailer(cfg config.SMTPConfig, logger zerolog.Logger) *SMTPMailer {
	m := &SMTPMailer{
		cfg:    cfg,
		logger: logger.With().Str("component", "alert_mailer").Logger(),
	}
	m.dial = func(msg *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
		return d.DialAndSend(msg)
	}
	return m
}

func (m *SMTPMailer) configured() bool {
	return m.cfg.Host != "" && m.cfg.Port > 0 && m.cfg.From != "" && m.cfg.To != ""
}

// Send delivers one alert email. Incomplete transport configuration is a
// reported outcome, never an error: the audit log records why nothing
// went out.
func (m *SMTPMailer) Send(subject, body string) (bool, string) {
	if !m.configured() {
		return false, "smtp not configured"
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dial(msg); err != nil {
		m.logger.Warn().Err(err).Str("subject", subject).Msg("alert email failed")
		return false, fmt.Sprintf("send failed: %v", err)
	}

	m.logger.Info().Str("subject", subject).Msg("alert email sent")
	return true, "sent"
}
