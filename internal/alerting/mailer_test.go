package alerting

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/zaorak/affiliate-hub/internal/config"
)

func smtpTestConfig() config.SMTPConfig {
	return config.SMTPConfig{
		Host:     "mail.example.com",
		Port:     587,
		User:     "bot",
		Password: "pw",
		From:     "alerts@example.com",
		To:       "ops@example.com",
	}
}

func TestSMTPMailerSend(t *testing.T) {
	var captured *gomail.Message
	m := NewSMTPMailer(smtpTestConfig(), testLogger())
	m.dial = func(msg *gomail.Message) error {
		captured = msg
		return nil
	}

	sent, info := m.Send("programme changes (SE)", "NEW: Acme")
	if !sent {
		t.Fatalf("邮件应发送成功, info=%s", info)
	}
	if info != "sent" {
		t.Fatalf("info 不正确: %s", info)
	}
	if captured == nil {
		t.Fatal("拨号函数未被调用")
	}
	if got := captured.GetHeader("Subject"); len(got) != 1 || got[0] != "programme changes (SE)" {
		t.Fatalf("Subject 不正确: %#v", got)
	}
	if got := captured.GetHeader("To"); len(got) != 1 || !strings.Contains(got[0], "ops@example.com") {
		t.Fatalf("To 不正确: %#v", got)
	}
}

func TestSMTPMailerIncompleteConfig(t *testing.T) {
	cfg := smtpTestConfig()
	cfg.Host = ""
	m := NewSMTPMailer(cfg, testLogger())
	m.dial = func(msg *gomail.Message) error {
		t.Fatal("不完整配置不应拨号")
		return nil
	}

	sent, info := m.Send("subject", "body")
	if sent {
		t.Fatal("不完整配置不应发送")
	}
	if info != "smtp not configured" {
		t.Fatalf("info 不正确: %s", info)
	}
}

func TestSMTPMailerDialFailure(t *testing.T) {
	m := NewSMTPMailer(smtpTestConfig(), testLogger())
	m.dial = func(msg *gomail.Message) error {
		return errors.New("connection refused")
	}

	sent, info := m.Send("subject", "body")
	if sent {
		t.Fatal("拨号失败不应标记已发送")
	}
	if !strings.Contains(info, "connection refused") {
		t.Fatalf("info 应包含失败原因: %s", info)
	}
}

func TestThrottle(t *testing.T) {
	th := NewThrottle()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	cooldown := time.Hour

	if !th.Allow("SE", base, cooldown) {
		t.Fatal("首次告警应放行")
	}
	if th.Allow("SE", base.Add(30*time.Minute), cooldown) {
		t.Fatal("冷却期内应压制")
	}
	if !th.Allow("RO", base.Add(30*time.Minute), cooldown) {
		t.Fatal("其它国家不受影响")
	}
	if !th.Allow("SE", base.Add(cooldown), cooldown) {
		t.Fatal("冷却期满应再次放行")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
