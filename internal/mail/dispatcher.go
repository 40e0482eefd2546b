package mail

import (
	"fmt"
	"time"

	"github.com/mautops/expense-gin/internal/model"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Sender 邮件发送接口,测试时可替换为桩实现
type Sender interface {
	Send(to, subject, text, html string) error
	Enabled() bool
}

// Config SMTP 配置
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration // 单次发送超时,默认 5 秒
}

// Dispatcher 基于 SMTP 的邮件分发器
// 尽力而为的旁路通道:发送失败只记日志,绝不向上传播为工作流错误
type Dispatcher struct {
	cfg    Config
	logger *logrus.Logger
}

// NewDispatcher 创建邮件分发器
func NewDispatcher(cfg Config, logger *logrus.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Dispatcher{cfg: cfg, logger: logger}
}

// Enabled 判断 SMTP 是否已配置
// 未配置时(开发环境)邮件只记日志不发送
func (d *Dispatcher) Enabled() bool {
	return d.cfg.Host != ""
}

// Send 发送一封邮件
// 阻塞网络调用,带超时;调用方应在工作流关键路径之外触发
func (d *Dispatcher) Send(to, subject, text, html string) error {
	if !d.Enabled() {
		d.logger.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Debug("SMTP not configured, skipping email")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	if html != "" {
		m.AddAlternative("text/html", html)
	}

	dialer := gomail.NewDialer(d.cfg.Host, d.cfg.Port, d.cfg.Username, d.cfg.Password)

	// gomail 的 DialAndSend 没有内置超时,放进带超时的 goroutine
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-time.After(d.cfg.Timeout):
		return fmt.Errorf("email send timed out after %s", d.cfg.Timeout)
	}
}

// RenderNotification 由通知渲染邮件主题与正文
func RenderNotification(n *model.NotificationModel) (subject, text, html string) {
	subject = n.Title
	text = n.Message
	html = fmt.Sprintf("<h3>%s</h3><p>%s</p>", n.Title, n.Message)
	return subject, text, html
}
