package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
}

// SendCheckoutConfirmation tells the customer which orders were created. Failed shops,
// if any, are listed in a warning section.
func (s *Service) SendCheckoutConfirmation(to string, summary CheckoutSummary) error {
	subject := fmt.Sprintf("【注文確認】ご注文ありがとうございます（受付番号: %s）", shortID(summary.CheckoutID))
	if len(summary.FailedShops) > 0 {
		subject = fmt.Sprintf("【注文確認】一部のご注文を受け付けできませんでした（受付番号: %s）", shortID(summary.CheckoutID))
	}
	return s.deliver(to, subject, BuildCheckoutConfirmationBody(summary))
}

// SendCheckoutFailed tells the customer that no order could be created.
func (s *Service) SendCheckoutFailed(to string, summary CheckoutSummary) error {
	subject := fmt.Sprintf("【ご注文失敗】ご注文を受け付けできませんでした（受付番号: %s）", shortID(summary.CheckoutID))
	return s.deliver(to, subject, BuildCheckoutFailedBody(summary))
}

func (s *Service) deliver(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
