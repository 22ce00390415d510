//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

// Package notify tells operators that a job finished.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog"
)

// NotifyError provides structured error information for failed notifications.
type NotifyError struct {
	Op  string
	Err error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Op, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Notifier delivers a short message to recipients.
type Notifier interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Report sends through n and only logs a failure, so a broken mailer never
// fails the job it reports on. Without recipients nothing is sent.
func Report(ctx context.Context, n Notifier, logger zerolog.Logger, to []string, subject, body string) {
	if n == nil || len(to) == 0 {
		logger.Debug().Str("subject", subject).Msg("notification skipped, no recipients")
		return
	}
	if err := n.Send(ctx, to, subject, body); err != nil {
		logger.Warn().Err(err).Str("subject", subject).Strs("to", to).Msg("notification failed")
		return
	}
	logger.Info().Str("subject", subject).Strs("to", to).Msg("notification sent")
}

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendFunc matches (*email.Email).Send.
type sendFunc func(e *email.Email, addr string, a smtp.Auth) error

// SMTP sends plain text mail.
type SMTP struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, &NotifyError{Op: "configure", Err: fmt.Errorf("smtp host is required")}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTP{cfg: cfg, send: (*email.Email).Send}, nil
}

// Message builds the mail for to.
func (s *SMTP) Message(to []string, subject, body string) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("gridetl <%s>", s.cfg.From)
	mail.To = append([]string(nil), to...)
	mail.Subject = subject
	mail.Text = []byte(body)
	return mail
}

// Send implements Notifier. Servers without AUTH get an unauthenticated retry.
func (s *SMTP) Send(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return &NotifyError{Op: "send", Err: err}
	}
	mail := s.Message(to, subject, body)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	err := s.send(mail, addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = s.send(mail, addr, nil)
	}
	if err != nil {
		return &NotifyError{Op: "send", Err: err}
	}
	return nil
}

// Log writes notifications to a logger instead of mailing them.
type Log struct {
	Logger zerolog.Logger
}

// Send implements Notifier.
func (l Log) Send(ctx context.Context, to []string, subject, body string) error {
	l.Logger.Info().Strs("to", to).Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}
