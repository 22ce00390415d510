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

package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendCall struct {
	addr string
	auth bool
}

func recordingSMTP(t *testing.T, errs ...error) (*SMTP, *[]sendCall) {
	t.Helper()
	s, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", Username: "etl@example.com", Password: "secret"})
	require.NoError(t, err)
	var calls []sendCall
	s.send = func(e *email.Email, addr string, a smtp.Auth) error {
		calls = append(calls, sendCall{addr: addr, auth: a != nil})
		if len(errs) == 0 {
			return nil
		}
		err := errs[0]
		errs = errs[1:]
		return err
	}
	return s, &calls
}

func TestSMTPMessage(t *testing.T) {
	s, _ := recordingSMTP(t)
	mail := s.Message([]string{"ops@example.com"}, "ng_substations", "OK.")
	assert.Equal(t, "gridetl <etl@example.com>", mail.From)
	assert.Equal(t, []string{"ops@example.com"}, mail.To)

	raw, err := mail.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: ng_substations")
	assert.Contains(t, string(raw), "OK.")
}

func TestSMTPSend(t *testing.T) {
	s, calls := recordingSMTP(t)
	require.NoError(t, s.Send(context.Background(), []string{"ops@example.com"}, "s", "b"))
	assert.Equal(t, []sendCall{{addr: "smtp.example.com:587", auth: true}}, *calls)
}

func TestSMTPRetriesWithoutAuth(t *testing.T) {
	s, calls := recordingSMTP(t, errors.New("smtp: server doesn't support AUTH"))
	require.NoError(t, s.Send(context.Background(), []string{"ops@example.com"}, "s", "b"))
	assert.Equal(t, []sendCall{
		{addr: "smtp.example.com:587", auth: true},
		{addr: "smtp.example.com:587", auth: false},
	}, *calls)
}

func TestSMTPSendError(t *testing.T) {
	s, _ := recordingSMTP(t, errors.New("connection refused"))
	err := s.Send(context.Background(), []string{"ops@example.com"}, "s", "b")
	var nerr *NotifyError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "send", nerr.Op)
}

func TestNewSMTPRequiresHost(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{})
	assert.Error(t, err)
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Send(ctx context.Context, to []string, subject, body string) error {
	f.calls++
	return errors.New("mail server down")
}

func TestReportLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := &failingNotifier{}

	Report(context.Background(), n, logger, []string{"ops@example.com"}, "ng_substations", "OK.")
	assert.Equal(t, 1, n.calls)
	assert.Contains(t, buf.String(), "notification failed")
	assert.Contains(t, buf.String(), "mail server down")

	Report(context.Background(), n, logger, nil, "ng_substations", "OK.")
	assert.Equal(t, 1, n.calls)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: zerolog.New(&buf)}
	require.NoError(t, l.Send(context.Background(), []string{"a@b.c"}, "subject", "body"))
	assert.Contains(t, buf.String(), `"subject":"subject"`)
}
