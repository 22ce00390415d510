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

package exporter

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/UrsicDX/gridetl/core"
)

// PortalError provides structured error information for portal requests.
type PortalError struct {
	Op  string
	URL string
	Err error
}

func (e *PortalError) Error() string {
	return fmt.Sprintf("portal %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *PortalError) Unwrap() error {
	return e.Err
}

// PortalOptions configures a Portal.
type PortalOptions struct {
	BaseURL   string
	MapPath   string
	LoginPath string
	AppPath   string
	Email     string
	Password  string
	Timeout   time.Duration
	UserAgent string
}

// PortalOption is a functional option for PortalOptions.
type PortalOption func(*PortalOptions)

func WithPortalPaths(mapPath, loginPath, appPath string) PortalOption {
	return func(o *PortalOptions) {
		o.MapPath = mapPath
		o.LoginPath = loginPath
		o.AppPath = appPath
	}
}

func WithPortalCredentials(email, password string) PortalOption {
	return func(o *PortalOptions) {
		o.Email = email
		o.Password = password
	}
}

func WithPortalTimeout(timeout time.Duration) PortalOption {
	return func(o *PortalOptions) { o.Timeout = timeout }
}

// Portal is a logged-in session on the utility customer portal.
type Portal struct {
	opts     PortalOptions
	client   *resty.Client
	lastBody []byte
}

// Login form fields, as rendered by the portal.
const (
	emailFieldID    = "customer-portal-form-field__emailAddress"
	passwordFieldID = "customer-portal-form-field__password"
)

// NewPortal creates a portal session for baseURL.
func NewPortal(baseURL string, options ...PortalOption) (*Portal, error) {
	opts := PortalOptions{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		MapPath:   "/network-opportunity-map/",
		LoginPath: "/customer-portal/login",
		AppPath:   "/our-network/network-capacity-map-application",
		Timeout:   60 * time.Second,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.BaseURL == "" {
		return nil, &PortalError{Op: "configure", Err: fmt.Errorf("base URL is required")}
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, &PortalError{Op: "configure", URL: opts.BaseURL, Err: err}
	}
	if opts.Email == "" || opts.Password == "" {
		return nil, &PortalError{Op: "configure", URL: opts.BaseURL, Err: fmt.Errorf("portal email and password are required")}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &PortalError{Op: "configure", Err: err}
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetCookieJar(jar).
		SetHeader("User-Agent", opts.UserAgent).
		SetTimeout(opts.Timeout).
		SetRetryCount(0)

	return &Portal{opts: opts, client: client}, nil
}

// LastResponse returns the body of the last page the portal returned.
func (p *Portal) LastResponse() []byte {
	return p.lastBody
}

func (p *Portal) get(ctx context.Context, op, path string) (*resty.Response, *goquery.Document, error) {
	res, err := p.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, nil, &PortalError{Op: op, URL: path, Err: core.External("portal", op, err)}
	}
	p.lastBody = res.Body()
	if res.IsError() {
		return nil, nil, &PortalError{Op: op, URL: path, Err: fmt.Errorf("unexpected status %s", res.Status())}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, nil, &PortalError{Op: op, URL: path, Err: err}
	}
	return res, doc, nil
}

// Login signs in with the configured credentials. The login form's hidden
// fields (anti-forgery token) are posted back unchanged. A final page whose
// URL still mentions login or error fails with AuthenticationError.
func (p *Portal) Login(ctx context.Context) error {
	loginPath := p.opts.LoginPath
	if p.opts.MapPath != "" {
		_, doc, err := p.get(ctx, "open_map", p.opts.MapPath)
		if err != nil {
			return err
		}
		sel := fmt.Sprintf(`a[href^="%s"]`, p.opts.LoginPath)
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			loginPath = href
		}
	}

	_, doc, err := p.get(ctx, "open_login", loginPath)
	if err != nil {
		return err
	}
	form := doc.Find("#" + emailFieldID).Closest("form")
	if form.Length() == 0 {
		return &PortalError{Op: "open_login", URL: loginPath, Err: fmt.Errorf("login form not found")}
	}

	data := make(map[string]string)
	form.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		if name, ok := s.Attr("name"); ok {
			data[name] = s.AttrOr("value", "")
		}
	})
	data[doc.Find("#"+emailFieldID).AttrOr("name", "emailAddress")] = p.opts.Email
	data[doc.Find("#"+passwordFieldID).AttrOr("name", "password")] = p.opts.Password

	action := form.AttrOr("action", "")
	if action == "" {
		action = loginPath
	}
	res, err := p.client.R().SetContext(ctx).SetFormData(data).Post(action)
	if err != nil {
		return &PortalError{Op: "login", URL: action, Err: core.External("portal", "login", err)}
	}
	p.lastBody = res.Body()

	final := action
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL.String()
	}
	if res.IsError() {
		return &core.AuthenticationError{URL: final, Reason: res.Status()}
	}
	if LoginFailed(final) {
		return &core.AuthenticationError{URL: final, Reason: "still on the login page after submitting credentials"}
	}
	return nil
}

// LoginFailed reports whether the page reached after submitting the login
// form means the credentials were rejected.
func LoginFailed(finalURL string) bool {
	u := strings.ToLower(finalURL)
	return strings.Contains(u, "login") || strings.Contains(u, "error")
}

// exportSelectors locate the export link on the application page.
var exportSelectors = []struct {
	selector string
	attr     string
}{
	{"a.export-button", "href"},
	{"button.export-button", "data-href"},
	{"[data-export-url]", "data-export-url"},
}

// Download opens the capacity map application, follows its export link and
// saves the export into dir. It returns the saved file path.
func (p *Portal) Download(ctx context.Context, dir string) (string, error) {
	_, doc, err := p.get(ctx, "open_app", p.opts.AppPath)
	if err != nil {
		return "", err
	}

	var link string
	for _, s := range exportSelectors {
		if v, ok := doc.Find(s.selector).First().Attr(s.attr); ok && v != "" {
			link = v
			break
		}
	}
	if link == "" {
		return "", &PortalError{Op: "find_export", URL: p.opts.AppPath, Err: fmt.Errorf("export link not found")}
	}

	res, err := p.client.R().SetContext(ctx).Get(link)
	if err != nil {
		return "", &PortalError{Op: "download", URL: link, Err: core.External("portal", "download", err)}
	}
	if res.IsError() {
		p.lastBody = res.Body()
		return "", &PortalError{Op: "download", URL: link, Err: fmt.Errorf("unexpected status %s", res.Status())}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &PortalError{Op: "download", URL: link, Err: err}
	}
	name := exportFileName(res.Header().Get("Content-Disposition"), link)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, res.Body(), 0o644); err != nil {
		return "", &PortalError{Op: "download", URL: link, Err: err}
	}
	return path, nil
}

// exportFileName takes the attachment name when the server sends one and
// falls back to the last segment of the link.
func exportFileName(disposition, link string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" && params["filename"] != "" {
				return ensureCSV(name)
			}
		}
	}
	if u, err := url.Parse(link); err == nil {
		if name := filepath.Base(u.Path); name != "." && name != "/" {
			return ensureCSV(name)
		}
	}
	return "export.csv"
}

func ensureCSV(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return name
	}
	return name + ".csv"
}
