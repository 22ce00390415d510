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
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

const exportCSV = "Network Reference ID,Substation Name\n1,Abbey\n"

// portalServer mimics the customer portal: a map page linking to the login
// form, a token-protected login and an application page with an export link.
func portalServer(t *testing.T, password string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/network-opportunity-map/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><a href="/customer-portal/login?returnUrl=%2Fmap">Log in</a></body></html>`)
	})
	mux.HandleFunc("/customer-portal/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
			fmt.Fprint(w, `<html><body>
<form method="post" action="/customer-portal/login/submit">
  <input type="hidden" name="__RequestVerificationToken" value="tok-123">
  <input id="customer-portal-form-field__emailAddress" name="EmailAddress" type="email">
  <input id="customer-portal-form-field__password" name="Password" type="password">
  <button class="button button--primary">Log in</button>
</form></body></html>`)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/customer-portal/login/submit", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "s1" || r.PostForm.Get("__RequestVerificationToken") != "tok-123" ||
			r.PostForm.Get("EmailAddress") != "ops@example.com" || r.PostForm.Get("Password") != password {
			http.Redirect(w, r, "/customer-portal/login?error=invalid", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/customer-portal/dashboard", http.StatusFound)
	})
	mux.HandleFunc("/customer-portal/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Welcome</body></html>`)
	})
	mux.HandleFunc("/our-network/network-capacity-map-application", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a class="btn btn--primary export-button" href="/exports/capacity">Export</a></body></html>`)
	})
	mux.HandleFunc("/exports/capacity", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="WPD Network Capacity Map 16-01-2025.csv"`)
		fmt.Fprint(w, exportCSV)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPortalLoginAndDownload(t *testing.T) {
	srv := portalServer(t, "secret")
	p, err := NewPortal(srv.URL, WithPortalCredentials("ops@example.com", "secret"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Login(ctx))

	dir := t.TempDir()
	path, err := p.Download(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "WPD Network Capacity Map 16-01-2025.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, exportCSV, string(data))
}

func TestPortalLoginRejected(t *testing.T) {
	srv := portalServer(t, "secret")
	p, err := NewPortal(srv.URL, WithPortalCredentials("ops@example.com", "wrong"))
	require.NoError(t, err)

	err = p.Login(context.Background())
	var authErr *core.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.URL, "/customer-portal/login?error=invalid")
	assert.Contains(t, string(p.LastResponse()), "customer-portal-form-field__emailAddress")
}

func TestPortalMissingExportLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/app", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Loading...</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewPortal(srv.URL, WithPortalCredentials("a", "b"), WithPortalPaths("", "/login", "/app"))
	require.NoError(t, err)
	_, err = p.Download(context.Background(), t.TempDir())
	var pErr *PortalError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "find_export", pErr.Op)
}

func TestNewPortalValidation(t *testing.T) {
	_, err := NewPortal("")
	assert.Error(t, err)
	_, err = NewPortal("https://portal.example.com")
	assert.Error(t, err)
}

func TestLoginFailed(t *testing.T) {
	assert.True(t, LoginFailed("https://www.nationalgrid.co.uk/customer-portal/login"))
	assert.True(t, LoginFailed("https://www.nationalgrid.co.uk/Error?code=500"))
	assert.False(t, LoginFailed("https://www.nationalgrid.co.uk/customer-portal/dashboard"))
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "map.csv", exportFileName(`attachment; filename="map.csv"`, "/x"))
	assert.Equal(t, "passwd.csv", exportFileName(`attachment; filename="../../etc/passwd"`, "/x"))
	assert.Equal(t, "capacity.csv", exportFileName("", "/exports/capacity"))
	assert.Equal(t, "capacity.csv", exportFileName("", "/exports/capacity.csv?v=2"))
}
