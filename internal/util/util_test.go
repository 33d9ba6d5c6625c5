package util

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"<b>hi</b> & there\n", 200, "hi & there"},
		{"<script>alert(1)</script>ok", 200, "ok"},
		{"  弾幕コメント  ", 3, "弾幕コ"},
		{"a\tb", 200, "a b"},
		{"\n\t  abc", 2, "ab"},
		{"ab   cd", 3, "ab"},
		{"", 10, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlainText(tt.in, tt.max), tt.in)
	}
}

func TestClientIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1|bob", ClientIdentity(r, " Bob "))

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4|", ClientIdentity(r, ""))
}

func TestBaseURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "example.com"
	assert.Equal(t, "http://example.com", BaseURL(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "watch.example.com")
	assert.Equal(t, "https://watch.example.com", BaseURL(r))
}

func TestNewRoomID(t *testing.T) {
	a, b := NewRoomID(8), NewRoomID(8)
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
