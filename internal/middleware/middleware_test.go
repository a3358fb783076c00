package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/studyroom-reservation/internal/config"
)

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, RequestID(c))
	})

	c, rec := newContext(http.MethodGet, "/", "")
	require.NoError(t, handler(c))
	id, err := uuid.Parse(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, id.String(), rec.Header().Get(echo.HeaderXRequestID))

	incoming := uuid.New()
	c, rec = newContext(http.MethodGet, "/", "")
	c.Request().Header.Set(echo.HeaderXRequestID, incoming.String())
	require.NoError(t, handler(c))
	assert.Equal(t, incoming.String(), rec.Body.String())

	c, _ = newContext(http.MethodGet, "/", "")
	assert.Equal(t, uuid.Nil, RequestUUID(c))
	assert.Empty(t, RequestID(c))
}

func TestRequestUsernameLeavesBodyIntact(t *testing.T) {
	body := `{"username":" Alice ","seatId":1}`
	c, _ := newContext(http.MethodPost, "/api/reserve", body)

	assert.Equal(t, "alice", requestUsername(c))
	rest, err := io.ReadAll(c.Request().Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))

	c, _ = newContext(http.MethodPost, "/api/reserve", "name=x")
	assert.Equal(t, "anon", requestUsername(c))
}

func TestBuildRateKey(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/reserve", `{"username":"bob"}`)
	c.SetPath("/api/reserve")
	c.Request().RemoteAddr = "10.0.0.1:5555"

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}
	assert.Equal(t, "rl:ip:10.0.0.1:route:POST /api/reserve", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:bob", buildRateKey(cfg, c))
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	called := 0
	next := func(c echo.Context) error {
		called++
		return c.NoContent(http.StatusNoContent)
	}

	c, _ := newContext(http.MethodPost, "/", "")
	require.NoError(t, NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil)(next)(c))

	rc := NewResponseCache(config.CacheConfig{Enabled: true}, nil, nil)
	c, _ = newContext(http.MethodGet, "/", "")
	require.NoError(t, rc.Middleware()(next)(c))
	c, _ = newContext(http.MethodPost, "/", "")
	require.NoError(t, rc.PurgeOnSuccess()(next)(c))
	assert.NoError(t, rc.Purge(c.Request().Context()))

	assert.Equal(t, 3, called)
}

func TestPayloadRoundTripAndCapture(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)

	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	assert.False(t, cw.overflow)
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.overflow)
	assert.Equal(t, "abcdef", rec.Body.String(), "the client still receives everything")
}
