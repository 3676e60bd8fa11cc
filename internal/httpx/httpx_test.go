package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
)

const secret = "test-secret"

func token(t *testing.T, a auth.Actor) string {
	t.Helper()
	tok, err := auth.IssueToken(secret, a, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func whoami(c *gin.Context) {
	a := Actor(c)
	c.JSON(http.StatusOK, gin.H{"user_id": a.UserID, "role": a.Role})
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLoggerWritesAccessLine(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(logger))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, http.StatusNoContent, hook.LastEntry().Data["status"])
	assert.Equal(t, "/x", hook.LastEntry().Data["path"])
}

func TestAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Authenticate(secret), whoami)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", token(t, auth.Actor{UserID: "u1"}))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
}

func TestRequireAdmin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", RequireAdmin(secret, string(hash)), whoami)

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"customer token", "Authorization", token(t, auth.Actor{UserID: "u1"}), http.StatusForbidden},
		{"admin token", "Authorization", token(t, auth.Actor{UserID: "a1", Role: auth.RoleAdmin}), http.StatusOK},
		{"valid api key", "X-API-KEY", "admin-key", http.StatusOK},
		{"wrong api key", "X-API-KEY", "nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestRenderErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errors.Wrap(apperr.ErrNotFound, "order x"), http.StatusNotFound, "not_found"},
		{apperr.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
		{apperr.Invalid("bad"), http.StatusBadRequest, "invalid_input"},
		{apperr.Unavailable("d1", "Aspirin"), http.StatusConflict, "unavailable"},
		{apperr.InsufficientStock("d1", "Aspirin", 3, 1), http.StatusConflict, "insufficient_stock"},
		{&apperr.TransitionError{From: "delivered", To: "placed"}, http.StatusConflict, "invalid_transition"},
		{apperr.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
		{apperr.ErrOwnership, http.StatusForbidden, "forbidden"},
		{&apperr.GatewayError{Op: "verify", Message: "declined"}, http.StatusBadGateway, "gateway_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	logrus.SetLevel(logrus.PanicLevel)
	defer logrus.SetLevel(logrus.InfoLevel)
	gin.SetMode(gin.TestMode)
	for _, tc := range cases {
		r := gin.New()
		r.GET("/e", func(c *gin.Context) { RenderError(c, tc.err) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/e", nil))
		assert.Equal(t, tc.status, w.Code, tc.err.Error())

		var body struct {
			Error   string         `json:"error"`
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
	}
}

func TestRenderErrorItemDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/e", func(c *gin.Context) {
		RenderError(c, errors.Wrap(apperr.InsufficientStock("d1", "Aspirin", 3, 1), "reserve"))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/e", nil))

	var body struct {
		Details struct {
			DrugName  string `json:"drug_name"`
			Requested int    `json:"requested"`
			Available int    `json:"available"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Aspirin", body.Details.DrugName)
	assert.Equal(t, 3, body.Details.Requested)
	assert.Equal(t, 1, body.Details.Available)
}
