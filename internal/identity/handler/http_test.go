package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	identityrepo "resume-builder/backend/internal/identity/repository"
	identityservice "resume-builder/backend/internal/identity/service"
	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/server/middleware"
	"resume-builder/backend/internal/server/response"
	sessionrepo "resume-builder/backend/internal/session/repository"
	sessionservice "resume-builder/backend/internal/session/service"
	userrepo "resume-builder/backend/internal/user/repository"
)

const (
	trustedToken = "oauth-broker"
	password     = "Resume-Builder-2026"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	codec, err := security.NewTestTokenCodec()
	require.NoError(t, err)
	users := userrepo.NewMemoryRepository()
	sessions := sessionservice.New(sessionservice.Deps{
		Repo:   sessionrepo.NewMemoryRepository(nil),
		Tokens: codec,
		Users:  users,
	}, sessionservice.Config{})
	auth := identityservice.NewAuthService(users, identityrepo.NewMemoryRepository(), sessions,
		security.NewHasher(bcrypt.MinCost), codec, nil, nil, zap.NewNop())

	r := gin.New()
	NewHandler(auth, sessions, nil).RegisterRoutes(r.Group("/v1"),
		middleware.Bearer(sessions, nil), middleware.AdminToken(trustedToken))
	return r
}

func post(t *testing.T, r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func loginAs(t *testing.T, r *gin.Engine, email string) authResponse {
	t.Helper()
	w := post(t, r, "/v1/auth/login", gin.H{
		"email": email, "password": password,
		"client": gin.H{"deviceType": "desktop", "browser": "Firefox", "countryCode": "NL"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestRegisterAndLogin(t *testing.T) {
	r := newRouter(t)

	w := post(t, r, "/v1/auth/register", gin.H{"email": "ada@example.com", "password": password, "name": "Ada"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "userId")

	w = post(t, r, "/v1/auth/register", gin.H{"email": "ada@example.com", "password": password}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = post(t, r, "/v1/auth/register", gin.H{"email": "bob@example.com", "password": "short"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = post(t, r, "/v1/auth/register", gin.H{"email": "bob@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	res := loginAs(t, r, "ada@example.com")
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.SessionToken)

	w = post(t, r, "/v1/auth/login", gin.H{"email": "ada@example.com", "password": "Wrong-Password-99"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = post(t, r, "/v1/auth/login", gin.H{"email": "nobody@example.com", "password": password}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusCreated, post(t, r, "/v1/auth/register", gin.H{"email": "kay@example.com", "password": password}, nil).Code)
	res := loginAs(t, r, "kay@example.com")

	w := post(t, r, "/v1/auth/refresh", gin.H{"refreshToken": res.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var refreshed refreshResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	assert.Equal(t, res.SessionID, refreshed.SessionID)
	assert.Empty(t, refreshed.SessionToken)

	for _, tok := range []string{"garbage", res.AccessToken} {
		w = post(t, r, "/v1/auth/refresh", gin.H{"refreshToken": tok}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), response.MsgInvalidSession)
	}

	w = post(t, r, "/v1/auth/logout", nil, map[string]string{"Authorization": "Bearer " + refreshed.AccessToken})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// The refresh token of a logged-out session is dead.
	w = post(t, r, "/v1/auth/refresh", gin.H{"refreshToken": res.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, r, "/v1/auth/logout", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePassword(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusCreated, post(t, r, "/v1/auth/register", gin.H{"email": "lin@example.com", "password": password}, nil).Code)
	current := loginAs(t, r, "lin@example.com")
	other := loginAs(t, r, "lin@example.com")
	auth := map[string]string{"Authorization": "Bearer " + current.AccessToken}

	w := post(t, r, "/v1/auth/password", gin.H{"currentPassword": "Wrong-Password-99", "newPassword": "Another-Password-7"}, auth)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = post(t, r, "/v1/auth/password", gin.H{"currentPassword": password, "newPassword": "weak"}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, r, "/v1/auth/password", gin.H{"currentPassword": password, "newPassword": "Another-Password-7"}, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessionsRevoked":1}`, w.Body.String())

	w = post(t, r, "/v1/auth/refresh", gin.H{"refreshToken": other.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = post(t, r, "/v1/auth/refresh", gin.H{"refreshToken": current.RefreshToken}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOAuth(t *testing.T) {
	r := newRouter(t)
	body := gin.H{
		"provider": "google", "externalId": "g-1", "email": "oauth@example.com",
		"profile": gin.H{"name": "O. Auth"},
	}

	w := post(t, r, "/v1/auth/oauth", body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	trusted := map[string]string{middleware.AdminTokenHeader: trustedToken}
	w = post(t, r, "/v1/auth/oauth", body, trusted)
	require.Equal(t, http.StatusOK, w.Code)
	var res authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.NewUser)
	assert.NotEmpty(t, res.SessionToken)

	body["provider"] = "myspace"
	w = post(t, r, "/v1/auth/oauth", body, trusted)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
