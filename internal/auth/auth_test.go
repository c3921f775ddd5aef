package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"journaltransporter/internal/account"
	"journaltransporter/internal/testutil"
	"journaltransporter/pkg/models"
)

const testCookie = "transporter_session"

func newStaff(t *testing.T, db *sql.DB, email, password string) int64 {
	t.Helper()
	repo := account.NewRepo(db)
	id, err := repo.Upsert(context.Background(), models.Account{Email: email, FirstName: "Staff", LastName: "Member"})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.SetStaffCredentials(context.Background(), id, string(hash)))
	return id
}

func setup(t *testing.T) (*gin.Engine, *sql.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	a := NewAuthenticator(TokenService{Secret: []byte("test"), Issuer: "test", Duration: time.Hour}, account.NewRepo(db), testCookie)

	r := gin.New()
	NewHandler(a, false).RegisterRoutes(r.Group("/auth"))
	r.GET("/private", a.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": CurrentAccount(c).Email, "scheme": c.GetString(CtxSchemeKey), "cookie": ViaCookie(c)})
	})
	return r, db
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["detail"]
}

func login(t *testing.T, r http.Handler, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"`+email+`","password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	return do(r, req)
}

func TestMiddleware(t *testing.T) {
	r, db := setup(t)
	newStaff(t, db, "staff@example.com", "s3cret-pass")

	t.Run("no credentials", func(t *testing.T) {
		w := do(r, httptest.NewRequest(http.MethodGet, "/private", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, DetailNotProvided, detail(t, w))
	})

	t.Run("basic auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.SetBasicAuth("Staff@Example.com", "s3cret-pass")
		w := do(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "staff@example.com")
		assert.Contains(t, w.Body.String(), `"scheme":"basic"`)
		assert.Contains(t, w.Body.String(), `"cookie":false`)
	})

	t.Run("basic auth wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.SetBasicAuth("staff@example.com", "nope")
		w := do(r, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, DetailInvalidPassword, detail(t, w))
	})

	t.Run("garbage bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		w := do(r, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, DetailInvalidToken, detail(t, w))
	})

	t.Run("non staff account", func(t *testing.T) {
		_, err := account.NewRepo(db).Upsert(context.Background(), models.Account{Email: "reader@example.com", FirstName: "R", LastName: "R"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.SetBasicAuth("reader@example.com", "anything")
		w := do(r, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestLoginSessionAndLogout(t *testing.T) {
	r, db := setup(t)
	newStaff(t, db, "staff@example.com", "s3cret-pass")

	w := login(t, r, "staff@example.com", "wrong")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = login(t, r, "staff@example.com", "s3cret-pass")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(cookies[0])
	w = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cookie":true`)

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	w = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scheme":"bearer"`)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, http.StatusOK, do(r, req).Code)

	// revoked by logout
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	w = do(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, DetailInvalidToken, detail(t, w))
}

func TestChangePassword(t *testing.T) {
	r, db := setup(t)
	newStaff(t, db, "staff@example.com", "s3cret-pass")

	req := httptest.NewRequest(http.MethodPost, "/auth/change-password", strings.NewReader(`{"old_password":"s3cret-pass","new_password":"an0ther-pass"}`))
	req.SetBasicAuth("staff@example.com", "s3cret-pass")
	require.Equal(t, http.StatusOK, do(r, req).Code)

	assert.Equal(t, http.StatusForbidden, login(t, r, "staff@example.com", "s3cret-pass").Code)
	assert.Equal(t, http.StatusOK, login(t, r, "staff@example.com", "an0ther-pass").Code)
}

func TestTokenService(t *testing.T) {
	ts := TokenService{Secret: []byte("k"), Issuer: "a", Duration: time.Minute}
	tok, exp, err := ts.Sign(&models.Account{ID: 7, Email: "x@example.com", TokenVersion: 3})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	claims, err := ts.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.AccountID)
	assert.Equal(t, 3, claims.TokenVersion)

	_, err = TokenService{Secret: []byte("other"), Issuer: "a"}.Parse(tok)
	assert.Error(t, err)
	_, err = TokenService{Secret: []byte("k"), Issuer: "b"}.Parse(tok)
	assert.Error(t, err)
}
