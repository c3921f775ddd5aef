package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"journaltransporter/internal/account"
	"journaltransporter/pkg/models"
)

const (
	CtxClaimsKey  = "auth_claims"
	CtxAccountKey = "auth_account"
	CtxSchemeKey  = "auth_scheme"
)

// How a request authenticated.
const (
	SchemeBasic  = "basic"
	SchemeBearer = "bearer"
	SchemeCookie = "cookie"
)

// Response details for rejected requests.
const (
	DetailNotProvided     = "Authentication credentials were not provided."
	DetailInvalidPassword = "Invalid username/password."
	DetailInvalidToken    = "Invalid token."
)

var (
	errNoCredentials  = errors.New("no credentials")
	errBadCredentials = errors.New("invalid credentials")
	errBadToken       = errors.New("invalid token")
)

// Authenticator resolves the staff account behind a request. It accepts HTTP basic
// auth, a bearer token or the session cookie, in that order.
type Authenticator struct {
	Tokens     TokenService
	Accounts   *account.Repo
	CookieName string
}

func NewAuthenticator(tokens TokenService, accounts *account.Repo, cookieName string) *Authenticator {
	return &Authenticator{Tokens: tokens, Accounts: accounts, CookieName: cookieName}
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, acc, claims, err := a.authenticate(c)
		if err != nil {
			detail := DetailNotProvided
			switch {
			case errors.Is(err, errBadCredentials):
				detail = DetailInvalidPassword
			case errors.Is(err, errBadToken):
				detail = DetailInvalidToken
			case !errors.Is(err, errNoCredentials):
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": detail})
			return
		}

		if claims != nil {
			c.Set(CtxClaimsKey, claims)
		}
		c.Set(CtxAccountKey, acc)
		c.Set(CtxSchemeKey, scheme)
		c.Next()
	}
}

func (a *Authenticator) authenticate(c *gin.Context) (string, *models.Account, *Claims, error) {
	ctx := c.Request.Context()

	if email, password, ok := c.Request.BasicAuth(); ok {
		acc, err := a.VerifyPassword(ctx, email, password)
		return SchemeBasic, acc, nil, err
	}

	if h := c.GetHeader("Authorization"); h != "" {
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return SchemeBearer, nil, nil, errBadToken
		}
		acc, claims, err := a.VerifyToken(ctx, strings.TrimSpace(h[len("Bearer "):]))
		return SchemeBearer, acc, claims, err
	}

	if a.CookieName != "" {
		if raw, err := c.Cookie(a.CookieName); err == nil && raw != "" {
			acc, claims, err := a.VerifyToken(ctx, raw)
			return SchemeCookie, acc, claims, err
		}
	}
	return "", nil, nil, errNoCredentials
}

// VerifyPassword checks a staff account's password.
func (a *Authenticator) VerifyPassword(ctx context.Context, email, password string) (*models.Account, error) {
	if email == "" || password == "" {
		return nil, errBadCredentials
	}
	acc, err := a.Accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if acc == nil || !acc.IsStaff || acc.PasswordHash == "" {
		return nil, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	return acc, nil
}

// VerifyToken parses a session or bearer token and checks it has not been revoked.
func (a *Authenticator) VerifyToken(ctx context.Context, raw string) (*models.Account, *Claims, error) {
	claims, err := a.Tokens.Parse(raw)
	if err != nil {
		return nil, nil, errBadToken
	}
	acc, err := a.Accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}
	if acc == nil || !acc.IsStaff || acc.TokenVersion != claims.TokenVersion {
		return nil, nil, errBadToken
	}
	return acc, claims, nil
}

// IsCredentialError reports whether err means the presented credentials were rejected,
// as opposed to a failure looking them up.
func IsCredentialError(err error) bool {
	return errors.Is(err, errBadCredentials) || errors.Is(err, errBadToken)
}

func CurrentAccount(c *gin.Context) *models.Account {
	v, ok := c.Get(CtxAccountKey)
	if !ok {
		return nil
	}
	acc, _ := v.(*models.Account)
	return acc
}

// ViaCookie reports whether the request was authenticated by the session cookie,
// which a browser attaches on its own.
func ViaCookie(c *gin.Context) bool {
	return c.GetString(CtxSchemeKey) == SchemeCookie
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}
