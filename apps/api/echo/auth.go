package echoapi

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

const (
	contextClaimsKey = "userClaims"
	contextUserKey   = "user"
	tokenQueryParam  = "token"
	bearerScheme     = "Bearer "

	// callRoute is the only route reading the token from the query string.
	callRoute = "/api/v1/mentoring/sessions/:id/call"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsMentor     bool     `json:"is_mentor,omitempty"`  // -> MENTOR PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles        []string `json:"roles,omitempty"`
}

// JWTConfig signs and verifies user tokens.
type JWTConfig struct {
	SigningKey        []byte
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

func NewJWTConfig(conf *core.Config) JWTConfig {
	return JWTConfig{
		SigningKey:        []byte(conf.SecretKey),
		Issuer:            conf.AppName,
		Expiration:        conf.Server.JWTExpirationDelta,
		RefreshExpiration: conf.Server.JWTRefreshExpirationDelta,
	}
}

func (jc JWTConfig) UserClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()

	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jc.Issuer,
			Subject:   usr.ID,
			Audience:  jwt.ClaimStrings{jc.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(jc.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsMentor:     usr.IsMentor(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (jc JWTConfig) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(jc.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (jc JWTConfig) parseToken(raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(*jwt.Token) (interface{}, error) { return jc.SigningKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jc.Issuer),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// tokenFromRequest reads the bearer token from the Authorization header. Websocket upgrades of the
// call route may pass it in the `token` query parameter instead, as browsers cannot set headers on them.
func tokenFromRequest(ctx echo.Context) string {
	if auth := ctx.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, bearerScheme) {
		return strings.TrimSpace(auth[len(bearerScheme):])
	}
	if ctx.Path() == callRoute && websocket.IsWebSocketUpgrade(ctx.Request()) {
		return ctx.QueryParam(tokenQueryParam)
	}
	return ""
}

// jwtMiddleware authenticates the request. With optional set, anonymous requests go through
// and only a present but invalid token is rejected.
func (jc JWTConfig) jwtMiddleware(optional bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			raw := tokenFromRequest(ctx)
			if raw == "" {
				if optional {
					return next(ctx)
				}
				return errMissingToken
			}
			claims, err := jc.parseToken(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, errInvalidToken.Message).SetInternal(err)
			}
			ctx.Set(contextClaimsKey, claims)
			return next(ctx)
		}
	}
}

func authenticate(ctx context.Context, uname, pwd string, svc user.Service, jc JWTConfig) (*Claims, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return jc.UserClaims(usr), nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return *claims, nil
	}
	return Claims{}, errUnauthorized
}

func isAuthenticated(ctx echo.Context) bool {
	_, err := getContextClaims(ctx)
	return err == nil
}

func getContextUser(ctx echo.Context, svc user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, err
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			// the token outlived its user
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) {
				if match := claims.Roles[i]; role == match {
					return true
				}
			}
		}
	}
	return false
}

func refreshToken(ctx echo.Context, svc user.Service, jc JWTConfig) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	usr, err := getContextUser(ctx, svc, claims)
	if err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(jc.RefreshExpiration)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := jc.GenerateToken(jc.UserClaims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
