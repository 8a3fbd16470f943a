package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// Claims identifies the signed-in customer. Subject carries the user id.
type Claims struct {
	Name    string `json:"name"`
	Pincode string `json:"pincode,omitempty"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for userID valid for ttl.
func NewToken(secret, userID, name, pincode string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Name:    name,
		Pincode: pincode,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// JWTMiddleware rejects requests without a valid token and points the
// caller at signInURL.
func JWTMiddleware(secret, signInURL string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, errorBody{
				Error:  "sign in required",
				SignIn: signInURL,
			})
		},
	})
}

// OptionalJWTMiddleware reads the token when a valid one is present and
// otherwise lets the request through anonymously.
func OptionalJWTMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		ContinueOnIgnoredError: true,
		ErrorHandler: func(c echo.Context, err error) error {
			return nil
		},
	})
}

func claimsOf(c echo.Context) *Claims {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// userID returns the authenticated user, "" when there is none.
func userID(c echo.Context) string {
	if claims := claimsOf(c); claims != nil {
		return claims.Subject
	}
	return ""
}
