package helpers

import (
	"github.com/labstack/echo/v4"
)

type ctxKey string

const (
	keyIdentity ctxKey = "identity"
	keyClaims   ctxKey = "identity_claims"
)

// AnonymousIdentity is the identity of callers that present no token.
const AnonymousIdentity = "anonymous"

func SetIdentity(c echo.Context, id string) { c.Set(string(keyIdentity), id) }
func GetIdentityRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyIdentity))
	s, ok := v.(string)
	return s, ok && s != ""
}

func SetClaims(c echo.Context, claims map[string]any) { c.Set(string(keyClaims), claims) }
func GetClaimsRaw(c echo.Context) (map[string]any, bool) {
	v := c.Get(string(keyClaims))
	m, ok := v.(map[string]any)
	return m, ok
}
