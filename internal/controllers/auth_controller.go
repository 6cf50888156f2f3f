package controllers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/RealZimboGuy/courseflow/internal/util"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

const HeaderAPIKey = "X-API-Key"

// AuthController guards the API with a single shared key. An empty key
// disables the check.
type AuthController struct {
	APIKey string
}

func NewAuthController(apiKey string) AuthController {
	return AuthController{APIKey: apiKey}
}

func (ac AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ac.APIKey == "" {
			next(w, r)
			return
		}
		key := r.Header.Get(HeaderAPIKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(ac.APIKey)) != 1 {
			util.WriteProblem(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid "+HeaderAPIKey)
			return
		}
		ctx := context.WithValue(r.Context(), core.CtxKeyCaller, "api-key")
		next(w, r.WithContext(ctx))
	}
}
