// Package handlertest builds gin engines for handler tests.
package handlertest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := validator.RegisterGin(); err != nil {
		panic(err)
	}
}

// Engine returns an engine with the error middleware and, when wallet is
// set, a session for that wallet and role.
func Engine(wallet common.Address, role model.Role) (*gin.Engine, *gin.RouterGroup) {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	g := r.Group("/api/v1")
	if wallet != (common.Address{}) {
		claims := &model.Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: wallet.Hex()}}
		g.Use(func(c *gin.Context) {
			c.Set(middleware.ContextClaims, claims)
			c.Set(middleware.ContextWallet, wallet)
			c.Next()
		})
	}
	return r, g
}

// Body is the decoded response envelope.
type Body struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func Do(t *testing.T, r http.Handler, method, path string, payload interface{}) (*httptest.ResponseRecorder, Body) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out Body
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}
