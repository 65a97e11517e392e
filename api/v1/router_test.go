package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/app"
	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/config"
)

type server struct {
	router     *gin.Engine
	adminToken string
	devToken   string
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Security.JWTSecret = "router-secret-0123456789"
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	adminToken, err := a.Tokens.Issue("admin-1", auth.RoleAdmin)
	require.NoError(t, err)
	devToken, err := a.Tokens.Issue("dev-1", auth.RoleDeveloper)
	require.NoError(t, err)

	return &server{router: NewRouter(a), adminToken: adminToken, devToken: devToken}
}

func (s *server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"memory"`)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = s.do(t, http.MethodOptions, "/api/v1/projects", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/workflow/overview", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/auth/me", s.devToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"dev-1"`)
}

func TestRegisterAndApprove(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/projects", s.devToken, gin.H{"name": "Mangrove restoration"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data struct {
			ProjectID string `json:"projectId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ProjectID)
	base := "/api/v1/workflow/projects/" + created.Data.ProjectID

	w = s.do(t, http.MethodPost, base+"/approve-land", s.devToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, base+"/approve-land", s.adminToken, gin.H{"message": "title deed checked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/projects/"+created.Data.ProjectID, s.devToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"verificationStatus":"land approval"`)

	w = s.do(t, http.MethodGet, "/api/v1/workflow/overview", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"landApproval":1`)
}

func TestAdminOnlyRoutes(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/assignees?kind=ngo", s.devToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/assignees", s.adminToken, gin.H{"kind": "ngo", "name": "Green Earth", "active": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/assignees?kind=ngo", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Green Earth")

	w = s.do(t, http.MethodGet, "/api/v1/reports/workflow?format=csv", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Queue")
}
