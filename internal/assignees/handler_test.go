package assignees

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/auth"
)

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) List(ctx context.Context, kind Kind, activeOnly bool) ([]*Assignee, error) {
	args := m.Called(ctx, kind, activeOnly)
	if a := args.Get(0); a != nil {
		return a.([]*Assignee), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) Register(ctx context.Context, assignee *Assignee) error {
	args := m.Called(ctx, assignee)
	return args.Error(0)
}

func newTestRouter(t *testing.T, svc Service) (*gin.Engine, map[string]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenService("assignees-secret", "", time.Hour)
	require.NoError(t, err)
	adminToken, err := tokens.Issue("admin-1", auth.RoleAdmin)
	require.NoError(t, err)
	ngoToken, err := tokens.Issue("ngo-1", auth.RoleNGO)
	require.NoError(t, err)

	r := gin.New()
	api := r.Group("/api/v1", auth.RequireAuth(tokens, zap.NewNop()))
	NewHandler(svc, zap.NewNop()).RegisterRoutes(api)
	return r, map[string]string{"admin": adminToken, "ngo": ngoToken}
}

func perform(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerList(t *testing.T) {
	svc := new(MockService)
	svc.On("List", mock.Anything, KindNGO, false).Return([]*Assignee{{ID: "N1", Kind: KindNGO, Name: "Green Belt"}}, nil)
	svc.On("List", mock.Anything, Kind(""), true).Return(nil, nil)
	r, tokens := newTestRouter(t, svc)

	w := perform(r, http.MethodGet, "/api/v1/assignees?kind=ngo&active=false", tokens["admin"], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Green Belt")

	w = perform(r, http.MethodGet, "/api/v1/assignees", tokens["admin"], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)

	w = perform(r, http.MethodGet, "/api/v1/assignees?kind=pilot", tokens["admin"], nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodGet, "/api/v1/assignees?active=maybe", tokens["admin"], nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestHandlerRegister(t *testing.T) {
	svc := new(MockService)
	svc.On("Register", mock.Anything, mock.MatchedBy(func(a *Assignee) bool { return a.Name == "SkyScan" })).Return(nil)
	svc.On("Register", mock.Anything, mock.MatchedBy(func(a *Assignee) bool { return a.Name == "Broken" })).Return(errors.New("db down"))
	r, tokens := newTestRouter(t, svc)

	w := perform(r, http.MethodPost, "/api/v1/assignees", tokens["ngo"], gin.H{"kind": "drone", "name": "SkyScan"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = perform(r, http.MethodPost, "/api/v1/assignees", tokens["admin"], gin.H{"kind": "drone", "name": "SkyScan", "active": true})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = perform(r, http.MethodPost, "/api/v1/assignees", tokens["admin"], gin.H{"kind": "pilot", "name": "SkyScan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/v1/assignees", tokens["admin"], gin.H{"kind": "drone", "name": "Broken"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
