package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/idmirror/internal/auth"
	"github.com/hitoshi/idmirror/internal/metrics"
	"github.com/hitoshi/idmirror/internal/middleware"
	"github.com/hitoshi/idmirror/internal/model"
	"github.com/hitoshi/idmirror/internal/repository"
)

// --- ルーターテスト用のモック ---

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type routerCredentialVerifier struct {
	claims map[string]*auth.Claims
}

func (v *routerCredentialVerifier) Verify(ctx context.Context, rawToken string) (*auth.Claims, error) {
	if c, ok := v.claims[rawToken]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// routerFakeRepo はルーターテスト用のインメモリリポジトリ。
type routerFakeRepo struct {
	mirrors map[string]*model.Mirror
}

func (f *routerFakeRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Mirror, error) {
	if m, ok := f.mirrors[externalID]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (f *routerFakeRepo) UpsertIfNewer(ctx context.Context, p repository.UpsertParams) (bool, error) {
	return true, nil
}

func (f *routerFakeRepo) TombstoneIfNewer(ctx context.Context, id, externalID string, revision int64) (bool, error) {
	return true, nil
}

func (f *routerFakeRepo) InsertIfAbsent(ctx context.Context, p repository.UpsertParams) (*model.Mirror, bool, error) {
	m := &model.Mirror{
		ID:         p.ID,
		ExternalID: p.ExternalID,
		Email:      p.Email,
		Name:       p.Name,
		Status:     model.MirrorStatusActive,
		CreatedVia: model.CreatedViaOnDemand,
	}
	f.mirrors[p.ExternalID] = m
	return m, true, nil
}

func (f *routerFakeRepo) List(ctx context.Context, limit, offset int) ([]*model.Mirror, error) {
	var out []*model.Mirror
	for _, m := range f.mirrors {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

var _ repository.MirrorRepository = (*routerFakeRepo)(nil)

type routerEnsurer struct {
	repo *routerFakeRepo
}

func (e *routerEnsurer) Ensure(ctx context.Context, claims *auth.Claims) (*model.Mirror, error) {
	m, _, err := e.repo.InsertIfAbsent(ctx, repository.UpsertParams{
		ID:         "local-provisioned",
		ExternalID: claims.ExternalID,
		Email:      claims.Email,
		Name:       claims.Name,
	})
	return m, err
}

func newTestRouter(t *testing.T, healthErr error) http.Handler {
	t.Helper()

	repo := &routerFakeRepo{mirrors: map[string]*model.Mirror{
		"ext_user": {
			ID: "local-user", ExternalID: "ext_user", Email: "u@x.com",
			Status: model.MirrorStatusActive, CreatedVia: model.CreatedViaWebhook,
		},
		"ext_admin": {
			ID: "local-admin", ExternalID: "ext_admin", IsAdmin: true,
			Status: model.MirrorStatusActive, CreatedVia: model.CreatedViaWebhook,
		},
	}}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	verifier := &mockEventVerifier{
		verifyFn: func(rawBody []byte, header http.Header) (*model.VerifiedEvent, error) {
			return &model.VerifiedEvent{Type: model.EventTypeUnknown}, nil
		},
	}

	return NewRouter(&RouterDeps{
		HealthChecker: pingFunc(func(ctx context.Context) error { return healthErr }),
		CredentialVerifier: &routerCredentialVerifier{claims: map[string]*auth.Claims{
			"user-token":  {ExternalID: "ext_user", Email: "u@x.com"},
			"admin-token": {ExternalID: "ext_admin", Role: "admin"},
		}},
		Provisioner:       &routerEnsurer{repo: repo},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,

		MirrorRepo: repo,

		EventVerifier: verifier,
		EventProcessor: &mockEventApplier{
			applyFn: func(ctx context.Context, event *model.VerifiedEvent) (model.ApplyResult, error) {
				return model.ApplyResultIgnored, nil
			},
		},

		Metrics:         collector,
		MetricsGatherer: reg,
		AdminPageLimit:  100,
	})
}

// --- テスト ---

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_HealthEndpoint_DBDown_Returns503(t *testing.T) {
	router := newTestRouter(t, errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRouter_WebhookRouteDoesNotRequireBearer(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// 署名検証（モックは成功）に基づき処理される。ベアラー認証の401ではない
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_MeWithoutToken_Returns401(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_MeWithToken_ReturnsMirror(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body mirrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "local-user" {
		t.Errorf("id = %q, want local-user", body.ID)
	}
}

func TestRouter_MeWithUnknownIdentity_ProvisionsAndReturns200(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_AdminRoute_NonAdmin_Returns403(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/mirrors", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestRouter_AdminRoute_Admin_Returns200(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/mirrors", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body mirrorListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Mirrors) < 2 {
		t.Errorf("len(mirrors) = %d, want >= 2", len(body.Mirrors))
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("expected CORS headers on preflight response")
	}
}
