package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/idmirror/internal/middleware"
	"github.com/hitoshi/idmirror/internal/model"
)

// --- モック定義 ---

type mockMirrorReader struct {
	findFn func(ctx context.Context, externalID string) (*model.Mirror, error)
	listFn func(ctx context.Context, limit, offset int) ([]*model.Mirror, error)
}

func (m *mockMirrorReader) FindByExternalID(ctx context.Context, externalID string) (*model.Mirror, error) {
	if m.findFn != nil {
		return m.findFn(ctx, externalID)
	}
	return nil, nil
}

func (m *mockMirrorReader) List(ctx context.Context, limit, offset int) ([]*model.Mirror, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func authenticatedRequest(method, target string, identity *middleware.Identity) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.ContextWithIdentity(req.Context(), identity))
}

// --- Me のテスト ---

func TestMe_ReturnsOwnMirror(t *testing.T) {
	now := time.Now()
	reader := &mockMirrorReader{
		findFn: func(ctx context.Context, externalID string) (*model.Mirror, error) {
			if externalID != "ext_1" {
				t.Errorf("externalID = %q, want ext_1", externalID)
			}
			return &model.Mirror{
				ID:         "local-1",
				ExternalID: "ext_1",
				Email:      "a@x.com",
				Name:       "Taro",
				Revision:   4,
				Status:     model.MirrorStatusActive,
				CreatedVia: model.CreatedViaWebhook,
				CreatedAt:  now,
				UpdatedAt:  now,
			}, nil
		},
	}
	h := NewMirrorHandler(reader, 100)

	req := authenticatedRequest(http.MethodGet, "/api/me", &middleware.Identity{
		LocalID: "local-1", ExternalID: "ext_1",
	})
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body mirrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "local-1" || body.ExternalID != "ext_1" || body.Revision != 4 {
		t.Errorf("unexpected body: %+v", body)
	}
	if body.CreatedVia != "webhook" {
		t.Errorf("created_via = %q, want webhook", body.CreatedVia)
	}
}

func TestMe_NoIdentity_Returns401(t *testing.T) {
	h := NewMirrorHandler(&mockMirrorReader{}, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestMe_StoreError_Returns500(t *testing.T) {
	reader := &mockMirrorReader{
		findFn: func(ctx context.Context, externalID string) (*model.Mirror, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := NewMirrorHandler(reader, 100)

	req := authenticatedRequest(http.MethodGet, "/api/me", &middleware.Identity{ExternalID: "ext_1"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

// --- ListMirrors のテスト ---

func adminIdentity() *middleware.Identity {
	return &middleware.Identity{LocalID: "local-admin", ExternalID: "ext_admin", IsAdmin: true}
}

func TestListMirrors_ReturnsMirrors(t *testing.T) {
	reader := &mockMirrorReader{
		listFn: func(ctx context.Context, limit, offset int) ([]*model.Mirror, error) {
			return []*model.Mirror{
				{ID: "local-1", ExternalID: "ext_1", Status: model.MirrorStatusActive, CreatedVia: model.CreatedViaWebhook},
				{ID: "local-2", ExternalID: "ext_2", Status: model.MirrorStatusDeleted, CreatedVia: model.CreatedViaOnDemand},
			}, nil
		},
	}
	h := NewMirrorHandler(reader, 100)

	req := authenticatedRequest(http.MethodGet, "/api/admin/mirrors", adminIdentity())
	w := httptest.NewRecorder()

	h.ListMirrors(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body mirrorListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Mirrors) != 2 {
		t.Fatalf("len(mirrors) = %d, want 2", len(body.Mirrors))
	}
	// created_viaとstatusはドリフト観測のために必ず返す
	if body.Mirrors[1].CreatedVia != "on-demand" || body.Mirrors[1].Status != "deleted" {
		t.Errorf("mirror[1] = %+v, want on-demand/deleted", body.Mirrors[1])
	}
}

func TestListMirrors_NonAdmin_Returns403(t *testing.T) {
	listCalled := false
	reader := &mockMirrorReader{
		listFn: func(ctx context.Context, limit, offset int) ([]*model.Mirror, error) {
			listCalled = true
			return nil, nil
		},
	}
	h := NewMirrorHandler(reader, 100)

	req := authenticatedRequest(http.MethodGet, "/api/admin/mirrors", &middleware.Identity{
		LocalID: "local-1", ExternalID: "ext_1", IsAdmin: false,
	})
	w := httptest.NewRecorder()

	h.ListMirrors(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if listCalled {
		t.Error("store must not be queried for non-admin callers")
	}

	var body apiErrorResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != model.ErrCodePermissionDenied {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodePermissionDenied)
	}
}

func TestListMirrors_ClampsLimitToMax(t *testing.T) {
	var gotLimit, gotOffset int
	reader := &mockMirrorReader{
		listFn: func(ctx context.Context, limit, offset int) ([]*model.Mirror, error) {
			gotLimit, gotOffset = limit, offset
			return nil, nil
		},
	}
	h := NewMirrorHandler(reader, 100)

	req := authenticatedRequest(http.MethodGet, "/api/admin/mirrors?limit=500&offset=40", adminIdentity())
	w := httptest.NewRecorder()

	h.ListMirrors(w, req)

	if gotLimit != 100 {
		t.Errorf("limit = %d, want clamped to 100", gotLimit)
	}
	if gotOffset != 40 {
		t.Errorf("offset = %d, want 40", gotOffset)
	}
}

func TestListMirrors_InvalidLimit_Returns400(t *testing.T) {
	h := NewMirrorHandler(&mockMirrorReader{}, 100)

	req := authenticatedRequest(http.MethodGet, "/api/admin/mirrors?limit=abc", adminIdentity())
	w := httptest.NewRecorder()

	h.ListMirrors(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}
