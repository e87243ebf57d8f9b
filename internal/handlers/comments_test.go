package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/platform/auth"
	"github.com/lumalingua/api/internal/services"
)

type stubCommentService struct {
	createFunc     func(ctx context.Context, cmd services.CreateCommentCommand) (services.Comment, error)
	listFunc       func(ctx context.Context, query services.ListCommentsQuery) (domain.CursorPage[services.Comment], error)
	likeFunc       func(ctx context.Context, cmd services.CommentLikeCommand) (services.Comment, error)
	unlikeFunc     func(ctx context.Context, cmd services.CommentLikeCommand) (services.Comment, error)
	moderateFunc   func(ctx context.Context, cmd services.ModerateCommentCommand) (services.Comment, error)
	storeReplyFunc func(ctx context.Context, cmd services.StoreCommentReplyCommand) (services.Comment, error)
}

func (s *stubCommentService) Create(ctx context.Context, cmd services.CreateCommentCommand) (services.Comment, error) {
	if s.createFunc == nil {
		return services.Comment{}, services.ErrCommentInvalidInput
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubCommentService) List(ctx context.Context, query services.ListCommentsQuery) (domain.CursorPage[services.Comment], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Comment]{}, nil
	}
	return s.listFunc(ctx, query)
}

func (s *stubCommentService) Like(ctx context.Context, cmd services.CommentLikeCommand) (services.Comment, error) {
	if s.likeFunc == nil {
		return services.Comment{}, services.ErrCommentNotFound
	}
	return s.likeFunc(ctx, cmd)
}

func (s *stubCommentService) Unlike(ctx context.Context, cmd services.CommentLikeCommand) (services.Comment, error) {
	if s.unlikeFunc == nil {
		return services.Comment{}, services.ErrCommentNotFound
	}
	return s.unlikeFunc(ctx, cmd)
}

func (s *stubCommentService) Moderate(ctx context.Context, cmd services.ModerateCommentCommand) (services.Comment, error) {
	if s.moderateFunc == nil {
		return services.Comment{}, services.ErrCommentNotFound
	}
	return s.moderateFunc(ctx, cmd)
}

func (s *stubCommentService) StoreReply(ctx context.Context, cmd services.StoreCommentReplyCommand) (services.Comment, error) {
	if s.storeReplyFunc == nil {
		return services.Comment{}, services.ErrCommentNotFound
	}
	return s.storeReplyFunc(ctx, cmd)
}

func newCommentRouter(svc services.CommentService) http.Handler {
	handler := NewCommentHandlers(nil, svc)
	return NewRouter(WithCommentRoutes(handler.Routes))
}

func withTestIdentity(req *http.Request, identity *auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func testComment() services.Comment {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	return services.Comment{
		ID:         "cmt_01ABC",
		PageRef:    "home",
		AuthorRef:  "user-1",
		AuthorName: "Ana",
		Body:       "Great teachers",
		Likes:      3,
		Status:     domain.CommentStatusApproved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCommentHandlersCreate(t *testing.T) {
	svc := &stubCommentService{
		createFunc: func(_ context.Context, cmd services.CreateCommentCommand) (services.Comment, error) {
			if cmd.PageRef != "home" || cmd.AuthorID != "user-1" || cmd.Body != "Great teachers" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			comment := testComment()
			comment.Status = domain.CommentStatusPending
			return comment, nil
		},
	}
	router := newCommentRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"page":"home","body":"Great teachers"}`))
	req = withTestIdentity(req, &auth.Identity{UID: "user-1", Name: "Ana"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload commentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Comment.ID != "cmt_01ABC" {
		t.Fatalf("unexpected comment id %q", payload.Comment.ID)
	}
	if payload.Comment.Status != string(domain.CommentStatusPending) {
		t.Fatalf("expected pending status, got %q", payload.Comment.Status)
	}
}

func TestCommentHandlersCreateRequiresIdentity(t *testing.T) {
	router := newCommentRouter(&stubCommentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"page":"home","body":"hi"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestCommentHandlersCreateBodyErrors(t *testing.T) {
	router := newCommentRouter(&stubCommentService{})

	cases := []struct {
		name string
		body string
		code int
	}{
		{name: "empty body", body: "", code: http.StatusBadRequest},
		{name: "invalid json", body: "{", code: http.StatusBadRequest},
		{name: "oversized body", body: strings.Repeat("x", maxCommentBodySize+1), code: http.StatusRequestEntityTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(tc.body))
			req = withTestIdentity(req, &auth.Identity{UID: "user-1"})
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, resp.Code)
			}
		})
	}
}

func TestCommentHandlersListIsPublic(t *testing.T) {
	var captured services.ListCommentsQuery
	svc := &stubCommentService{
		listFunc: func(_ context.Context, query services.ListCommentsQuery) (domain.CursorPage[services.Comment], error) {
			captured = query
			return domain.CursorPage[services.Comment]{
				Items:         []services.Comment{testComment()},
				NextPageToken: "next-1",
			}, nil
		},
	}
	router := newCommentRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/comments?page=home&sort=top&page_size=100&page_token=tok", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if captured.PageRef != "home" || captured.Sort != domain.CommentSort("top") {
		t.Fatalf("unexpected query %+v", captured)
	}
	if captured.Pagination.PageSize != maxCommentPageSize {
		t.Fatalf("expected page size capped at %d, got %d", maxCommentPageSize, captured.Pagination.PageSize)
	}
	if captured.Pagination.PageToken != "tok" {
		t.Fatalf("unexpected page token %q", captured.Pagination.PageToken)
	}

	var payload listCommentsResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Comments) != 1 || payload.NextPageToken != "next-1" {
		t.Fatalf("unexpected page %+v", payload)
	}
}

func TestCommentHandlersListRejectsBadPageSize(t *testing.T) {
	router := newCommentRouter(&stubCommentService{})

	for _, raw := range []string{"0", "-1", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/comments?page_size="+raw, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("page_size=%s: expected 400, got %d", raw, resp.Code)
		}
	}
}

func TestCommentHandlersLikeAndUnlike(t *testing.T) {
	svc := &stubCommentService{
		likeFunc: func(_ context.Context, cmd services.CommentLikeCommand) (services.Comment, error) {
			if cmd.CommentID != "cmt_01ABC" || cmd.UserID != "user-1" {
				t.Fatalf("unexpected like command %+v", cmd)
			}
			comment := testComment()
			comment.Likes = 4
			return comment, nil
		},
		unlikeFunc: func(_ context.Context, cmd services.CommentLikeCommand) (services.Comment, error) {
			comment := testComment()
			comment.Likes = 2
			return comment, nil
		},
	}
	router := newCommentRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/comments/cmt_01ABC/like", nil)
	req = withTestIdentity(req, &auth.Identity{UID: "user-1"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("like: expected 200, got %d", resp.Code)
	}
	var payload commentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode like response: %v", err)
	}
	if payload.Comment.Likes != 4 {
		t.Fatalf("expected 4 likes, got %d", payload.Comment.Likes)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/comments/cmt_01ABC/like", nil)
	req = withTestIdentity(req, &auth.Identity{UID: "user-1"})
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unlike: expected 200, got %d", resp.Code)
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode unlike response: %v", err)
	}
	if payload.Comment.Likes != 2 {
		t.Fatalf("expected 2 likes, got %d", payload.Comment.Likes)
	}
}

func TestCommentHandlersModerate(t *testing.T) {
	moderator := "staff-1"
	svc := &stubCommentService{
		moderateFunc: func(_ context.Context, cmd services.ModerateCommentCommand) (services.Comment, error) {
			if cmd.Status != domain.CommentStatusApproved || cmd.ActorID != moderator {
				t.Fatalf("unexpected moderate command %+v", cmd)
			}
			comment := testComment()
			comment.ModeratedBy = &moderator
			now := comment.UpdatedAt
			comment.ModeratedAt = &now
			return comment, nil
		},
	}
	router := newCommentRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/comments/cmt_01ABC:moderate", strings.NewReader(`{"status":"approved"}`))
	req = withTestIdentity(req, &auth.Identity{UID: moderator, Roles: []string{auth.RoleStaff}})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload commentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Comment.ModeratedBy == nil || *payload.Comment.ModeratedBy != moderator {
		t.Fatalf("expected moderator attribution, got %+v", payload.Comment.ModeratedBy)
	}
}

func TestCommentHandlersStoreReply(t *testing.T) {
	svc := &stubCommentService{
		storeReplyFunc: func(_ context.Context, cmd services.StoreCommentReplyCommand) (services.Comment, error) {
			if cmd.Message != "Thanks Ana!" {
				t.Fatalf("unexpected reply message %q", cmd.Message)
			}
			comment := testComment()
			comment.Reply = &domain.CommentReply{
				Message:   cmd.Message,
				CreatedAt: comment.UpdatedAt,
				UpdatedAt: comment.UpdatedAt,
			}
			return comment, nil
		},
	}
	router := newCommentRouter(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/comments/cmt_01ABC/reply", strings.NewReader(`{"message":"Thanks Ana!"}`))
	req = withTestIdentity(req, &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload commentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Comment.Reply == nil || payload.Comment.Reply.Message != "Thanks Ana!" {
		t.Fatalf("expected reply in payload, got %+v", payload.Comment.Reply)
	}
}

func TestCommentHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "invalid input", err: services.ErrCommentInvalidInput, code: http.StatusBadRequest},
		{name: "invalid state", err: services.ErrCommentInvalidState, code: http.StatusConflict},
		{name: "conflict", err: services.ErrCommentConflict, code: http.StatusConflict},
		{name: "not found", err: services.ErrCommentNotFound, code: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCommentService{
				moderateFunc: func(context.Context, services.ModerateCommentCommand) (services.Comment, error) {
					return services.Comment{}, tc.err
				},
			}
			router := newCommentRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/comments/cmt_01ABC:moderate", strings.NewReader(`{"status":"approved"}`))
			req = withTestIdentity(req, &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}})
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, resp.Code)
			}
		})
	}
}
