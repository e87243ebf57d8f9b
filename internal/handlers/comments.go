package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/platform/auth"
	"github.com/lumalingua/api/internal/platform/httpx"
	"github.com/lumalingua/api/internal/repositories"
	"github.com/lumalingua/api/internal/services"
)

const (
	maxCommentBodySize = 32 * 1024
	maxCommentPageSize = 50
)

// CommentHandlers exposes endpoints for testimonial comments, likes, replies,
// and moderation.
type CommentHandlers struct {
	authn    *auth.Authenticator
	comments services.CommentService
}

// NewCommentHandlers constructs a new CommentHandlers instance.
func NewCommentHandlers(authn *auth.Authenticator, comments services.CommentService) *CommentHandlers {
	return &CommentHandlers{
		authn:    authn,
		comments: comments,
	}
}

// Routes registers the /comments endpoints. Listing is public; writes require
// authentication and moderation surfaces require staff roles.
func (h *CommentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Get("/comments", h.listComments)

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Post("/comments", h.createComment)
		g.Post("/comments/{commentId}/like", h.likeComment)
		g.Delete("/comments/{commentId}/like", h.unlikeComment)
	})

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		g.Put("/comments/{commentId}/reply", h.storeReply)
		g.Post("/comments/{commentId}:moderate", h.moderateComment)
	})
}

func (h *CommentHandlers) listComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.comments == nil {
		writeCommentServiceUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()
	pageSize := 0
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		if size > maxCommentPageSize {
			size = maxCommentPageSize
		}
		pageSize = size
	}

	page, err := h.comments.List(ctx, services.ListCommentsQuery{
		PageRef: query.Get("page"),
		Sort:    domain.CommentSort(strings.TrimSpace(query.Get("sort"))),
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: query.Get("page_token"),
		},
	})
	if err != nil {
		writeCommentError(ctx, w, err)
		return
	}

	items := make([]commentPayload, 0, len(page.Items))
	for _, comment := range page.Items {
		items = append(items, buildCommentPayload(comment))
	}

	writeJSONResponse(w, http.StatusOK, listCommentsResponse{
		Comments:      items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *CommentHandlers) createComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.comments == nil {
		writeCommentServiceUnavailable(ctx, w)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCommentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createCommentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	comment, err := h.comments.Create(ctx, services.CreateCommentCommand{
		PageRef:       req.Page,
		AuthorID:      identity.UID,
		AuthorName:    identity.Name,
		AuthorPicture: identity.Picture,
		Body:          req.Body,
	})
	if err != nil {
		writeCommentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, commentResponse{Comment: buildCommentPayload(comment)})
}

func (h *CommentHandlers) likeComment(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, true)
}

func (h *CommentHandlers) unlikeComment(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, false)
}

func (h *CommentHandlers) toggleLike(w http.ResponseWriter, r *http.Request, like bool) {
	ctx := r.Context()
	if h.comments == nil {
		writeCommentServiceUnavailable(ctx, w)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	cmd := services.CommentLikeCommand{
		CommentID: chi.URLParam(r, "commentId"),
		UserID:    identity.UID,
	}

	var (
		comment services.Comment
		err     error
	)
	if like {
		comment, err = h.comments.Like(ctx, cmd)
	} else {
		comment, err = h.comments.Unlike(ctx, cmd)
	}
	if err != nil {
		writeCommentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, commentResponse{Comment: buildCommentPayload(comment)})
}

func (h *CommentHandlers) storeReply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.comments == nil {
		writeCommentServiceUnavailable(ctx, w)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCommentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req storeReplyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	comment, err := h.comments.StoreReply(ctx, services.StoreCommentReplyCommand{
		CommentID: chi.URLParam(r, "commentId"),
		ActorID:   identity.UID,
		Message:   req.Message,
	})
	if err != nil {
		writeCommentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, commentResponse{Comment: buildCommentPayload(comment)})
}

func (h *CommentHandlers) moderateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.comments == nil {
		writeCommentServiceUnavailable(ctx, w)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCommentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req moderateCommentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	comment, err := h.comments.Moderate(ctx, services.ModerateCommentCommand{
		CommentID: chi.URLParam(r, "commentId"),
		ActorID:   identity.UID,
		Status:    domain.CommentStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeCommentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, commentResponse{Comment: buildCommentPayload(comment)})
}

type createCommentRequest struct {
	Page string `json:"page"`
	Body string `json:"body"`
}

type storeReplyRequest struct {
	Message string `json:"message"`
}

type moderateCommentRequest struct {
	Status string `json:"status"`
}

type listCommentsResponse struct {
	Comments      []commentPayload `json:"comments"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type commentResponse struct {
	Comment commentPayload `json:"comment"`
}

type commentPayload struct {
	ID            string               `json:"id"`
	Page          string               `json:"page"`
	AuthorName    string               `json:"author_name,omitempty"`
	AuthorPicture string               `json:"author_picture,omitempty"`
	Body          string               `json:"body"`
	Likes         int                  `json:"likes"`
	Status        string               `json:"status"`
	Reply         *commentReplyPayload `json:"reply,omitempty"`
	ModeratedBy   *string              `json:"moderated_by,omitempty"`
	ModeratedAt   string               `json:"moderated_at,omitempty"`
	CreatedAt     string               `json:"created_at"`
	UpdatedAt     string               `json:"updated_at"`
}

type commentReplyPayload struct {
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func buildCommentPayload(comment services.Comment) commentPayload {
	payload := commentPayload{
		ID:            comment.ID,
		Page:          comment.PageRef,
		AuthorName:    comment.AuthorName,
		AuthorPicture: comment.AuthorPicture,
		Body:          comment.Body,
		Likes:         comment.Likes,
		Status:        string(comment.Status),
		ModeratedBy:   cloneStringPointer(comment.ModeratedBy),
		ModeratedAt:   formatTime(pointerTime(comment.ModeratedAt)),
		CreatedAt:     formatTime(comment.CreatedAt),
		UpdatedAt:     formatTime(comment.UpdatedAt),
	}

	if comment.Reply != nil {
		payload.Reply = &commentReplyPayload{
			Message:   comment.Reply.Message,
			CreatedAt: formatTime(comment.Reply.CreatedAt),
			UpdatedAt: formatTime(comment.Reply.UpdatedAt),
		}
	}

	return payload
}

func writeCommentServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("comment_service_unavailable", "comment service unavailable", http.StatusServiceUnavailable))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCommentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCommentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCommentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("comment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCommentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("comment_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCommentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("comment_not_found", "comment not found", http.StatusNotFound))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("comment_service_unavailable", "comment repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("comment_error", "failed to process comment request", http.StatusInternalServerError))
	}
}
