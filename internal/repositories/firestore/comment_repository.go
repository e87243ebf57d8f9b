package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lumalingua/api/internal/domain"
	pfirestore "github.com/lumalingua/api/internal/platform/firestore"
	"github.com/lumalingua/api/internal/repositories"
)

const (
	commentCollection     = "comments"
	commentLikeCollection = "likes"
)

// CommentRepository persists testimonial comments and their per-user likes.
type CommentRepository struct {
	provider *pfirestore.Provider
}

// NewCommentRepository constructs a Firestore-backed comment repository.
func NewCommentRepository(provider *pfirestore.Provider) (*CommentRepository, error) {
	if provider == nil {
		return nil, errors.New("comment repository requires firestore provider")
	}
	return &CommentRepository{provider: provider}, nil
}

// Insert creates the comment document, failing when the ID already exists.
func (r *CommentRepository) Insert(ctx context.Context, comment domain.Comment) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(comment.ID)
	if id == "" {
		return errors.New("comment repository: comment id is required")
	}
	if _, err := coll.Doc(id).Create(ctx, encodeCommentDocument(comment)); err != nil {
		return pfirestore.WrapError("comments.insert", err)
	}
	return nil
}

// FindByID fetches a single comment.
func (r *CommentRepository) FindByID(ctx context.Context, commentID string) (domain.Comment, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	id := strings.TrimSpace(commentID)
	if id == "" {
		return domain.Comment{}, errors.New("comment repository: comment id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Comment{}, pfirestore.WrapError("comments.get", err)
	}
	return decodeCommentDocument(snap)
}

// List returns comments for a page with cursor pagination. Ordering is
// deterministic: the sort key, then creation time, then document ID.
func (r *CommentRepository) List(ctx context.Context, filter repositories.CommentListFilter) (domain.CursorPage[domain.Comment], error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.CursorPage[domain.Comment]{}, err
	}

	pageRef := strings.TrimSpace(filter.PageRef)
	if pageRef == "" {
		return domain.CursorPage[domain.Comment]{}, errors.New("comment repository: page ref is required")
	}

	sort := filter.Sort
	if sort == "" {
		sort = domain.CommentSortNewest
	}

	limit := filter.Pager.PageSize
	if limit < 0 {
		limit = 0
	}

	query := coll.Where("pageRef", "==", pageRef)
	if len(filter.Statuses) == 1 {
		query = query.Where("status", "==", string(filter.Statuses[0]))
	} else if len(filter.Statuses) > 1 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}

	switch sort {
	case domain.CommentSortTop:
		query = query.OrderBy("likes", firestore.Desc).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
	default:
		query = query.OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
	}

	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(filter.Pager.PageToken); token != "" {
		cursor, err := decodeCommentToken(token, sort)
		if err != nil {
			return domain.CursorPage[domain.Comment]{}, fmt.Errorf("comments.list: invalid page token: %w", err)
		}
		if sort == domain.CommentSortTop {
			query = query.StartAfter(cursor.likes, cursor.createdAt, cursor.docID)
		} else {
			query = query.StartAfter(cursor.createdAt, cursor.docID)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var comments []domain.Comment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Comment]{}, pfirestore.WrapError("comments.list", err)
		}
		comment, err := decodeCommentDocument(snap)
		if err != nil {
			return domain.CursorPage[domain.Comment]{}, err
		}
		comments = append(comments, comment)
	}

	nextToken := ""
	if limit > 0 && len(comments) == fetchLimit {
		last := comments[len(comments)-1]
		nextToken = encodeCommentToken(last, sort)
		comments = comments[:len(comments)-1]
	}

	return domain.CursorPage[domain.Comment]{
		Items:         comments,
		NextPageToken: nextToken,
	}, nil
}

// AddLike records the user's like and increments the counter once per user.
func (r *CommentRepository) AddLike(ctx context.Context, commentID, userID string) (domain.Comment, error) {
	return r.toggleLike(ctx, commentID, userID, true)
}

// RemoveLike clears the user's like and decrements the counter once per user.
func (r *CommentRepository) RemoveLike(ctx context.Context, commentID, userID string) (domain.Comment, error) {
	return r.toggleLike(ctx, commentID, userID, false)
}

func (r *CommentRepository) toggleLike(ctx context.Context, commentID, userID string, add bool) (domain.Comment, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	id := strings.TrimSpace(commentID)
	uid := strings.TrimSpace(userID)
	if id == "" {
		return domain.Comment{}, errors.New("comment repository: comment id is required")
	}
	if uid == "" {
		return domain.Comment{}, errors.New("comment repository: user id is required")
	}

	var result domain.Comment
	op := "comments.like"
	if !add {
		op = "comments.unlike"
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		commentRef := coll.Doc(id)
		likeRef := commentRef.Collection(commentLikeCollection).Doc(uid)

		snap, err := tx.Get(commentRef)
		if err != nil {
			return err
		}
		comment, err := decodeCommentDocument(snap)
		if err != nil {
			return err
		}

		_, likeErr := tx.Get(likeRef)
		liked := likeErr == nil
		if likeErr != nil && status.Code(likeErr) != codes.NotFound {
			return likeErr
		}

		now := time.Now().UTC()
		switch {
		case add && !liked:
			if err := tx.Set(likeRef, map[string]any{"userRef": uid, "createdAt": now}); err != nil {
				return err
			}
			comment.Likes++
			if err := tx.Update(commentRef, []firestore.Update{
				{Path: "likes", Value: firestore.Increment(1)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		case !add && liked:
			if err := tx.Delete(likeRef); err != nil {
				return err
			}
			if comment.Likes > 0 {
				comment.Likes--
			}
			if err := tx.Update(commentRef, []firestore.Update{
				{Path: "likes", Value: firestore.Increment(-1)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		default:
			// Idempotent no-op: like already in the requested state.
		}

		result = comment
		return nil
	})
	if err != nil {
		return domain.Comment{}, pfirestore.WrapError(op, err)
	}
	return result, nil
}

// SetReply stores or clears the single staff reply on the comment.
func (r *CommentRepository) SetReply(ctx context.Context, commentID string, reply *domain.CommentReply) (domain.Comment, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	id := strings.TrimSpace(commentID)
	if id == "" {
		return domain.Comment{}, errors.New("comment repository: comment id is required")
	}

	var result domain.Comment
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		commentRef := coll.Doc(id)
		snap, err := tx.Get(commentRef)
		if err != nil {
			return err
		}
		comment, err := decodeCommentDocument(snap)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := []firestore.Update{{Path: "updatedAt", Value: now}}
		if reply == nil {
			updates = append(updates, firestore.Update{Path: "reply", Value: firestore.Delete})
			comment.Reply = nil
		} else {
			stored := *reply
			if stored.CreatedAt.IsZero() {
				if comment.Reply != nil {
					stored.CreatedAt = comment.Reply.CreatedAt
				} else {
					stored.CreatedAt = now
				}
			}
			stored.UpdatedAt = now
			updates = append(updates, firestore.Update{Path: "reply", Value: encodeReplyDocument(stored)})
			comment.Reply = &stored
		}

		if err := tx.Update(commentRef, updates); err != nil {
			return err
		}
		comment.UpdatedAt = now
		result = comment
		return nil
	})
	if err != nil {
		return domain.Comment{}, pfirestore.WrapError("comments.reply", err)
	}
	return result, nil
}

// UpdateStatus transitions the moderation status and stamps the moderator.
func (r *CommentRepository) UpdateStatus(ctx context.Context, commentID string, newStatus domain.CommentStatus, moderatorID string, at time.Time) (domain.Comment, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	id := strings.TrimSpace(commentID)
	if id == "" {
		return domain.Comment{}, errors.New("comment repository: comment id is required")
	}

	var result domain.Comment
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		commentRef := coll.Doc(id)
		snap, err := tx.Get(commentRef)
		if err != nil {
			return err
		}
		comment, err := decodeCommentDocument(snap)
		if err != nil {
			return err
		}

		if err := tx.Update(commentRef, []firestore.Update{
			{Path: "status", Value: string(newStatus)},
			{Path: "moderatedBy", Value: moderatorID},
			{Path: "moderatedAt", Value: at.UTC()},
			{Path: "updatedAt", Value: at.UTC()},
		}); err != nil {
			return err
		}

		comment.Status = newStatus
		comment.ModeratedBy = &moderatorID
		moderatedAt := at.UTC()
		comment.ModeratedAt = &moderatedAt
		comment.UpdatedAt = moderatedAt
		result = comment
		return nil
	})
	if err != nil {
		return domain.Comment{}, pfirestore.WrapError("comments.moderate", err)
	}
	return result, nil
}

func (r *CommentRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("comment repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(commentCollection), nil
}

type commentDocument struct {
	PageRef       string               `firestore:"pageRef"`
	AuthorRef     string               `firestore:"authorRef"`
	AuthorName    string               `firestore:"authorName"`
	AuthorPicture string               `firestore:"authorPicture"`
	Body          string               `firestore:"body"`
	Likes         int                  `firestore:"likes"`
	Status        string               `firestore:"status"`
	Reply         *replyDocument       `firestore:"reply,omitempty"`
	ModeratedBy   *string              `firestore:"moderatedBy,omitempty"`
	ModeratedAt   *time.Time           `firestore:"moderatedAt,omitempty"`
	CreatedAt     time.Time            `firestore:"createdAt"`
	UpdatedAt     time.Time            `firestore:"updatedAt"`
}

type replyDocument struct {
	Message   string    `firestore:"message"`
	AuthorRef string    `firestore:"authorRef"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeCommentDocument(comment domain.Comment) commentDocument {
	doc := commentDocument{
		PageRef:       comment.PageRef,
		AuthorRef:     comment.AuthorRef,
		AuthorName:    comment.AuthorName,
		AuthorPicture: comment.AuthorPicture,
		Body:          comment.Body,
		Likes:         comment.Likes,
		Status:        string(comment.Status),
		ModeratedBy:   comment.ModeratedBy,
		ModeratedAt:   comment.ModeratedAt,
		CreatedAt:     comment.CreatedAt.UTC(),
		UpdatedAt:     comment.UpdatedAt.UTC(),
	}
	if comment.Reply != nil {
		reply := encodeReplyDocument(*comment.Reply)
		doc.Reply = &reply
	}
	return doc
}

func encodeReplyDocument(reply domain.CommentReply) replyDocument {
	return replyDocument{
		Message:   reply.Message,
		AuthorRef: reply.AuthorRef,
		CreatedAt: reply.CreatedAt.UTC(),
		UpdatedAt: reply.UpdatedAt.UTC(),
	}
}

func decodeCommentDocument(snapshot *firestore.DocumentSnapshot) (domain.Comment, error) {
	var doc commentDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Comment{}, fmt.Errorf("decode comment %s: %w", snapshot.Ref.ID, err)
	}
	comment := domain.Comment{
		ID:            snapshot.Ref.ID,
		PageRef:       doc.PageRef,
		AuthorRef:     doc.AuthorRef,
		AuthorName:    doc.AuthorName,
		AuthorPicture: doc.AuthorPicture,
		Body:          doc.Body,
		Likes:         doc.Likes,
		Status:        domain.CommentStatus(doc.Status),
		ModeratedBy:   doc.ModeratedBy,
		ModeratedAt:   doc.ModeratedAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.Reply != nil {
		comment.Reply = &domain.CommentReply{
			Message:   doc.Reply.Message,
			AuthorRef: doc.Reply.AuthorRef,
			CreatedAt: doc.Reply.CreatedAt,
			UpdatedAt: doc.Reply.UpdatedAt,
		}
	}
	return comment, nil
}

type commentCursor struct {
	likes     int
	createdAt time.Time
	docID     string
}

func encodeCommentToken(comment domain.Comment, sort domain.CommentSort) string {
	var payload string
	if sort == domain.CommentSortTop {
		payload = fmt.Sprintf("%d|%s|%s", comment.Likes, comment.CreatedAt.UTC().Format(time.RFC3339Nano), comment.ID)
	} else {
		payload = fmt.Sprintf("%s|%s", comment.CreatedAt.UTC().Format(time.RFC3339Nano), comment.ID)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeCommentToken(token string, sort domain.CommentSort) (commentCursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return commentCursor{}, err
	}

	parts := strings.Split(string(data), "|")
	if sort == domain.CommentSortTop {
		if len(parts) != 3 {
			return commentCursor{}, errors.New("invalid token format")
		}
		likes, err := strconv.Atoi(parts[0])
		if err != nil {
			return commentCursor{}, err
		}
		ts, err := time.Parse(time.RFC3339Nano, parts[1])
		if err != nil {
			return commentCursor{}, err
		}
		return commentCursor{likes: likes, createdAt: ts, docID: parts[2]}, nil
	}

	if len(parts) != 2 {
		return commentCursor{}, errors.New("invalid token format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return commentCursor{}, err
	}
	return commentCursor{createdAt: ts, docID: parts[1]}, nil
}

// Ensure interface compliance.
var _ repositories.CommentRepository = (*CommentRepository)(nil)
