package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/repositories"
)

const (
	commentIDPrefix          = "cmt_"
	commentBodyMaxLength     = 2000
	commentEventCreated      = "comment.created"
	commentEventApproved     = "comment.approved"
	commentEventRejected     = "comment.rejected"
	commentEventReplyUpdated = "comment.reply.updated"
	commentEventLikeUpdated  = "comment.like.updated"
)

var (
	// ErrCommentInvalidInput indicates validation failures for comment operations.
	ErrCommentInvalidInput = errors.New("comment: invalid input")
	// ErrCommentNotFound indicates a comment could not be located.
	ErrCommentNotFound = errors.New("comment: not found")
	// ErrCommentConflict signals duplicate submissions or conflicting updates.
	ErrCommentConflict = errors.New("comment: conflict")
	// ErrCommentInvalidState is returned when an invalid status transition is attempted.
	ErrCommentInvalidState = errors.New("comment: invalid state transition")
)

// CommentServiceDeps bundles collaborators required to construct a CommentService.
type CommentServiceDeps struct {
	Comments         repositories.CommentRepository
	Clock            func() time.Time
	IDGenerator      func() string
	Sanitizer        func(string) string
	ProfanityChecker func(string) bool
	Events           CommentEventPublisher
}

type commentService struct {
	comments        repositories.CommentRepository
	clock           func() time.Time
	newID           func() string
	sanitize        func(string) string
	isProfane       func(string) bool
	events          CommentEventPublisher
	allowedStatuses map[domain.CommentStatus]struct{}
}

// NewCommentService wires dependencies into a concrete CommentService implementation.
func NewCommentService(deps CommentServiceDeps) (CommentService, error) {
	if deps.Comments == nil {
		return nil, errors.New("comment service: comment repository is required")
	}

	svc := &commentService{
		comments:  deps.Comments,
		clock:     deps.Clock,
		newID:     deps.IDGenerator,
		sanitize:  deps.Sanitizer,
		isProfane: deps.ProfanityChecker,
		events:    deps.Events,
		allowedStatuses: map[domain.CommentStatus]struct{}{
			domain.CommentStatusApproved: {},
			domain.CommentStatusRejected: {},
		},
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	base := svc.clock
	svc.clock = func() time.Time { return base().UTC() }
	if svc.newID == nil {
		svc.newID = func() string { return commentIDPrefix + ulid.Make().String() }
	}
	if svc.sanitize == nil {
		svc.sanitize = newCommentSanitizer()
	}
	if svc.isProfane == nil {
		svc.isProfane = basicProfanityChecker
	}
	return svc, nil
}

func (s *commentService) Create(ctx context.Context, cmd CreateCommentCommand) (Comment, error) {
	if strings.TrimSpace(cmd.PageRef) == "" {
		return Comment{}, fmt.Errorf("%w: page ref is required", ErrCommentInvalidInput)
	}
	if strings.TrimSpace(cmd.AuthorID) == "" {
		return Comment{}, fmt.Errorf("%w: author id is required", ErrCommentInvalidInput)
	}

	body := s.sanitize(cmd.Body)
	if body == "" {
		return Comment{}, fmt.Errorf("%w: body is required", ErrCommentInvalidInput)
	}
	if utf8.RuneCountInString(body) > commentBodyMaxLength {
		return Comment{}, fmt.Errorf("%w: body exceeds %d characters", ErrCommentInvalidInput, commentBodyMaxLength)
	}
	if s.isProfane(body) {
		return Comment{}, fmt.Errorf("%w: body contains profanity", ErrCommentInvalidInput)
	}

	now := s.now()
	comment := domain.Comment{
		ID:            s.newID(),
		PageRef:       strings.TrimSpace(cmd.PageRef),
		AuthorRef:     cmd.AuthorID,
		AuthorName:    strings.TrimSpace(cmd.AuthorName),
		AuthorPicture: strings.TrimSpace(cmd.AuthorPicture),
		Body:          body,
		Status:        domain.CommentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.comments.Insert(ctx, comment); err != nil {
		return Comment{}, s.mapCommentError(err)
	}

	s.emitEvent(ctx, commentEventCreated, comment, cmd.AuthorID)

	return comment, nil
}

func (s *commentService) List(ctx context.Context, query ListCommentsQuery) (domain.CursorPage[Comment], error) {
	if strings.TrimSpace(query.PageRef) == "" {
		return domain.CursorPage[Comment]{}, fmt.Errorf("%w: page ref is required", ErrCommentInvalidInput)
	}

	sort := query.Sort
	switch sort {
	case "":
		sort = domain.CommentSortNewest
	case domain.CommentSortNewest, domain.CommentSortTop:
	default:
		return domain.CursorPage[Comment]{}, fmt.Errorf("%w: unsupported sort %q", ErrCommentInvalidInput, query.Sort)
	}

	statuses := []domain.CommentStatus{domain.CommentStatusApproved}
	if query.IncludePending {
		statuses = append(statuses, domain.CommentStatusPending)
	}
	if query.IncludeRejected {
		statuses = append(statuses, domain.CommentStatusRejected)
	}

	page, err := s.comments.List(ctx, repositories.CommentListFilter{
		PageRef:  strings.TrimSpace(query.PageRef),
		Statuses: statuses,
		Sort:     sort,
		Pager:    query.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Comment]{}, s.mapCommentError(err)
	}
	return page, nil
}

func (s *commentService) Like(ctx context.Context, cmd CommentLikeCommand) (Comment, error) {
	if err := validateLikeCommand(cmd); err != nil {
		return Comment{}, err
	}
	updated, err := s.comments.AddLike(ctx, cmd.CommentID, cmd.UserID)
	if err != nil {
		return Comment{}, s.mapCommentError(err)
	}
	s.emitEvent(ctx, commentEventLikeUpdated, updated, cmd.UserID)
	return updated, nil
}

func (s *commentService) Unlike(ctx context.Context, cmd CommentLikeCommand) (Comment, error) {
	if err := validateLikeCommand(cmd); err != nil {
		return Comment{}, err
	}
	updated, err := s.comments.RemoveLike(ctx, cmd.CommentID, cmd.UserID)
	if err != nil {
		return Comment{}, s.mapCommentError(err)
	}
	s.emitEvent(ctx, commentEventLikeUpdated, updated, cmd.UserID)
	return updated, nil
}

func (s *commentService) Moderate(ctx context.Context, cmd ModerateCommentCommand) (Comment, error) {
	if strings.TrimSpace(cmd.CommentID) == "" {
		return Comment{}, fmt.Errorf("%w: comment id is required", ErrCommentInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return Comment{}, fmt.Errorf("%w: actor id is required", ErrCommentInvalidInput)
	}
	if _, ok := s.allowedStatuses[cmd.Status]; !ok {
		return Comment{}, fmt.Errorf("%w: unsupported moderation status %s", ErrCommentInvalidInput, cmd.Status)
	}

	comment, err := s.comments.FindByID(ctx, cmd.CommentID)
	if err != nil {
		return Comment{}, s.mapCommentError(err)
	}

	if comment.Status == cmd.Status {
		return comment, nil
	}
	if comment.Status != domain.CommentStatusPending {
		return Comment{}, fmt.Errorf("%w: cannot transition from %s to %s", ErrCommentInvalidState, comment.Status, cmd.Status)
	}

	updated, err := s.comments.UpdateStatus(ctx, cmd.CommentID, cmd.Status, cmd.ActorID, s.now())
	if err != nil {
		return Comment{}, s.mapCommentError(err)
	}

	switch cmd.Status {
	case domain.CommentStatusApproved:
		s.emitEvent(ctx, commentEventApproved, updated, cmd.ActorID)
	case domain.CommentStatusRejected:
		s.emitEvent(ctx, commentEventRejected, updated, cmd.ActorID)
	}

	return updated, nil
}

func (s *commentService) StoreReply(ctx context.Context, cmd StoreCommentReplyCommand) (Comment, error) {
	if strings.TrimSpace(cmd.CommentID) == "" {
		return Comment{}, fmt.Errorf("%w: comment id is required", ErrCommentInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return Comment{}, fmt.Errorf("%w: actor id is required", ErrCommentInvalidInput)
	}

	comment, err := s.comments.FindByID(ctx, cmd.CommentID)
	if err != nil {
		return Comment{}, s.mapCommentError(err)
	}

	if comment.Status != domain.CommentStatusApproved {
		return Comment{}, fmt.Errorf("%w: replies allowed only for approved comments", ErrCommentInvalidState)
	}

	message := s.sanitize(cmd.Message)
	if message != "" && s.isProfane(message) {
		return Comment{}, fmt.Errorf("%w: reply contains profanity", ErrCommentInvalidInput)
	}

	updateAt := s.now()

	var reply *domain.CommentReply
	if message != "" {
		createdAt := updateAt
		if comment.Reply != nil && !comment.Reply.CreatedAt.IsZero() {
			createdAt = comment.Reply.CreatedAt
		}
		reply = &domain.CommentReply{
			Message:   message,
			AuthorRef: cmd.ActorID,
			CreatedAt: createdAt,
			UpdatedAt: updateAt,
		}
	}

	updated, err := s.comments.SetReply(ctx, cmd.CommentID, reply)
	if err != nil {
		return Comment{}, s.mapCommentError(err)
	}

	s.emitEvent(ctx, commentEventReplyUpdated, updated, cmd.ActorID)

	return updated, nil
}

func validateLikeCommand(cmd CommentLikeCommand) error {
	if strings.TrimSpace(cmd.CommentID) == "" {
		return fmt.Errorf("%w: comment id is required", ErrCommentInvalidInput)
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrCommentInvalidInput)
	}
	return nil
}

func (s *commentService) emitEvent(ctx context.Context, eventType string, comment domain.Comment, actorID string) {
	if s.events == nil {
		return
	}
	event := CommentEvent{
		Type:       eventType,
		CommentID:  comment.ID,
		PageRef:    comment.PageRef,
		Status:     comment.Status,
		Likes:      comment.Likes,
		ActorID:    actorID,
		OccurredAt: s.now(),
		Metadata: map[string]any{
			"authorRef": comment.AuthorRef,
		},
	}
	_ = s.events.PublishCommentEvent(ctx, event)
}

func (s *commentService) now() time.Time {
	return s.clock()
}

func (s *commentService) mapCommentError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCommentNotFound
		case repoErr.IsConflict():
			return ErrCommentConflict
		}
	}
	return err
}

// CommentEventPublisher emits comment lifecycle events to downstream consumers.
type CommentEventPublisher interface {
	PublishCommentEvent(ctx context.Context, event CommentEvent) error
}

// CommentEvent captures metadata for comment lifecycle events.
type CommentEvent struct {
	Type       string
	CommentID  string
	PageRef    string
	Status     domain.CommentStatus
	Likes      int
	ActorID    string
	OccurredAt time.Time
	Metadata   map[string]any
}

// newCommentSanitizer strips all HTML with a strict policy, then normalises
// whitespace while preserving intentional newlines.
func newCommentSanitizer() func(string) string {
	policy := bluemonday.StrictPolicy()
	return func(input string) string {
		return normalizeCommentText(policy.Sanitize(input))
	}
}

// normalizeCommentText collapses runs of whitespace within each line and
// strips control characters, keeping newlines so paragraphs survive.
func normalizeCommentText(input string) string {
	input = strings.ReplaceAll(strings.ReplaceAll(input, "\r\n", "\n"), "\r", "\n")

	var out []string
	for _, line := range strings.Split(input, "\n") {
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsControl(r)
		})
		out = append(out, strings.Join(fields, " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// basicProfanityChecker flags whole-word matches only, so "class" or
// "assignment" never trip it.
func basicProfanityChecker(input string) bool {
	if input == "" {
		return false
	}

	word := strings.Builder{}
	for _, r := range strings.ToLower(input) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			word.WriteRune(r)
			continue
		}
		if blockedTerms[word.String()] {
			return true
		}
		word.Reset()
	}
	return blockedTerms[word.String()]
}

var blockedTerms = func() map[string]bool {
	terms := map[string]bool{}
	for _, t := range []string{
		"ass", "asshole", "bastard", "bitch", "bloody", "damn",
		"fuck", "fucker", "fucking", "shit", "shitty", "slut", "whore",
	} {
		terms[t] = true
	}
	return terms
}()
