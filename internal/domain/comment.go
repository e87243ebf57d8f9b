package domain

import "time"

// CommentStatus indicates the moderation state of a testimonial comment.
type CommentStatus string

const (
	// CommentStatusPending indicates the comment awaits moderation.
	CommentStatusPending CommentStatus = "pending"
	// CommentStatusApproved indicates the comment has been approved and is visible.
	CommentStatusApproved CommentStatus = "approved"
	// CommentStatusRejected indicates the comment has been rejected and is hidden.
	CommentStatusRejected CommentStatus = "rejected"
)

// CommentSort enumerates the supported orderings for comment listings.
type CommentSort string

const (
	// CommentSortNewest orders comments by creation time, newest first.
	CommentSortNewest CommentSort = "newest"
	// CommentSortTop orders comments by like count, then recency.
	CommentSortTop CommentSort = "top"
)

// Comment stores a visitor testimonial attached to a site page.
type Comment struct {
	ID            string
	PageRef       string
	AuthorRef     string
	AuthorName    string
	AuthorPicture string
	Body          string
	Likes         int
	Status        CommentStatus
	Reply         *CommentReply
	ModeratedBy   *string
	ModeratedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CommentReply stores the single staff response attached to a comment.
type CommentReply struct {
	Message   string
	AuthorRef string
	CreatedAt time.Time
	UpdatedAt time.Time
}
