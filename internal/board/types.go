package board

import "time"

// List is a column on the board.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Card is a task card as the board service returns it.
type Card struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Desc         string    `json:"desc"`
	ListID       string    `json:"idList"`
	LabelIDs     []string  `json:"idLabels"`
	MemberIDs    []string  `json:"idMembers"`
	URL          string    `json:"url"`
	LastActivity time.Time `json:"dateLastActivity"`
}

// Comment is one comment action on a card.
type Comment struct {
	ID            string        `json:"id"`
	Date          time.Time     `json:"date"`
	Data          CommentData   `json:"data"`
	MemberCreator CommentAuthor `json:"memberCreator"`
}

// CommentData is the payload of a comment action.
type CommentData struct {
	Text string `json:"text"`
}

// CommentAuthor identifies who wrote a comment.
type CommentAuthor struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// Member is a board member.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// Label is a board label.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateCardRequest holds fields for creating a card.
type CreateCardRequest struct {
	ListID    string
	Name      string
	Desc      string
	LabelIDs  []string
	MemberIDs []string
}

// UpdateCardRequest holds fields for updating a card. Nil fields are left
// unchanged.
type UpdateCardRequest struct {
	Name   *string
	Desc   *string
	ListID *string
}
