// Package post defines the logical post of the blog and its layout in the
// global state of the application that holds it.
//
// A post is never stored as such: it is projected from the global state every
// time it is read. The layout is
//
//	TITLE      title, UTF-8 bytes
//	IMAGE      image URL, UTF-8 bytes
//	CONTENT    content, UTF-8 bytes (current layout)
//	"0".."59"  content shards, UTF-8 bytes (legacy layout)
//	UPVOTE     number of upvotes, unsigned integer
//	DOWNVOTE   number of downvotes, unsigned integer
package post

import (
	"golang.org/x/xerrors"
)

const (
	// KeyTitle is the state key of the title.
	KeyTitle = "TITLE"

	// KeyImage is the state key of the image URL.
	KeyImage = "IMAGE"

	// KeyContent is the state key of the content when it fits in one slot.
	KeyContent = "CONTENT"

	// KeyUpvote is the state key of the upvote counter.
	KeyUpvote = "UPVOTE"

	// KeyDownvote is the state key of the downvote counter.
	KeyDownvote = "DOWNVOTE"
)

// Post is a blog post as projected from the ledger.
type Post struct {
	// ID is the identifier of the application assigned by the ledger.
	ID uint64 `json:"id"`

	Title   string `json:"title"`
	Image   string `json:"image"`
	Content string `json:"content"`

	Upvotes   uint64 `json:"upvotes"`
	Downvotes uint64 `json:"downvotes"`

	// Owner is the address of the account that created the post.
	Owner string `json:"owner"`
}

// Draft is the content of a post submitted by its author.
type Draft struct {
	Title   string `json:"title"`
	Image   string `json:"image"`
	Content string `json:"content"`
}

// Validate returns an error if a required field is missing.
func (d Draft) Validate() error {
	if d.Title == "" {
		return xerrors.New("title is required")
	}

	if d.Image == "" {
		return xerrors.New("image is required")
	}

	return nil
}

// Direction is the direction of a vote.
type Direction string

const (
	// Upvote increments the upvote counter.
	Upvote Direction = "upvote"

	// Downvote increments the downvote counter.
	Downvote Direction = "downvote"
)

// Key returns the state key of the counter of the direction, or an empty key
// if the direction is unknown.
func (d Direction) Key() string {
	switch d {
	case Upvote:
		return KeyUpvote
	case Downvote:
		return KeyDownvote
	default:
		return ""
	}
}

// Valid returns true if the direction is known.
func (d Direction) Valid() bool {
	return d.Key() != ""
}
