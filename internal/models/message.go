package models

import (
	"errors"
	"fmt"
	"time"
)

// LoadingImageURL marks a message whose image is still uploading
const LoadingImageURL = "https://www.google.com/images/spin-32.gif?a"

var ErrMalformedChange = errors.New("malformed change record")

// MessageDoc is the document stored in the remote "messages" collection
type MessageDoc struct {
	Name          string     `json:"name" firestore:"name" bson:"name"`
	Text          string     `json:"text,omitempty" firestore:"text,omitempty" bson:"text,omitempty"`
	ProfilePicURL string     `json:"profilePicUrl,omitempty" firestore:"profilePicUrl,omitempty" bson:"profilePicUrl,omitempty"`
	ImageURL      string     `json:"imageUrl,omitempty" firestore:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	StorageURI    string     `json:"storageUri,omitempty" firestore:"storageUri,omitempty" bson:"storageUri,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty" firestore:"timestamp" bson:"timestamp,omitempty"`
}

// MessageUpdate carries the fields written when an image entry is finalized
type MessageUpdate struct {
	ImageURL   string `json:"imageUrl" firestore:"imageUrl" bson:"imageUrl"`
	StorageURI string `json:"storageUri" firestore:"storageUri" bson:"storageUri"`
}

// NewTextMessage builds the document for a plain text message
func NewTextMessage(author CurrentUser, text string) MessageDoc {
	return MessageDoc{
		Name:          author.Name,
		Text:          text,
		ProfilePicURL: author.ProfilePicURL(),
	}
}

// NewPendingMessage builds the placeholder document for an image message
func NewPendingMessage(author CurrentUser) MessageDoc {
	return MessageDoc{
		Name:          author.Name,
		ImageURL:      LoadingImageURL,
		ProfilePicURL: author.ProfilePicURL(),
	}
}

// Equal compares two documents field by field, timestamps by instant
func (d MessageDoc) Equal(o MessageDoc) bool {
	if d.Name != o.Name || d.Text != o.Text || d.ProfilePicURL != o.ProfilePicURL ||
		d.ImageURL != o.ImageURL || d.StorageURI != o.StorageURI {
		return false
	}
	if d.Timestamp == nil || o.Timestamp == nil {
		return d.Timestamp == nil && o.Timestamp == nil
	}
	return d.Timestamp.Equal(*o.Timestamp)
}

// Apply returns a copy of the document with the update written over it
func (d MessageDoc) Apply(u MessageUpdate) MessageDoc {
	d.ImageURL = u.ImageURL
	d.StorageURI = u.StorageURI
	return d
}

// DecodeEntry projects a remote document into a feed entry.
// Text wins over an image url, the loading marker decodes to a pending body.
func DecodeEntry(id string, doc *MessageDoc) (FeedEntry, error) {
	if id == "" {
		return FeedEntry{}, fmt.Errorf("%w: missing id", ErrMalformedChange)
	}
	if doc == nil {
		return FeedEntry{}, fmt.Errorf("%w: %s has no snapshot", ErrMalformedChange, id)
	}
	if doc.Name == "" {
		return FeedEntry{}, fmt.Errorf("%w: %s has no author name", ErrMalformedChange, id)
	}

	entry := FeedEntry{
		ID:              id,
		AuthorName:      doc.Name,
		AuthorAvatarURL: doc.ProfilePicURL,
		StorageURI:      doc.StorageURI,
	}
	if doc.Timestamp != nil {
		ts := *doc.Timestamp
		entry.Timestamp = &ts
	}

	switch {
	case doc.Text != "":
		entry.Body = TextBody(doc.Text)
	case doc.ImageURL == LoadingImageURL:
		entry.Body = PendingBody()
	case doc.ImageURL != "":
		entry.Body = ImageBody(doc.ImageURL)
	default:
		return FeedEntry{}, fmt.Errorf("%w: %s has neither text nor image", ErrMalformedChange, id)
	}
	return entry, nil
}
