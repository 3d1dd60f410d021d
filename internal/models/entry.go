package models

import "time"

// ContentKind tags which variant of an entry body is active
type ContentKind int

const (
	ContentPending ContentKind = iota
	ContentText
	ContentImage
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentImage:
		return "image"
	default:
		return "pending"
	}
}

// Body holds exactly one of text, image url or the pending marker
type Body struct {
	Kind     ContentKind
	Text     string
	ImageURL string
}

func TextBody(text string) Body {
	return Body{Kind: ContentText, Text: text}
}

func ImageBody(url string) Body {
	return Body{Kind: ContentImage, ImageURL: url}
}

func PendingBody() Body {
	return Body{Kind: ContentPending}
}

// FeedEntry is one message as materialized in the feed
type FeedEntry struct {
	ID              string
	Timestamp       *time.Time // nil until the remote store acknowledges the write
	AuthorName      string
	AuthorAvatarURL string
	Body            Body
	StorageURI      string
	Visible         bool
}

// HasTimestamp reports whether the server has assigned the ordering key
func (e *FeedEntry) HasTimestamp() bool {
	return e.Timestamp != nil
}

// EntryView is the presentation projection sent to browsers
type EntryView struct {
	ID        string     `json:"id"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Name      string     `json:"name"`
	AvatarURL string     `json:"avatarUrl"`
	Kind      string     `json:"kind"`
	Text      string     `json:"text,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Visible   bool       `json:"visible"`
}

// View projects the entry for rendering. Pending entries show the loading marker.
func (e FeedEntry) View() EntryView {
	v := EntryView{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Name:      e.AuthorName,
		AvatarURL: SizedAvatarURL(e.AuthorAvatarURL),
		Kind:      e.Body.Kind.String(),
		Visible:   e.Visible,
	}
	switch e.Body.Kind {
	case ContentText:
		v.Text = e.Body.Text
	case ContentImage:
		v.ImageURL = e.Body.ImageURL
	default:
		v.ImageURL = LoadingImageURL
	}
	return v
}

// Views projects a slice of entries, keeping order
func Views(entries []FeedEntry) []EntryView {
	views := make([]EntryView, len(entries))
	for i, e := range entries {
		views[i] = e.View()
	}
	return views
}
