package queue

import "time"

// Item is one remote file of a gallery.
type Item struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// GalleryRequest is an enqueued, already resolved gallery. It is immutable
// once added.
type GalleryRequest struct {
	ID           string    `json:"id"`
	Adapter      string    `json:"adapter"`
	SourceURL    string    `json:"sourceUrl"`
	CanonicalURL string    `json:"canonicalUrl,omitempty"`
	Title        string    `json:"title"`
	Items        []Item    `json:"items"`
	AddedAt      time.Time `json:"addedAt"`
}

// Referer is the page URL sent with every item transfer.
func (r GalleryRequest) Referer() string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return r.CanonicalURL
}
