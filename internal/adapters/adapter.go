package adapters

import (
	"context"
	"errors"
	"net/url"

	"galleria/internal/queue"
)

var (
	// ErrUnsupported reports a URL whose host no adapter handles.
	ErrUnsupported = errors.New("unsupported website")
	// ErrInvalidURL reports a malformed URL, or a supported host with a path
	// that is not a gallery.
	ErrInvalidURL = errors.New("invalid gallery url")
	// ErrEmptyGallery reports a resolved gallery without a title or items.
	ErrEmptyGallery = errors.New("gallery has no downloadable items")
)

// Adapter turns gallery page URLs of one website into downloadable items.
type Adapter interface {
	// ID is the short identifier appended to titles and hashed into request ids.
	ID() string
	// Domain is the website host, compared without a leading "www.".
	Domain() string
	// Match extracts the stable gallery key from u, or reports false when u
	// is not a gallery page.
	Match(u *url.URL) (key string, ok bool)
	// Resolve fetches the gallery behind u.
	Resolve(ctx context.Context, u *url.URL) (Gallery, error)
}

// Gallery is the adapter's view of one gallery before it is enqueued.
type Gallery struct {
	Title        string
	Images       []queue.Item
	Videos       []queue.Item
	CanonicalURL string
}
