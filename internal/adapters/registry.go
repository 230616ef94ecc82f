package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"galleria/internal/logging"
	"galleria/internal/queue"
)

// requestNamespace scopes request ids so they never collide with other SHA-1 UUIDs.
var requestNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("galleria:gallery-request"))

// Match is a URL recognized by an adapter, identified before any network I/O.
type Match struct {
	Adapter Adapter
	URL     *url.URL
	Key     string
	ID      string
}

// Registry dispatches gallery URLs to adapters.
type Registry struct {
	adapters      []Adapter
	includeVideos bool
	now           func() time.Time
	logger        *slog.Logger
}

// RegistryOption customizes the registry.
type RegistryOption func(*Registry)

// WithVideos includes sample movies in resolved galleries.
func WithVideos(include bool) RegistryOption {
	return func(r *Registry) { r.includeVideos = include }
}

// WithClock overrides the time source stamped on requests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logging.NewComponentLogger(logger, "adapters") }
}

// NewRegistry returns a registry over the given adapters, tried in order.
func NewRegistry(adapters []Adapter, opts ...RegistryOption) *Registry {
	r := &Registry{
		adapters: adapters,
		now:      time.Now,
		logger:   logging.NewComponentLogger(nil, "adapters"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identify finds the adapter for rawURL and computes the request id without
// fetching anything. Different spellings of the same gallery URL map to the
// same id.
func (r *Registry) Identify(rawURL string) (Match, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Match{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	host := stripWWW(strings.ToLower(u.Hostname()))

	supported := false
	for _, adapter := range r.adapters {
		if stripWWW(adapter.Domain()) != host {
			continue
		}
		supported = true
		if key, ok := adapter.Match(u); ok {
			return Match{Adapter: adapter, URL: u, Key: key, ID: RequestID(adapter.ID(), key)}, nil
		}
	}
	if supported {
		return Match{}, fmt.Errorf("%w: %s is not a gallery page", ErrInvalidURL, u.String())
	}
	return Match{}, fmt.Errorf("%w: %s", ErrUnsupported, u.Host)
}

// Resolve fetches the matched gallery and converts it into a queue request.
func (r *Registry) Resolve(ctx context.Context, m Match) (queue.GalleryRequest, error) {
	started := r.now()
	gallery, err := m.Adapter.Resolve(ctx, m.URL)
	if err != nil {
		return queue.GalleryRequest{}, fmt.Errorf("%s: resolve gallery: %w", m.Adapter.ID(), err)
	}

	title := strings.TrimSpace(gallery.Title)
	items := append([]queue.Item(nil), gallery.Images...)
	if r.includeVideos {
		items = append(items, gallery.Videos...)
	}
	if title == "" {
		return queue.GalleryRequest{}, fmt.Errorf("%w: %s returned no title", ErrEmptyGallery, m.Adapter.ID())
	}
	if len(items) == 0 {
		return queue.GalleryRequest{}, fmt.Errorf("%w: %q", ErrEmptyGallery, title)
	}

	canonical := gallery.CanonicalURL
	if canonical == "" {
		canonical = m.URL.String()
	}
	req := queue.GalleryRequest{
		ID:           m.ID,
		Adapter:      m.Adapter.ID(),
		SourceURL:    m.URL.String(),
		CanonicalURL: canonical,
		Title:        fmt.Sprintf("%s (%s)", title, m.Adapter.ID()),
		Items:        items,
		AddedAt:      r.now().UTC(),
	}
	r.logger.Info("gallery resolved",
		logging.String(logging.FieldGalleryID, req.ID),
		logging.String("title", req.Title),
		logging.Int("items", len(req.Items)),
		logging.Duration("elapsed", r.now().Sub(started)),
		logging.String(logging.FieldEventType, "gallery_resolved"),
	)
	return req, nil
}

// RequestID derives the stable request id from an adapter id and gallery key.
func RequestID(adapterID, key string) string {
	return uuid.NewSHA1(requestNamespace, []byte(adapterID+"\x00"+key)).String()
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
