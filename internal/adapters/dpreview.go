package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"galleria/internal/queue"
)

const (
	dpreviewID      = "dpreview"
	dpreviewDomain  = "dpreview.com"
	dpreviewDataURL = "https://www.dpreview.com/sample-galleries/data/get-gallery"
	userAgent       = "galleria/1.0 (+https://github.com/galleria)"
)

var numericSegment = regexp.MustCompile(`^\d+$`)

// DPReview resolves dpreview.com sample galleries through the site's JSON
// gallery endpoint.
type DPReview struct {
	httpClient *http.Client
	dataURL    string
}

// DPReviewOption customizes the dpreview adapter.
type DPReviewOption func(*DPReview)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) DPReviewOption {
	return func(d *DPReview) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithDataURL overrides the gallery data endpoint (used by tests).
func WithDataURL(endpoint string) DPReviewOption {
	return func(d *DPReview) {
		if strings.TrimSpace(endpoint) != "" {
			d.dataURL = endpoint
		}
	}
}

// NewDPReview constructs the dpreview adapter.
func NewDPReview(timeout time.Duration, opts ...DPReviewOption) *DPReview {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &DPReview{
		httpClient: &http.Client{Timeout: timeout},
		dataURL:    dpreviewDataURL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DPReview) ID() string { return dpreviewID }

func (d *DPReview) Domain() string { return dpreviewDomain }

// Match accepts /sample-galleries/<numeric id>[/...].
func (d *DPReview) Match(u *url.URL) (string, bool) {
	segments := strings.Split(u.EscapedPath(), "/")
	if len(segments) > 2 && segments[1] == "sample-galleries" && numericSegment.MatchString(segments[2]) {
		return "galleryId=" + segments[2], true
	}
	return "", false
}

type dpreviewResponse struct {
	Gallery struct {
		Title string `json:"title"`
	} `json:"gallery"`
	Images []struct {
		ID     json.Number `json:"id"`
		URL    string      `json:"url"`
		RawURL string      `json:"rawUrl"`
	} `json:"images"`
}

// Resolve fetches the gallery JSON. Every image yields <id>.jpg and, when a
// raw file is offered, <id><raw extension>.
func (d *DPReview) Resolve(ctx context.Context, u *url.URL) (Gallery, error) {
	key, ok := d.Match(u)
	if !ok {
		return Gallery{}, fmt.Errorf("%w: %s", ErrInvalidURL, u)
	}
	galleryID := strings.TrimPrefix(key, "galleryId=")

	endpoint, err := url.Parse(d.dataURL)
	if err != nil {
		return Gallery{}, fmt.Errorf("dpreview data url: %w", err)
	}
	query := endpoint.Query()
	query.Set("galleryId", galleryID)
	query.Set("isMobile", strconv.FormatBool(false))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Gallery{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", u.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Gallery{}, fmt.Errorf("fetch gallery %s: %w", galleryID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Gallery{}, fmt.Errorf("fetch gallery %s: http %d: %s", galleryID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload dpreviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Gallery{}, fmt.Errorf("decode gallery %s: %w", galleryID, err)
	}

	gallery := Gallery{Title: strings.TrimSpace(payload.Gallery.Title), CanonicalURL: u.String()}
	for _, image := range payload.Images {
		id := image.ID.String()
		if image.URL != "" {
			gallery.Images = append(gallery.Images, queue.Item{Name: id + ".jpg", URL: image.URL})
		}
		if image.RawURL != "" {
			gallery.Images = append(gallery.Images, queue.Item{Name: id + rawExtension(image.RawURL), URL: image.RawURL})
		}
	}
	return gallery, nil
}

func rawExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return path.Ext(rawURL)
	}
	return path.Ext(path.Base(parsed.Path))
}
