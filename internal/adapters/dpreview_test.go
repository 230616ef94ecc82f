package adapters_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"galleria/internal/adapters"
)

func TestDPReviewMatch(t *testing.T) {
	d := adapters.NewDPReview(time.Second)
	tests := []struct {
		path string
		key  string
		ok   bool
	}{
		{"/sample-galleries/1234567890", "galleryId=1234567890", true},
		{"/sample-galleries/42/canon-eos-r5-sample-gallery", "galleryId=42", true},
		{"/sample-galleries/", "", false},
		{"/sample-galleries/abc", "", false},
		{"/reviews/42", "", false},
	}
	for _, tt := range tests {
		key, ok := d.Match(&url.URL{Path: tt.path})
		if ok != tt.ok || key != tt.key {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.path, key, ok, tt.key, tt.ok)
		}
	}
}

func TestDPReviewResolve(t *testing.T) {
	var gotQuery url.Values
	var gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"gallery": {"title": "Nikon Z8 sample gallery"},
			"images": [
				{"id": 101, "url": "https://1.img-dpreview.com/files/p/E~101.jpg", "rawUrl": "https://1.img-dpreview.com/files/p/DSC_0101.NEF?v=2"},
				{"id": 102, "url": "https://1.img-dpreview.com/files/p/E~102.jpg"},
				{"id": 103, "rawUrl": "https://1.img-dpreview.com/files/p/DSC_0103.NEF"}
			]
		}`))
	}))
	defer server.Close()

	d := adapters.NewDPReview(time.Second, adapters.WithDataURL(server.URL+"/data/get-gallery"))
	page, _ := url.Parse("https://www.dpreview.com/sample-galleries/777/nikon-z8")

	gallery, err := d.Resolve(context.Background(), page)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if gotQuery.Get("galleryId") != "777" || gotQuery.Get("isMobile") != "false" {
		t.Fatalf("unexpected query: %v", gotQuery)
	}
	if gotReferer != page.String() {
		t.Fatalf("referer = %q", gotReferer)
	}
	if gallery.Title != "Nikon Z8 sample gallery" {
		t.Fatalf("title = %q", gallery.Title)
	}
	want := []string{"101.jpg", "101.NEF", "102.jpg", "103.NEF"}
	if len(gallery.Images) != len(want) {
		t.Fatalf("items = %+v", gallery.Images)
	}
	for i, name := range want {
		if gallery.Images[i].Name != name {
			t.Fatalf("item %d name = %q, want %q", i, gallery.Images[i].Name, name)
		}
	}
	if !strings.HasSuffix(gallery.Images[1].URL, "DSC_0101.NEF?v=2") {
		t.Fatalf("raw url altered: %q", gallery.Images[1].URL)
	}
}

func TestDPReviewResolveHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gallery missing", http.StatusNotFound)
	}))
	defer server.Close()

	d := adapters.NewDPReview(time.Second, adapters.WithDataURL(server.URL))
	page, _ := url.Parse("https://www.dpreview.com/sample-galleries/1")
	_, err := d.Resolve(context.Background(), page)
	if err == nil || !strings.Contains(err.Error(), "http 404") {
		t.Fatalf("Resolve = %v, want http 404 error", err)
	}
}
