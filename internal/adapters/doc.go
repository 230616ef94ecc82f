// Package adapters recognizes gallery URLs and resolves them into queue
// requests.
//
// Identify runs without network access, so duplicate submissions are detected
// before any page is fetched; Resolve calls the adapter and enforces that a
// gallery has a title and at least one item. Request ids are SHA-1 UUIDs over
// the adapter id and the key the adapter extracted from the URL, so
// "https://dpreview.com/sample-galleries/123" and
// "https://www.dpreview.com/sample-galleries/123/some-title?x=1" collapse to
// one waiting-list entry.
package adapters
