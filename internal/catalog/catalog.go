// Package catalog reads the asset-bearing product records that justify
// warming the media caches. The storefront's own persistence is an opaque
// collaborator here: this package only ever reads from it.
package catalog

import "context"

// Record is one product with the media URL lists attached to it, either
// directly or nested under its variants.
type Record struct {
	ID        string    `json:"id"`
	VideoURLs []string  `json:"videoUrls,omitempty"`
	ImageURLs []string  `json:"imageUrls,omitempty"`
	Variants  []Variant `json:"variants,omitempty"`
}

// Variant is a sellable variation of a product carrying its own media.
type Variant struct {
	ID        string   `json:"id"`
	VideoURLs []string `json:"videoUrls,omitempty"`
	ImageURLs []string `json:"imageUrls,omitempty"`
}

// Source supplies the most recent active records, bounded by limit.
type Source interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}
