package site

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// QueryPlaceholder marks where the escaped variant goes in a URL template.
const QueryPlaceholder = "{query}"

// DefaultReviewSelector matches review nodes inside a listing container.
const DefaultReviewSelector = ".review"

var (
	// ErrInvalidDescriptor is returned when a descriptor lacks a required field.
	ErrInvalidDescriptor = errors.New("invalid site descriptor")
	// ErrDuplicateSite is returned when two descriptors share an ID.
	ErrDuplicateSite = errors.New("duplicate site id")
)

// Descriptor holds the search URL and extraction selectors of one supplier.
// It is pure configuration: a supplier is added by adding a Descriptor.
type Descriptor struct {
	ID          string `mapstructure:"id"`
	URLTemplate string `mapstructure:"url_template"`
	Listing     string `mapstructure:"listing"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Review      string `mapstructure:"review"`
}

// Validate reports whether the descriptor can be used for extraction.
func (d Descriptor) Validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidDescriptor)
	case d.URLTemplate == "":
		return fmt.Errorf("%w: %s: missing url_template", ErrInvalidDescriptor, d.ID)
	case !strings.Contains(d.URLTemplate, QueryPlaceholder):
		return fmt.Errorf("%w: %s: url_template has no %s placeholder", ErrInvalidDescriptor, d.ID, QueryPlaceholder)
	case d.Listing == "":
		return fmt.Errorf("%w: %s: missing listing selector", ErrInvalidDescriptor, d.ID)
	}
	return nil
}

// SearchURL substitutes the query-escaped variant into the URL template.
func (d Descriptor) SearchURL(variant string) string {
	return strings.ReplaceAll(d.URLTemplate, QueryPlaceholder, url.QueryEscape(variant))
}

// Defaults returns the built-in supplier table in fetch order.
func Defaults() []Descriptor {
	return []Descriptor{
		{
			ID:          "motrparts",
			URLTemplate: "https://www.motrparts.com/?s={query}&post_type=product",
			Listing:     "li.product",
			Name:        "h2.woocommerce-loop-product__title",
			Description: "span.price",
			Review:      DefaultReviewSelector,
		},
		{
			ID:          "partfinder",
			URLTemplate: "https://www.partfinder.in/search?q={query}",
			Listing:     ".product-card",
			Name:        ".product-title",
			Description: ".product-description",
			Review:      DefaultReviewSelector,
		},
		{
			ID:          "carorbis",
			URLTemplate: "https://www.carorbis.com/tools-and-garage/?s={query}",
			Listing:     "li.product",
			Name:        "h2.woocommerce-loop-product__title",
			Description: "span.price",
			Review:      DefaultReviewSelector,
		},
	}
}
