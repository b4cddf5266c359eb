// Package catalog serves the relational product catalog: listing with
// dynamic category-driven attribute filters, product detail, batch
// lookup, filter metadata, and the category tree.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Attribute data types supported by the dynamic attribute system.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeEnum    = "enum"
)

var (
	// ErrNotFound reports a missing product or category.
	ErrNotFound = errors.New("catalog: not found")
	// ErrBadFilter reports a malformed dynamic filter value.
	ErrBadFilter = errors.New("catalog: bad filter")
)

// Product is the list-view shape of a catalog entry.
type Product struct {
	ProductID       string   `json:"product_id"`
	Title           string   `json:"title"`
	Brand           string   `json:"brand,omitempty"`
	ProductType     string   `json:"product_type,omitempty"`
	Price           float64  `json:"price"`
	MRP             *float64 `json:"mrp,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	Currency        string   `json:"currency"`
	StockStatus     string   `json:"stock_status,omitempty"`
	PrimaryImage    *string  `json:"primary_image,omitempty"`
}

// Category is one node of the category hierarchy.
type Category struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	ParentID    *int    `json:"parent_id,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AttributeValue is one resolved attribute on a product detail view.
type AttributeValue struct {
	AttributeID   int    `json:"attribute_id"`
	AttributeName string `json:"attribute_name"`
	AttributeType string `json:"attribute_type"`
	Value         string `json:"value"`
}

// Image is one product image.
type Image struct {
	URL          string `json:"image_url"`
	IsPrimary    bool   `json:"is_primary"`
	DisplayOrder int    `json:"display_order"`
}

// ProductDetail is the full product view.
type ProductDetail struct {
	Product
	Category   Category         `json:"category"`
	Attributes []AttributeValue `json:"attributes"`
	Images     []Image          `json:"images"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ListParams selects and orders a page of products. Filters holds
// dynamic attribute filters keyed by attribute name: enum attributes
// take a []string, number attributes a {"min": x, "max": y} object,
// boolean attributes a bool, string attributes a substring.
type ListParams struct {
	Page        int
	PageSize    int
	Brand       string
	StockStatus string
	CategoryID  *int
	MinPrice    *float64
	MaxPrice    *float64
	Filters     map[string]any
	SortBy      string
	SortOrder   string
}

// ListResult is one page of products plus paging info.
type ListResult struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// FilterOption is one selectable enum value with its product count.
type FilterOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// FilterConfig describes one filterable attribute of a category.
type FilterConfig struct {
	AttributeID   int            `json:"attribute_id"`
	AttributeName string         `json:"attribute_name"`
	DisplayName   string         `json:"display_name"`
	DataType      string         `json:"data_type"`
	FilterType    string         `json:"filter_type"`
	IsRequired    bool           `json:"is_required"`
	Options       []FilterOption `json:"options,omitempty"`
	MinValue      *float64       `json:"min_value,omitempty"`
	MaxValue      *float64       `json:"max_value,omitempty"`
}

// FiltersResult is the filter metadata for one category.
type FiltersResult struct {
	Category Category       `json:"category"`
	Filters  []FilterConfig `json:"filters"`
}

// Store is the catalog query surface.
type Store interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, productID string) (*ProductDetail, error)
	GetBatch(ctx context.Context, productIDs []string) ([]Product, error)
	Filters(ctx context.Context, categoryID int) (*FiltersResult, error)
	Categories(ctx context.Context) ([]Category, error)
	Ping(ctx context.Context) error
	Close()
}

// FilterTypeFor maps an attribute data type to its UI filter widget.
func FilterTypeFor(dataType string) string {
	switch dataType {
	case TypeEnum:
		return "multi_select"
	case TypeNumber:
		return "range"
	case TypeBoolean:
		return "toggle"
	default:
		return "text"
	}
}

// DisplayName turns an attribute name into a label ("age_group" ->
// "Age Group").
func DisplayName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
