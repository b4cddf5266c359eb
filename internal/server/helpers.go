package server

import (
	"fmt"
	"strings"

	"github.com/vastra-ai/vastra/internal/chat"
)

// formatPrice renders the selling price, with the discount off MRP
// when one applies.
func formatPrice(metadata map[string]any) string {
	price, ok := asFloat(metadata["price"])
	if !ok {
		return "Price not available"
	}

	priceStr := chat.FormatPrice(price)

	if mrp, ok := asFloat(metadata["mrp"]); ok && mrp > price {
		discount := int((mrp - price) / mrp * 100)
		return fmt.Sprintf("%s (%d%% off)", priceStr, discount)
	}
	return priceStr
}

// extractKeyFeatures pulls a compact feature list from product
// metadata without assuming a fixed attribute set.
func extractKeyFeatures(metadata map[string]any) []string {
	var features []string

	if brand, ok := metadata["brand"].(string); ok && brand != "" {
		features = append(features, "Brand: "+titleWords(brand))
	}
	if stock, ok := metadata["stock_status"].(string); ok && stock != "" {
		features = append(features, "Stock: "+titleWords(strings.ReplaceAll(stock, "_", " ")))
	}

	for _, attr := range []string{"size", "age_group", "color", "occasion", "fit_type"} {
		val, ok := metadata[attr].(string)
		if !ok || val == "" {
			continue
		}
		label := titleWords(strings.ReplaceAll(attr, "_", " "))
		features = append(features, label+": "+titleWords(val))
	}

	// Keep the UI compact.
	if len(features) > 4 {
		features = features[:4]
	}
	return features
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
