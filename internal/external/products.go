package external

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductSearcher is the catalog half of GiftCardProvider.
type ProductSearcher interface {
	SearchProducts(ctx context.Context, merchant string) ([]Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// ProductFinder resolves a merchant (and optionally a face value) to a
// concrete product. The provider's search endpoint is exact-match only, so
// the finder widens the search in steps: the merchant itself, the other
// merchants of its category, then the full listing filtered by name.
type ProductFinder struct {
	provider     ProductSearcher
	alternatives map[string][]string
	logger       *slog.Logger
}

// NewProductFinder creates a ProductFinder. alternatives maps a category
// ("supermarket") to the merchants that can stand in for each other.
func NewProductFinder(provider ProductSearcher, alternatives map[string][]string, logger *slog.Logger) *ProductFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductFinder{provider: provider, alternatives: alternatives, logger: logger}
}

// Search returns the products for merchant, widening the search when the
// exact merchant has none. An empty result is not an error.
func (f *ProductFinder) Search(ctx context.Context, merchant string) ([]Product, error) {
	products, err := f.provider.SearchProducts(ctx, merchant)
	if err != nil {
		return nil, err
	}
	if len(products) > 0 {
		return products, nil
	}

	for _, alt := range f.alternativesFor(merchant) {
		products, err := f.provider.SearchProducts(ctx, alt)
		if err != nil {
			f.logger.WarnContext(ctx, "alternative merchant search failed", "merchant", alt, "error", err)
			continue
		}
		if len(products) > 0 {
			f.logger.InfoContext(ctx, "using alternative merchant", "requested", merchant, "merchant", alt)
			return products, nil
		}
	}

	all, err := f.provider.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(merchant)
	var matched []Product
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Merchant), needle) || strings.Contains(strings.ToLower(p.Name), needle) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// Find picks one product for merchant. When amount is positive a product
// with that face value is preferred; otherwise the first result is used.
func (f *ProductFinder) Find(ctx context.Context, merchant string, amount decimal.Decimal) (Product, error) {
	products, err := f.Search(ctx, merchant)
	if err != nil {
		return Product{}, err
	}
	if len(products) == 0 {
		return Product{}, newProviderError(CodeProductNotFound, fmt.Sprintf("no products found for merchant %s", merchant), 0)
	}
	if amount.IsPositive() {
		for _, p := range products {
			if p.Matches(amount) {
				return p, nil
			}
		}
		f.logger.InfoContext(ctx, "no product matches amount, using first result",
			"merchant", merchant,
			"amount", amount.String(),
			"product_code", products[0].Code,
		)
	}
	return products[0], nil
}

// alternativesFor returns the other merchants sharing a category with
// merchant. merchant may also name the category itself.
func (f *ProductFinder) alternativesFor(merchant string) []string {
	seen := map[string]bool{strings.ToLower(merchant): true}
	var out []string
	add := func(names []string) {
		for _, n := range names {
			k := strings.ToLower(n)
			if !seen[k] {
				seen[k] = true
				out = append(out, n)
			}
		}
	}
	categories := make([]string, 0, len(f.alternatives))
	for c := range f.alternatives {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, category := range categories {
		names := f.alternatives[category]
		if strings.EqualFold(category, merchant) {
			add(names)
			continue
		}
		for _, n := range names {
			if strings.EqualFold(n, merchant) {
				add(names)
				break
			}
		}
	}
	return out
}
