package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgresStore connects to the catalog database.
func NewPostgresStore(ctx context.Context, dsn string, log *zap.Logger) (*PostgresStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

// NewPostgresStoreFromPool wraps an existing pool, for tests.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, log *zap.Logger) *PostgresStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{pool: pool, log: log}
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const productColumns = `p.product_id, p.title, COALESCE(p.brand, ''), COALESCE(p.product_type, ''),
	p.price, p.mrp, p.discount_percent, COALESCE(p.currency, 'INR'), COALESCE(p.stock_status, ''),
	(SELECT pi.image_url FROM product_images pi
	 WHERE pi.product_id = p.product_id AND pi.is_primary
	 ORDER BY pi.display_order LIMIT 1)`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ProductID, &p.Title, &p.Brand, &p.ProductType,
		&p.Price, &p.MRP, &p.DiscountPercent, &p.Currency, &p.StockStatus, &p.PrimaryImage)
	return p, err
}

type attributeDef struct {
	ID       int
	Name     string
	DataType string
}

// filterableAttributes loads the attributes a category allows in
// dynamic filters.
func (s *PostgresStore) filterableAttributes(ctx context.Context, categoryID int) (map[string]attributeDef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.attribute_id, a.name, a.data_type
		FROM category_attributes ca
		JOIN attribute_master a ON a.attribute_id = ca.attribute_id
		WHERE ca.category_id = $1 AND ca.is_filterable`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load category attributes: %w", err)
	}
	defer rows.Close()

	attrs := make(map[string]attributeDef)
	for rows.Next() {
		var def attributeDef
		if err := rows.Scan(&def.ID, &def.Name, &def.DataType); err != nil {
			return nil, fmt.Errorf("catalog: scan attribute: %w", err)
		}
		attrs[def.Name] = def
	}
	return attrs, rows.Err()
}

// queryBuilder accumulates WHERE clauses with positional args.
type queryBuilder struct {
	clauses []string
	args    []any
}

func (qb *queryBuilder) add(clause string, args ...any) {
	for _, arg := range args {
		qb.args = append(qb.args, arg)
		clause = strings.Replace(clause, "?", "$"+strconv.Itoa(len(qb.args)), 1)
	}
	qb.clauses = append(qb.clauses, clause)
}

func (qb *queryBuilder) where() string {
	if len(qb.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(qb.clauses, " AND ")
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 12
	}
	if len(params.Filters) > 0 && params.CategoryID == nil {
		return nil, fmt.Errorf("%w: category_id is required when using dynamic filters", ErrBadFilter)
	}

	qb := &queryBuilder{}
	if params.Brand != "" {
		qb.add("p.brand ILIKE ?", "%"+params.Brand+"%")
	}
	if params.StockStatus != "" {
		qb.add("p.stock_status = ?", params.StockStatus)
	}
	if params.CategoryID != nil {
		qb.add("p.category_id = ?", *params.CategoryID)
	}
	if params.MinPrice != nil {
		qb.add("p.price >= ?", *params.MinPrice)
	}
	if params.MaxPrice != nil {
		qb.add("p.price <= ?", *params.MaxPrice)
	}

	if len(params.Filters) > 0 {
		attrs, err := s.filterableAttributes(ctx, *params.CategoryID)
		if err != nil {
			return nil, err
		}
		if err := applyAttributeFilters(qb, params.Filters, attrs); err != nil {
			return nil, err
		}
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM products p" + qb.where()
	if err := s.pool.QueryRow(ctx, countSQL, qb.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("catalog: count products: %w", err)
	}

	order := orderClause(params.SortBy, params.SortOrder)
	offset := (params.Page - 1) * params.PageSize
	listSQL := fmt.Sprintf("SELECT %s FROM products p%s%s LIMIT %d OFFSET %d",
		productColumns, qb.where(), order, params.PageSize, offset)

	rows, err := s.pool.Query(ctx, listSQL, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, params.PageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}

	return &ListResult{
		Products: products,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, nil
}

func orderClause(sortBy, sortOrder string) string {
	col := "p.product_id"
	switch sortBy {
	case "price":
		col = "p.price"
	case "title":
		col = "p.title"
	}
	dir := "ASC"
	if strings.EqualFold(sortOrder, "desc") {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir
}

// applyAttributeFilters appends one EXISTS clause per dynamic filter.
// Unknown attribute names are ignored; wrong value shapes are
// ErrBadFilter.
func applyAttributeFilters(qb *queryBuilder, filters map[string]any, attrs map[string]attributeDef) error {
	for name, value := range filters {
		def, ok := attrs[name]
		if !ok || value == nil {
			continue
		}

		switch def.DataType {
		case TypeEnum:
			values, err := stringSlice(value)
			if err != nil {
				return fmt.Errorf("%w: attribute %q expects a list", ErrBadFilter, name)
			}
			lowered := make([]string, len(values))
			for i, v := range values {
				lowered[i] = strings.ToLower(v)
			}
			qb.add(`EXISTS (SELECT 1 FROM attribute_values av
				WHERE av.product_id = p.product_id AND av.attribute_id = ?
				AND LOWER(av.value_string) = ANY(?))`, def.ID, lowered)

		case TypeNumber:
			bounds, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: attribute %q expects min/max object", ErrBadFilter, name)
			}
			conds := []string{"av.product_id = p.product_id", "av.attribute_id = ?"}
			args := []any{def.ID}
			if minVal, ok := numeric(bounds["min"]); ok {
				conds = append(conds, "av.value_number >= ?")
				args = append(args, minVal)
			}
			if maxVal, ok := numeric(bounds["max"]); ok {
				conds = append(conds, "av.value_number <= ?")
				args = append(args, maxVal)
			}
			qb.add("EXISTS (SELECT 1 FROM attribute_values av WHERE "+strings.Join(conds, " AND ")+")", args...)

		case TypeBoolean:
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: attribute %q expects boolean", ErrBadFilter, name)
			}
			qb.add(`EXISTS (SELECT 1 FROM attribute_values av
				WHERE av.product_id = p.product_id AND av.attribute_id = ?
				AND av.value_boolean = ?)`, def.ID, b)

		case TypeString:
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: attribute %q expects string", ErrBadFilter, name)
			}
			qb.add(`EXISTS (SELECT 1 FROM attribute_values av
				WHERE av.product_id = p.product_id AND av.attribute_id = ?
				AND av.value_string ILIKE ?)`, def.ID, "%"+str+"%")
		}
	}
	return nil
}

func stringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("non-string item")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.New("not a list")
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, productID string) (*ProductDetail, error) {
	var detail ProductDetail
	err := s.pool.QueryRow(ctx, `
		SELECT `+productColumns+`, p.created_at, p.updated_at,
			c.id, c.name, c.parent_id, c.description
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.product_id = $1`, productID).Scan(
		&detail.ProductID, &detail.Title, &detail.Brand, &detail.ProductType,
		&detail.Price, &detail.MRP, &detail.DiscountPercent, &detail.Currency,
		&detail.StockStatus, &detail.PrimaryImage, &detail.CreatedAt, &detail.UpdatedAt,
		&detail.Category.ID, &detail.Category.Name, &detail.Category.ParentID, &detail.Category.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get product: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.attribute_id, a.name, a.data_type,
			av.value_string, av.value_number, av.value_boolean
		FROM attribute_values av
		JOIN attribute_master a ON a.attribute_id = av.attribute_id
		WHERE av.product_id = $1`, productID)
	if err != nil {
		return nil, fmt.Errorf("catalog: get attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attr        AttributeValue
			valueString *string
			valueNumber *float64
			valueBool   *bool
		)
		if err := rows.Scan(&attr.AttributeID, &attr.AttributeName, &attr.AttributeType,
			&valueString, &valueNumber, &valueBool); err != nil {
			return nil, fmt.Errorf("catalog: scan attribute value: %w", err)
		}
		switch {
		case valueString != nil:
			attr.Value = *valueString
		case valueNumber != nil:
			attr.Value = strconv.FormatFloat(*valueNumber, 'f', -1, 64)
		case valueBool != nil:
			attr.Value = strconv.FormatBool(*valueBool)
		}
		detail.Attributes = append(detail.Attributes, attr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: get attributes: %w", err)
	}

	imgRows, err := s.pool.Query(ctx, `
		SELECT image_url, is_primary, display_order
		FROM product_images
		WHERE product_id = $1
		ORDER BY is_primary DESC, display_order`, productID)
	if err != nil {
		return nil, fmt.Errorf("catalog: get images: %w", err)
	}
	defer imgRows.Close()

	for imgRows.Next() {
		var img Image
		if err := imgRows.Scan(&img.URL, &img.IsPrimary, &img.DisplayOrder); err != nil {
			return nil, fmt.Errorf("catalog: scan image: %w", err)
		}
		detail.Images = append(detail.Images, img)
	}
	return &detail, imgRows.Err()
}

// GetBatch implements Store. Unknown IDs are skipped; result order
// follows the requested order.
func (s *PostgresStore) GetBatch(ctx context.Context, productIDs []string) ([]Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.product_id = ANY($1)", productIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog: batch get: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Product, len(productIDs))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		byID[p.ProductID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: batch get: %w", err)
	}

	products := make([]Product, 0, len(byID))
	for _, id := range productIDs {
		if p, ok := byID[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// Filters implements Store.
func (s *PostgresStore) Filters(ctx context.Context, categoryID int) (*FiltersResult, error) {
	var category Category
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, parent_id, description FROM categories WHERE id = $1", categoryID).
		Scan(&category.ID, &category.Name, &category.ParentID, &category.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get category: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.attribute_id, a.name, a.data_type, ca.is_required
		FROM category_attributes ca
		JOIN attribute_master a ON a.attribute_id = ca.attribute_id
		WHERE ca.category_id = $1 AND ca.is_filterable
		ORDER BY ca.display_order`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load filters: %w", err)
	}
	defer rows.Close()

	var configs []FilterConfig
	for rows.Next() {
		var cfg FilterConfig
		if err := rows.Scan(&cfg.AttributeID, &cfg.AttributeName, &cfg.DataType, &cfg.IsRequired); err != nil {
			return nil, fmt.Errorf("catalog: scan filter: %w", err)
		}
		cfg.DisplayName = DisplayName(cfg.AttributeName)
		cfg.FilterType = FilterTypeFor(cfg.DataType)
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load filters: %w", err)
	}

	for i := range configs {
		switch configs[i].DataType {
		case TypeEnum:
			if err := s.loadEnumOptions(ctx, &configs[i]); err != nil {
				return nil, err
			}
		case TypeNumber:
			if err := s.loadNumberBounds(ctx, &configs[i]); err != nil {
				return nil, err
			}
		}
	}

	return &FiltersResult{Category: category, Filters: configs}, nil
}

func (s *PostgresStore) loadEnumOptions(ctx context.Context, cfg *FilterConfig) error {
	rows, err := s.pool.Query(ctx, `
		SELECT ao.option_value, COUNT(av.product_id)
		FROM attribute_options ao
		LEFT JOIN attribute_values av
			ON av.attribute_id = ao.attribute_id AND av.value_string = ao.option_value
		WHERE ao.attribute_id = $1
		GROUP BY ao.option_value, ao.display_order
		ORDER BY ao.display_order, ao.option_value`, cfg.AttributeID)
	if err != nil {
		return fmt.Errorf("catalog: load enum options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opt FilterOption
		if err := rows.Scan(&opt.Value, &opt.Count); err != nil {
			return fmt.Errorf("catalog: scan enum option: %w", err)
		}
		opt.Label = optionLabel(opt.Value)
		cfg.Options = append(cfg.Options, opt)
	}
	return rows.Err()
}

func (s *PostgresStore) loadNumberBounds(ctx context.Context, cfg *FilterConfig) error {
	var minVal, maxVal *float64
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(value_number), MAX(value_number)
		FROM attribute_values
		WHERE attribute_id = $1 AND value_number IS NOT NULL`, cfg.AttributeID).
		Scan(&minVal, &maxVal)
	if err != nil {
		return fmt.Errorf("catalog: load number bounds: %w", err)
	}
	cfg.MinValue = minVal
	cfg.MaxValue = maxVal
	return nil
}

func optionLabel(value string) string {
	words := strings.Fields(value)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Categories implements Store.
func (s *PostgresStore) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, parent_id, description FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.Description); err != nil {
			return nil, fmt.Errorf("catalog: scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
