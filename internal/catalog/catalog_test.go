package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Age Group", DisplayName("age_group"))
	assert.Equal(t, "Color", DisplayName("color"))
	assert.Equal(t, "Skin Friendly", DisplayName("skin_friendly"))
}

func TestFilterTypeFor(t *testing.T) {
	assert.Equal(t, "multi_select", FilterTypeFor(TypeEnum))
	assert.Equal(t, "range", FilterTypeFor(TypeNumber))
	assert.Equal(t, "toggle", FilterTypeFor(TypeBoolean))
	assert.Equal(t, "text", FilterTypeFor(TypeString))
	assert.Equal(t, "text", FilterTypeFor("mystery"))
}

func TestQueryBuilderNumbersArgs(t *testing.T) {
	qb := &queryBuilder{}
	qb.add("p.brand ILIKE ?", "%acme%")
	qb.add("p.price >= ? AND p.price <= ?", 100.0, 500.0)

	assert.Equal(t, " WHERE p.brand ILIKE $1 AND p.price >= $2 AND p.price <= $3", qb.where())
	assert.Equal(t, []any{"%acme%", 100.0, 500.0}, qb.args)
}

func TestQueryBuilderEmpty(t *testing.T) {
	qb := &queryBuilder{}
	assert.Empty(t, qb.where())
}

func TestApplyAttributeFiltersEnum(t *testing.T) {
	qb := &queryBuilder{}
	attrs := map[string]attributeDef{
		"color": {ID: 7, Name: "color", DataType: TypeEnum},
	}

	err := applyAttributeFilters(qb, map[string]any{"color": []any{"Pink", "Peach"}}, attrs)
	require.NoError(t, err)
	require.Len(t, qb.clauses, 1)
	assert.Contains(t, qb.clauses[0], "EXISTS")
	assert.Contains(t, qb.clauses[0], "LOWER(av.value_string)")
	assert.Equal(t, []any{7, []string{"pink", "peach"}}, qb.args)
}

func TestApplyAttributeFiltersEnumWrongShape(t *testing.T) {
	qb := &queryBuilder{}
	attrs := map[string]attributeDef{
		"color": {ID: 7, Name: "color", DataType: TypeEnum},
	}

	err := applyAttributeFilters(qb, map[string]any{"color": "pink"}, attrs)
	assert.ErrorIs(t, err, ErrBadFilter)
}

func TestApplyAttributeFiltersNumberRange(t *testing.T) {
	qb := &queryBuilder{}
	attrs := map[string]attributeDef{
		"gsm": {ID: 3, Name: "gsm", DataType: TypeNumber},
	}

	err := applyAttributeFilters(qb, map[string]any{
		"gsm": map[string]any{"min": 120.0, "max": 180.0},
	}, attrs)
	require.NoError(t, err)
	require.Len(t, qb.clauses, 1)
	assert.Contains(t, qb.clauses[0], "value_number >=")
	assert.Contains(t, qb.clauses[0], "value_number <=")
	assert.Equal(t, []any{3, 120.0, 180.0}, qb.args)
}

func TestApplyAttributeFiltersBoolean(t *testing.T) {
	qb := &queryBuilder{}
	attrs := map[string]attributeDef{
		"skin_friendly": {ID: 9, Name: "skin_friendly", DataType: TypeBoolean},
	}

	err := applyAttributeFilters(qb, map[string]any{"skin_friendly": true}, attrs)
	require.NoError(t, err)
	assert.Equal(t, []any{9, true}, qb.args)

	err = applyAttributeFilters(&queryBuilder{}, map[string]any{"skin_friendly": "yes"}, attrs)
	assert.ErrorIs(t, err, ErrBadFilter)
}

func TestApplyAttributeFiltersIgnoresUnknown(t *testing.T) {
	qb := &queryBuilder{}
	err := applyAttributeFilters(qb, map[string]any{"mystery": "x"}, map[string]attributeDef{})
	require.NoError(t, err)
	assert.Empty(t, qb.clauses)
}
