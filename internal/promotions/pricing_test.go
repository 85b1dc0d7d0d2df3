package promotions

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestDiscountedPrice(t *testing.T) {
	cases := []struct {
		name  string
		price string
		kind  enums.DiscountType
		value string
		want  string
	}{
		{"quarter off", "100", enums.DiscountPercentage, "25", "75"},
		{"fixed below zero floors", "10", enums.DiscountFixedAmount, "15", "0"},
		{"fixed amount", "49.99", enums.DiscountFixedAmount, "5", "44.99"},
		{"rounds half away from zero", "10.05", enums.DiscountPercentage, "50", "5.03"},
		{"full percentage", "80", enums.DiscountPercentage, "100", "0"},
		{"over hundred percent floors", "80", enums.DiscountPercentage, "150", "0"},
		{"unknown type keeps price", "12.5", enums.DiscountType("Regalo"), "3", "12.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DiscountedPrice(d(tc.price), tc.kind, d(tc.value))
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestBatchFactor(t *testing.T) {
	assert.True(t, BatchFactor(d("25")).Equal(d("0.75")))
	assert.True(t, BatchFactor(d("89.5")).Equal(d("0.105")))
}

func TestDiscountedPriceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cents := gen.Int64Range(0, 10_000_000)

	properties.Property("percentage result stays within [0, price]", prop.ForAll(
		func(priceCents int64, pct int64) bool {
			price := decimal.New(priceCents, -2)
			got := DiscountedPrice(price, enums.DiscountPercentage, decimal.NewFromInt(pct))
			return !got.IsNegative() && got.LessThanOrEqual(price)
		},
		cents, gen.Int64Range(1, 200),
	))

	properties.Property("fixed amount equals max(0, price - value)", prop.ForAll(
		func(priceCents, valueCents int64) bool {
			price := decimal.New(priceCents, -2)
			value := decimal.New(valueCents, -2)
			want := decimal.Max(decimal.Zero, price.Sub(value))
			return DiscountedPrice(price, enums.DiscountFixedAmount, value).Equal(want)
		},
		cents, cents,
	))

	properties.Property("result has at most two decimal places", prop.ForAll(
		func(priceCents int64, pct int64) bool {
			got := DiscountedPrice(decimal.New(priceCents, -2), enums.DiscountPercentage, decimal.New(pct, -1))
			return got.Equal(got.Round(2))
		},
		cents, gen.Int64Range(1, 1000),
	))

	properties.TestingRun(t)
}

func TestParseProductIDs(t *testing.T) {
	a := "0f8fad5b-d9cb-469f-a165-70867728950e"
	b := "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	ids := parseProductIDs([]string{a, " " + b, "nope", a, "00000000-0000-0000-0000-000000000000"})
	if assert.Len(t, ids, 2) {
		assert.Equal(t, a, ids[0].String())
		assert.Equal(t, b, ids[1].String())
	}
}
