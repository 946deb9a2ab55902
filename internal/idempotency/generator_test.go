package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Deterministic(t *testing.T) {
	g := NewGenerator()

	params := map[string]interface{}{
		"customer_id":       "cus_123",
		"price_id":          "price_ABC",
		"payment_method_id": "pm_XYZ",
	}

	first := g.GenerateKey(ScopeSubscription, params)
	second := g.GenerateKey(ScopeSubscription, params)
	assert.Equal(t, first, second)
}

func TestGenerator_OrderInsensitive(t *testing.T) {
	g := NewGenerator()

	a := g.GenerateKey(ScopeSubscription, map[string]interface{}{
		"customer_id": "cus_123",
		"price_id":    "price_ABC",
	})
	b := g.GenerateKey(ScopeSubscription, map[string]interface{}{
		"price_id":    "price_ABC",
		"customer_id": "cus_123",
	})
	assert.Equal(t, a, b)
}

func TestGenerator_DifferentInputsDiffer(t *testing.T) {
	g := NewGenerator()

	base := g.GenerateKey(ScopeSubscription, map[string]interface{}{
		"customer_id": "cus_123",
	})
	other := g.GenerateKey(ScopeSubscription, map[string]interface{}{
		"customer_id": "cus_456",
	})
	assert.NotEqual(t, base, other)
}

func TestGenerator_ScopesNeverCollide(t *testing.T) {
	g := NewGenerator()

	params := map[string]interface{}{"customer_id": "cus_123"}
	assert.NotEqual(t,
		g.GenerateKey(ScopeSubscription, params),
		g.GenerateKey(ScopeSubscriptionSchedule, params),
	)
}
