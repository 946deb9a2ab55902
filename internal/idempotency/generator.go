package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Scope namespaces idempotency keys so identical inputs for different
// operations never collide.
type Scope string

const (
	ScopeSubscription         Scope = "subscription"
	ScopeSubscriptionSchedule Scope = "subscription_schedule"
)

// Generator produces deterministic idempotency keys from a scope and a set
// of identifying parameters. The same scope and parameters always yield the
// same key, regardless of map iteration order, so a retried create call is
// deduplicated by the remote provider.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateKey builds the key as scope:sha256(sorted k=v pairs).
func (g *Generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, params[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(pairs, "|")))
	return fmt.Sprintf("%s:%s", scope, hex.EncodeToString(sum[:]))
}
