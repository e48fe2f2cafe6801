// Package routing decides which provider family serves a model name and
// builds the ordered connection chain the executor walks. The router holds
// parsed rules behind an atomic pointer so config reloads can swap them
// under concurrent requests.
package routing

import (
	"sort"
	"strings"
	"sync/atomic"

	"openclaw/hub/pkg/storage"
)

// Provider family keys.
const (
	FamilyOpenAI    = "openai"
	FamilyAnthropic = "anthropic"
	FamilyOllama    = "ollama"
)

// DefaultRules is the built-in model-prefix map. Anything unmatched routes
// to the local family.
func DefaultRules() map[string]string {
	return map[string]string{
		"gpt-":   FamilyOpenAI,
		"o1-":    FamilyOpenAI,
		"claude": FamilyAnthropic,
	}
}

// FallbackRule routes requests from one family to another when the source
// family's providers are exhausted.
type FallbackRule struct {
	Src string
	Dst string
}

// ParseFallbackRules parses "src:dst,src:dst". Malformed pairs are
// skipped; config validation rejects them earlier.
func ParseFallbackRules(s string) []FallbackRule {
	var rules []FallbackRule
	for _, pair := range strings.Split(s, ",") {
		src, dst, ok := strings.Cut(pair, ":")
		src, dst = strings.TrimSpace(src), strings.TrimSpace(dst)
		if !ok || src == "" || dst == "" || src == dst {
			continue
		}
		rules = append(rules, FallbackRule{Src: src, Dst: dst})
	}
	return rules
}

// Router maps model names to families and connections to chains.
type Router struct {
	rules atomic.Pointer[ruleset]
}

// ruleset is one immutable parsed configuration.
type ruleset struct {
	// prefixes are checked longest-first so "gpt-4o-audio" style overrides
	// can coexist with the short defaults.
	prefixes  []string
	families  map[string]string
	fallbacks []FallbackRule
}

// New creates a router. Empty rules fall back to DefaultRules.
func New(rules map[string]string, fallbacks []FallbackRule) *Router {
	r := &Router{}
	r.Update(rules, fallbacks)
	return r
}

// Update atomically replaces the routing and fallback rules. In-flight
// requests finish on the ruleset they started with.
func (r *Router) Update(rules map[string]string, fallbacks []FallbackRule) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	prefixes := make([]string, 0, len(rules))
	for p := range rules {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	r.rules.Store(&ruleset{prefixes: prefixes, families: rules, fallbacks: fallbacks})
}

// FamilyFor resolves a model name to its provider family. Unmatched names
// route to the local family.
func (r *Router) FamilyFor(model string) string {
	rs := r.rules.Load()
	for _, p := range rs.prefixes {
		if strings.HasPrefix(model, p) {
			return rs.families[p]
		}
	}
	return FamilyOllama
}

// Route returns the ordered connection chain for a model: the best enabled
// connection of the model's family first, then the best connection of each
// fallback family whose rule matches. An empty chain means the family has
// no enabled connection, which the pipeline maps to
// "provider not configured".
func (r *Router) Route(model string, conns []*storage.Connection) []*storage.Connection {
	rs := r.rules.Load()
	family := r.FamilyFor(model)

	primary := best(conns, family)
	if primary == nil {
		return nil
	}

	chain := []*storage.Connection{primary}
	for _, rule := range rs.fallbacks {
		if rule.Src != family {
			continue
		}
		if fb := best(conns, rule.Dst); fb != nil && fb.ID != primary.ID {
			chain = append(chain, fb)
		}
	}
	return chain
}

// best selects the highest-priority enabled connection of a family:
// explicit default flag, then most recently updated, then lowest id.
func best(conns []*storage.Connection, family string) *storage.Connection {
	var pick *storage.Connection
	for _, c := range conns {
		if !c.Enabled || c.Service != family {
			continue
		}
		if pick == nil || higherPriority(c, pick) {
			pick = c
		}
	}
	return pick
}

func higherPriority(a, b *storage.Connection) bool {
	if a.IsDefault != b.IsDefault {
		return a.IsDefault
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}
