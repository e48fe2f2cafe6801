package routing

import (
	"testing"
	"time"

	"openclaw/hub/pkg/storage"
)

func conn(id int64, service string, enabled, isDefault bool, updated time.Time) *storage.Connection {
	return &storage.Connection{
		ID: id, Name: service, Service: service,
		Enabled: enabled, IsDefault: isDefault, UpdatedAt: updated,
	}
}

func TestFamilyFor_Defaults(t *testing.T) {
	r := New(nil, nil)

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o", FamilyOpenAI},
		{"gpt-4o-mini", FamilyOpenAI},
		{"o1-preview", FamilyOpenAI},
		{"claude-sonnet-4", FamilyAnthropic},
		{"claude", FamilyAnthropic},
		{"qwen2.5:32b", FamilyOllama},
		{"local", FamilyOllama},
		{"mistral", FamilyOllama},
	}
	for _, tt := range tests {
		if got := r.FamilyFor(tt.model); got != tt.want {
			t.Errorf("FamilyFor(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestFamilyFor_CustomRulesLongestPrefixWins(t *testing.T) {
	r := New(map[string]string{
		"gpt-":     FamilyOpenAI,
		"gpt-oss":  FamilyOllama,
		"mistral-": FamilyOllama,
	}, nil)

	if got := r.FamilyFor("gpt-4o"); got != FamilyOpenAI {
		t.Errorf("gpt-4o routed to %q", got)
	}
	if got := r.FamilyFor("gpt-oss:20b"); got != FamilyOllama {
		t.Errorf("gpt-oss:20b routed to %q", got)
	}
	if got := r.FamilyFor("mistral-small"); got != FamilyOllama {
		t.Errorf("mistral-small routed to %q", got)
	}
}

func TestRoute_PriorityOrder(t *testing.T) {
	now := time.Now()
	conns := []*storage.Connection{
		conn(1, FamilyOpenAI, true, false, now.Add(-time.Hour)),
		conn(2, FamilyOpenAI, true, false, now), // most recently updated
		conn(3, FamilyOpenAI, false, true, now), // disabled, default flag ignored
	}

	r := New(nil, nil)
	chain := r.Route("gpt-4o", conns)
	if len(chain) != 1 || chain[0].ID != 2 {
		t.Fatalf("expected most-recently-updated connection, got %+v", chain)
	}

	// Default flag beats recency.
	conns = append(conns, conn(4, FamilyOpenAI, true, true, now.Add(-24*time.Hour)))
	chain = r.Route("gpt-4o", conns)
	if len(chain) != 1 || chain[0].ID != 4 {
		t.Fatalf("expected default-flagged connection, got %+v", chain)
	}
}

func TestRoute_TieBrokenByLowestID(t *testing.T) {
	same := time.Unix(1700000000, 0)
	conns := []*storage.Connection{
		conn(7, FamilyOllama, true, false, same),
		conn(3, FamilyOllama, true, false, same),
	}

	chain := New(nil, nil).Route("qwen2.5:32b", conns)
	if len(chain) != 1 || chain[0].ID != 3 {
		t.Fatalf("expected lowest id to win the tie, got %+v", chain)
	}
}

func TestRoute_FallbackChain(t *testing.T) {
	now := time.Now()
	conns := []*storage.Connection{
		conn(1, FamilyOpenAI, true, false, now),
		conn(2, FamilyOllama, true, false, now),
		conn(3, FamilyAnthropic, true, false, now),
	}

	r := New(nil, ParseFallbackRules("openai:ollama, anthropic:ollama"))

	chain := r.Route("gpt-4o", conns)
	if len(chain) != 2 || chain[0].Service != FamilyOpenAI || chain[1].Service != FamilyOllama {
		t.Fatalf("unexpected chain: %+v", chain)
	}

	// Rules whose source does not match the primary family are ignored.
	chain = r.Route("qwen2.5:32b", conns)
	if len(chain) != 1 || chain[0].Service != FamilyOllama {
		t.Fatalf("unexpected chain for local model: %+v", chain)
	}
}

func TestRoute_DisabledFallbackSkipped(t *testing.T) {
	now := time.Now()
	conns := []*storage.Connection{
		conn(1, FamilyOpenAI, true, false, now),
		conn(2, FamilyOllama, false, false, now),
	}

	r := New(nil, ParseFallbackRules("openai:ollama"))
	chain := r.Route("gpt-4o", conns)
	if len(chain) != 1 {
		t.Fatalf("disabled fallback should be skipped, got %+v", chain)
	}
}

func TestRoute_NoEnabledConnection(t *testing.T) {
	conns := []*storage.Connection{
		conn(1, FamilyOpenAI, false, false, time.Now()),
	}

	if chain := New(nil, nil).Route("gpt-4o", conns); chain != nil {
		t.Errorf("expected empty chain, got %+v", chain)
	}
}

func TestParseFallbackRules(t *testing.T) {
	rules := ParseFallbackRules("openai:ollama, anthropic:ollama, broken, ollama:ollama, :x")
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %v", rules)
	}
	if rules[0] != (FallbackRule{Src: "openai", Dst: "ollama"}) {
		t.Errorf("unexpected first rule: %+v", rules[0])
	}
}

func TestUpdate_SwapsRulesLive(t *testing.T) {
	r := New(nil, nil)
	if got := r.FamilyFor("mistral-7b"); got != FamilyOllama {
		t.Fatalf("unmatched model should route local, got %q", got)
	}

	r.Update(map[string]string{"mistral": FamilyOpenAI}, ParseFallbackRules("openai:ollama"))

	if got := r.FamilyFor("mistral-7b"); got != FamilyOpenAI {
		t.Errorf("updated rule not applied, got %q", got)
	}
	// Old defaults are gone entirely, not merged.
	if got := r.FamilyFor("gpt-4o"); got != FamilyOllama {
		t.Errorf("stale rule survived update, got %q", got)
	}

	now := time.Now()
	conns := []*storage.Connection{
		conn(1, FamilyOpenAI, true, false, now),
		conn(2, FamilyOllama, true, false, now),
	}
	if chain := r.Route("mistral-7b", conns); len(chain) != 2 {
		t.Errorf("updated fallback not applied, got %+v", chain)
	}
}
