package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/wowdash/charlist/pkg/battlenet"
	"github.com/wowdash/charlist/pkg/raiderio"
)

type stubChar struct {
	Name  string
	Level int
	Realm string
}

func rosterBody(chars ...stubChar) string {
	type realm struct {
		Slug string `json:"slug"`
	}
	type character struct {
		Name  string `json:"name"`
		Level int    `json:"level"`
		Realm realm  `json:"realm"`
	}
	type account struct {
		Characters []character `json:"characters"`
	}

	acc := account{}
	for _, c := range chars {
		acc.Characters = append(acc.Characters, character{
			Name:  c.Name,
			Level: c.Level,
			Realm: realm{Slug: c.Realm},
		})
	}

	body, _ := json.Marshal(map[string]interface{}{
		"wow_accounts": []account{acc},
	})
	return string(body)
}

const encountersBody = `{
	"expansions": [
		{"expansion": {"id": 10}, "instances": [{"instance": {"name": "Old Raid"}}]},
		{"expansion": {"id": 503}, "instances": [{"instance": {"name": "Current Raid"}}]}
	]
}`

// upstreamStub fakes both Battle.net and Raider.IO and counts every
// enrichment request per character.
type upstreamStub struct {
	t          *testing.T
	roster     string
	rosterCode int

	mu              sync.Mutex
	enrichmentCalls map[string]int // "<kind> <name>" -> count

	failKeystoneFor map[string]bool
}

func newUpstreamStub(t *testing.T, roster string) *upstreamStub {
	return &upstreamStub{
		t:               t,
		roster:          roster,
		rosterCode:      http.StatusOK,
		enrichmentCalls: map[string]int{},
		failKeystoneFor: map[string]bool{},
	}
}

func (s *upstreamStub) record(kind, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrichmentCalls[kind+" "+name]++
}

func (s *upstreamStub) calls(kind, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrichmentCalls[kind+" "+name]
}

func (s *upstreamStub) totalEnrichmentCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.enrichmentCalls {
		total += n
	}
	return total
}

func (s *upstreamStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/profile/user/wow":
		if s.rosterCode != http.StatusOK {
			w.WriteHeader(s.rosterCode)
			return
		}
		fmt.Fprint(w, s.roster)

	case path == "/api/v1/characters/profile":
		name := r.URL.Query().Get("name")
		s.record("raiderio", name)
		fmt.Fprintf(w, `{"name":%q,"mythic_plus_weekly_highest_level_runs":[{"mythic_level":15}]}`, name)

	case strings.HasPrefix(path, "/profile/wow/character/"):
		parts := strings.Split(strings.TrimPrefix(path, "/profile/wow/character/"), "/")
		name := parts[1]
		suffix := strings.Join(parts[2:], "/")

		switch suffix {
		case "":
			s.record("profile", name)
			fmt.Fprintf(w, `{"name":%q,"equipped_item_level":450}`, name)
		case "equipment":
			s.record("equipment", name)
			fmt.Fprintf(w, `{"equipped_items":[]}`)
		case "mythic-keystone-profile":
			s.record("keystone", name)
			if s.failKeystoneFor[name] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(w, `{"current_mythic_rating":{"rating":2500}}`)
		case "encounters/raids":
			s.record("raids", name)
			fmt.Fprint(w, encountersBody)
		default:
			s.t.Errorf("unexpected character suffix %q", suffix)
			w.WriteHeader(http.StatusNotFound)
		}

	default:
		s.t.Errorf("unexpected path %q", path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestAggregator(serverURL string, opts ...Option) *Aggregator {
	bnet := battlenet.NewClient(battlenet.WithBaseURL(serverURL))
	rio := raiderio.NewClient("test-key", raiderio.WithBaseURL(serverURL))
	return NewAggregator(bnet, rio, opts...)
}

func TestPartialFailureIsolation(t *testing.T) {
	stub := newUpstreamStub(t, rosterBody(
		stubChar{"Alpha", 70, "realm-a"},
		stubChar{"Bravo", 70, "realm-a"},
		stubChar{"Charlie", 70, "realm-b"},
		stubChar{"Delta", 70, "realm-b"},
		stubChar{"Echo", 70, "realm-c"},
	))
	stub.failKeystoneFor["bravo"] = true
	stub.failKeystoneFor["delta"] = true

	server := httptest.NewServer(stub)
	defer server.Close()

	list, err := newTestAggregator(server.URL).List(context.Background(), battlenet.RegionEU, "token")
	if err != nil {
		t.Fatal(err)
	}

	if len(list.CharacterProfile) != 5 {
		t.Errorf("characterProfile: got %d entries, want 5", len(list.CharacterProfile))
	}
	if len(list.MythicKeystoneProfile) != 3 {
		t.Errorf("mythicKeystoneProfile: got %d entries, want 3", len(list.MythicKeystoneProfile))
	}
	for _, failed := range []string{"bravo-realm-a", "delta-realm-b"} {
		if _, ok := list.MythicKeystoneProfile[failed]; ok {
			t.Errorf("failed fetch for %q present in result", failed)
		}
	}
	if len(list.Raids) != 5 || len(list.CharacterEquipment) != 5 || len(list.RaiderIOProfile) != 5 {
		t.Errorf("other kinds affected by keystone failures: raids=%d equipment=%d raiderio=%d",
			len(list.Raids), len(list.CharacterEquipment), len(list.RaiderIOProfile))
	}
}

func TestOnlyMaxLevelCharactersAreEnriched(t *testing.T) {
	roster := rosterBody(
		stubChar{"Maxed", 70, "realm-a"},
		stubChar{"Almost", 69, "realm-a"},
		stubChar{"Maxtwo", 70, "realm-a"},
		stubChar{"Lowbie", 10, "realm-a"},
	)
	stub := newUpstreamStub(t, roster)
	server := httptest.NewServer(stub)
	defer server.Close()

	list, err := newTestAggregator(server.URL).List(context.Background(), battlenet.RegionEU, "token")
	if err != nil {
		t.Fatal(err)
	}

	for _, kind := range []string{"profile", "equipment", "keystone", "raids", "raiderio"} {
		for _, name := range []string{"maxed", "maxtwo"} {
			if stub.calls(kind, name) != 1 {
				t.Errorf("%s %s: got %d calls, want 1", kind, name, stub.calls(kind, name))
			}
		}
		for _, name := range []string{"almost", "lowbie"} {
			if stub.calls(kind, name) != 0 {
				t.Errorf("%s %s: got %d calls, want 0", kind, name, stub.calls(kind, name))
			}
		}
	}

	// non-eligible characters still appear in the base roster
	if string(list.Profile) != roster {
		t.Errorf("profile must be passed through unmodified")
	}
}

func TestEmptyRegion(t *testing.T) {
	stub := newUpstreamStub(t, "")
	stub.rosterCode = http.StatusNotFound
	server := httptest.NewServer(stub)
	defer server.Close()

	list, err := newTestAggregator(server.URL).List(context.Background(), battlenet.RegionEU, "token")
	if err != nil {
		t.Fatal(err)
	}

	var profile struct {
		WowAccounts []interface{} `json:"wow_accounts"`
	}
	if err := json.Unmarshal(list.Profile, &profile); err != nil {
		t.Fatal(err)
	}
	if len(profile.WowAccounts) != 0 {
		t.Errorf("expected empty roster, got %s", list.Profile)
	}
	if stub.totalEnrichmentCalls() != 0 {
		t.Errorf("expected no enrichment fetches, got %d", stub.totalEnrichmentCalls())
	}
}

func TestRejectedTokenPropagates(t *testing.T) {
	stub := newUpstreamStub(t, "")
	stub.rosterCode = http.StatusUnauthorized
	server := httptest.NewServer(stub)
	defer server.Close()

	_, err := newTestAggregator(server.URL).List(context.Background(), battlenet.RegionEU, "token")
	if !errors.Is(err, battlenet.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRosterFailureFailsRequest(t *testing.T) {
	stub := newUpstreamStub(t, "")
	stub.rosterCode = http.StatusBadGateway
	server := httptest.NewServer(stub)
	defer server.Close()

	_, err := newTestAggregator(server.URL).List(context.Background(), battlenet.RegionEU, "token")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSingleCharacterScenario(t *testing.T) {
	stub := newUpstreamStub(t, rosterBody(stubChar{"Foo", 70, "bar"}))
	server := httptest.NewServer(stub)
	defer server.Close()

	list, err := newTestAggregator(server.URL).List(context.Background(), battlenet.RegionEU, "token")
	if err != nil {
		t.Fatal(err)
	}

	const key = "foo-bar"

	maps := map[string]map[string]json.RawMessage{
		"raids":                 list.Raids,
		"characterProfile":      list.CharacterProfile,
		"characterEquipment":    list.CharacterEquipment,
		"mythicKeystoneProfile": list.MythicKeystoneProfile,
		"raiderIOProfile":       list.RaiderIOProfile,
	}

	for kind, m := range maps {
		payload, ok := m[key]
		if !ok {
			t.Errorf("%s missing entry for %q, got keys %v", kind, key, keysOf(m))
			continue
		}
		if len(payload) == 0 {
			t.Errorf("%s entry for %q is empty", kind, key)
		}
	}

	// raids must be narrowed to the current expansion's instances
	var instances []struct {
		Instance struct {
			Name string `json:"name"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(list.Raids[key], &instances); err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0].Instance.Name != "Current Raid" {
		t.Errorf("raids not filtered to current expansion: %s", list.Raids[key])
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
