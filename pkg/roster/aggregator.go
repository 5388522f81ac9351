// Package roster assembles the character list response. One roster fetch
// decides the request's fate; every enrichment fetch afterwards is
// best-effort and isolated per character and per kind.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wowdash/charlist/pkg/battlenet"
	"github.com/wowdash/charlist/pkg/raiderio"
)

// ErrUpstreamUnavailable means the mandatory roster fetch failed. Without
// a roster there is nothing to respond with.
var ErrUpstreamUnavailable = errors.New("roster: account profile unavailable")

const emptyProfile = `{"wow_accounts":[]}`

// CharacterList is the aggregated response. The enrichment maps are keyed
// by lower-cased name joined with the realm slug; a character missing from
// a map means that fetch failed and was dropped.
type CharacterList struct {
	Profile               json.RawMessage            `json:"profile"`
	Raids                 map[string]json.RawMessage `json:"raids"`
	CharacterProfile      map[string]json.RawMessage `json:"characterProfile"`
	CharacterEquipment    map[string]json.RawMessage `json:"characterEquipment"`
	MythicKeystoneProfile map[string]json.RawMessage `json:"mythicKeystoneProfile"`
	RaiderIOProfile       map[string]json.RawMessage `json:"raiderIOProfile"`
}

type Option func(*Aggregator)

// WithMaxLevel sets the character level required for enrichment.
func WithMaxLevel(level int) Option {
	return func(a *Aggregator) {
		a.maxLevel = level
	}
}

// WithExpansionID sets the expansion whose raid instances are reported.
func WithExpansionID(id int) Option {
	return func(a *Aggregator) {
		a.expansionID = id
	}
}

// WithFanoutLimit bounds the number of in-flight fetches per enrichment
// kind.
func WithFanoutLimit(limit int) Option {
	return func(a *Aggregator) {
		a.fanoutLimit = limit
	}
}

type Aggregator struct {
	bnet        *battlenet.Client
	rio         *raiderio.Client
	maxLevel    int
	expansionID int
	fanoutLimit int
}

func NewAggregator(bnet *battlenet.Client, rio *raiderio.Client, opts ...Option) *Aggregator {
	a := &Aggregator{
		bnet:        bnet,
		rio:         rio,
		maxLevel:    70,
		expansionID: 503,
		fanoutLimit: 8,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type characterRef struct {
	Name      string
	RealmSlug string
}

func (r characterRef) Key() string {
	return strings.ToLower(r.Name) + "-" + r.RealmSlug
}

// List fetches the region's roster and enriches every max-level character
// from the five upstream sources concurrently. Enrichment failures are
// logged and dropped from the result; only a failed roster fetch aborts
// the request.
func (a *Aggregator) List(ctx context.Context, region battlenet.Region, accessToken string) (*CharacterList, error) {
	profile, err := a.bnet.AccountProfile(ctx, region, accessToken)
	if errors.Is(err, battlenet.ErrNotFound) {
		// no characters in this region
		return emptyList(), nil
	}
	if errors.Is(err, battlenet.ErrUnauthorized) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	eligible, err := eligibleCharacters(profile, a.maxLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	list := &CharacterList{
		Profile: profile,
	}

	var wg sync.WaitGroup
	wg.Add(5)

	go func() {
		defer wg.Done()
		list.Raids = a.collect(ctx, "raids", eligible, func(ctx context.Context, ref characterRef) (json.RawMessage, error) {
			return a.fetchRaids(ctx, region, accessToken, ref)
		})
	}()
	go func() {
		defer wg.Done()
		list.CharacterProfile = a.collect(ctx, "characterProfile", eligible, func(ctx context.Context, ref characterRef) (json.RawMessage, error) {
			return a.bnet.CharacterProfile(ctx, region, accessToken, ref.RealmSlug, ref.Name)
		})
	}()
	go func() {
		defer wg.Done()
		list.CharacterEquipment = a.collect(ctx, "characterEquipment", eligible, func(ctx context.Context, ref characterRef) (json.RawMessage, error) {
			return a.bnet.CharacterEquipment(ctx, region, accessToken, ref.RealmSlug, ref.Name)
		})
	}()
	go func() {
		defer wg.Done()
		list.MythicKeystoneProfile = a.collect(ctx, "mythicKeystoneProfile", eligible, func(ctx context.Context, ref characterRef) (json.RawMessage, error) {
			return a.bnet.MythicKeystoneProfile(ctx, region, accessToken, ref.RealmSlug, ref.Name)
		})
	}()
	go func() {
		defer wg.Done()
		list.RaiderIOProfile = a.collect(ctx, "raiderIOProfile", eligible, func(ctx context.Context, ref characterRef) (json.RawMessage, error) {
			return a.rio.CharacterProfile(ctx, string(region), ref.RealmSlug, ref.Name)
		})
	}()

	wg.Wait()

	return list, nil
}

func emptyList() *CharacterList {
	return &CharacterList{
		Profile:               json.RawMessage(emptyProfile),
		Raids:                 map[string]json.RawMessage{},
		CharacterProfile:      map[string]json.RawMessage{},
		CharacterEquipment:    map[string]json.RawMessage{},
		MythicKeystoneProfile: map[string]json.RawMessage{},
		RaiderIOProfile:       map[string]json.RawMessage{},
	}
}

// eligibleCharacters extracts the characters that qualify for enrichment
// from the raw account profile.
func eligibleCharacters(profile json.RawMessage, maxLevel int) ([]characterRef, error) {
	var view struct {
		WowAccounts []struct {
			Characters []struct {
				Name  string `json:"name"`
				Level int    `json:"level"`
				Realm struct {
					Slug string `json:"slug"`
				} `json:"realm"`
			} `json:"characters"`
		} `json:"wow_accounts"`
	}

	if err := json.Unmarshal(profile, &view); err != nil {
		return nil, fmt.Errorf("malformed account profile: %w", err)
	}

	var refs []characterRef
	for _, account := range view.WowAccounts {
		for _, char := range account.Characters {
			if char.Level != maxLevel {
				continue
			}
			refs = append(refs, characterRef{
				Name:      char.Name,
				RealmSlug: char.Realm.Slug,
			})
		}
	}

	return refs, nil
}

type settledResult struct {
	key     string
	payload json.RawMessage
	err     error
}

// collect runs one fetch kind across all characters with bounded
// concurrency, waits for every fetch to settle, and folds the successes
// into a map. A failure never aborts the other fetches.
func (a *Aggregator) collect(ctx context.Context, kind string, refs []characterRef, fetch func(context.Context, characterRef) (json.RawMessage, error)) map[string]json.RawMessage {
	results := make([]settledResult, len(refs))

	g := new(errgroup.Group)
	g.SetLimit(a.fanoutLimit)

	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			payload, err := fetch(ctx, ref)
			results[i] = settledResult{key: ref.Key(), payload: payload, err: err}
			return nil
		})
	}

	// tasks never return errors, Wait only synchronizes
	_ = g.Wait()

	out := make(map[string]json.RawMessage, len(refs))
	for _, res := range results {
		if res.err != nil {
			slog.Error("enrichment fetch failed",
				"kind", kind,
				"character", res.key,
				"error", res.err,
			)
			continue
		}
		out[res.key] = res.payload
	}

	return out
}

// fetchRaids narrows the encounter document to the instances of the
// configured expansion.
func (a *Aggregator) fetchRaids(ctx context.Context, region battlenet.Region, accessToken string, ref characterRef) (json.RawMessage, error) {
	raw, err := a.bnet.RaidEncounters(ctx, region, accessToken, ref.RealmSlug, ref.Name)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Expansions []struct {
			Expansion struct {
				ID int `json:"id"`
			} `json:"expansion"`
			Instances json.RawMessage `json:"instances"`
		} `json:"expansions"`
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed encounters document: %w", err)
	}

	for _, expansion := range doc.Expansions {
		if expansion.Expansion.ID == a.expansionID {
			return expansion.Instances, nil
		}
	}

	return json.RawMessage("[]"), nil
}
