package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/restoration-forms/internal/usecase"
)

const (
	snapshotPrefix   = "answers:"
	generationPrefix = "answers-gen:"
)

// AnswerGateway stores collected answer snapshots in memcached.
//
// Snapshot keys hash the form id together with a generation counter per entity, so bumping an
// entity's generation orphans every snapshot that read it, whatever form it was collected for.
// Counters start at a random value: an evicted counter is reseeded instead of falling back to a
// value an older snapshot was stored under.
type AnswerGateway struct {
	client *memcache.Client
	ttl    int32
}

var _ usecase.AnswerCache = (*AnswerGateway)(nil)

func NewAnswerGateway(client *memcache.Client, ttlSeconds int32) *AnswerGateway {
	return &AnswerGateway{client: client, ttl: ttlSeconds}
}

func seed() []byte {
	return []byte(strconv.FormatUint(uint64(rand.Uint32()), 10))
}

// generation reads the counter of one entity, seeding it when memcached has none.
func (g *AnswerGateway) generation(entity string) (string, error) {
	key := generationPrefix + entity
	value := seed()
	err := g.client.Add(&memcache.Item{Key: key, Value: value})
	if err == nil {
		return string(value), nil
	}
	if !errors.Is(err, memcache.ErrNotStored) {
		return "", err
	}
	item, err := g.client.Get(key)
	if err != nil {
		return "", fmt.Errorf("read generation of %s: %w", entity, err)
	}
	return string(item.Value), nil
}

func (g *AnswerGateway) generations(entities []string) (map[string]string, error) {
	keys := make([]string, len(entities))
	for i, entity := range entities {
		keys[i] = generationPrefix + entity
	}
	items, err := g.client.GetMulti(keys)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(entities))
	for _, entity := range entities {
		if item, ok := items[generationPrefix+entity]; ok {
			result[entity] = string(item.Value)
			continue
		}
		gen, err := g.generation(entity)
		if err != nil {
			return nil, err
		}
		result[entity] = gen
	}
	return result, nil
}

func (g *AnswerGateway) key(form string, entities []string) (string, error) {
	sorted := slices.Clone(entities)
	slices.Sort(sorted)
	gens, err := g.generations(sorted)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(form)
	for _, entity := range sorted {
		b.WriteByte('|')
		b.WriteString(entity)
		b.WriteByte('@')
		b.WriteString(gens[entity])
	}
	return snapshotPrefix + strconv.FormatUint(xxh3.HashString(b.String()), 16), nil
}

// Get returns the snapshot for form over entities, or nil when none is cached, along with the
// version a fresh snapshot has to be stored under. The version is fixed here: a snapshot collected
// while a sync bumps the generations lands under a version no later Get reads.
func (g *AnswerGateway) Get(ctx context.Context, form string, entities []string) ([]byte, string, error) {
	key, err := g.key(form, entities)
	if err != nil {
		return nil, "", err
	}
	item, err := g.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, key, nil
	}
	if err != nil {
		return nil, "", err
	}
	return item.Value, key, nil
}

func (g *AnswerGateway) Set(ctx context.Context, version string, snapshot []byte) error {
	if !strings.HasPrefix(version, snapshotPrefix) {
		return fmt.Errorf("not a snapshot version: %q", version)
	}
	return g.client.Set(&memcache.Item{Key: version, Value: snapshot, Expiration: g.ttl})
}

// Invalidate bumps the generation of every entity.
func (g *AnswerGateway) Invalidate(ctx context.Context, entities []string) error {
	for _, entity := range entities {
		key := generationPrefix + entity
		_, err := g.client.Increment(key, 1)
		if errors.Is(err, memcache.ErrCacheMiss) {
			err = g.client.Add(&memcache.Item{Key: key, Value: seed()})
			if errors.Is(err, memcache.ErrNotStored) {
				_, err = g.client.Increment(key, 1)
			}
		}
		if err != nil {
			return fmt.Errorf("bump generation of %s: %w", entity, err)
		}
	}
	return nil
}
