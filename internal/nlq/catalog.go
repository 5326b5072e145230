package nlq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ColumnInfo is one (table, column, type) triple of the catalog.
type ColumnInfo struct {
	Table string
	Name  string
	Type  string
}

// Schema is the ordered catalog description handed to one session. It is read-only.
type Schema []ColumnInfo

type SchemaCatalog interface {
	Describe(ctx context.Context) (Schema, error)
}

// Tables returns table names in first-seen order.
func (s Schema) Tables() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, c := range s {
		if !seen[c.Table] {
			seen[c.Table] = true
			out = append(out, c.Table)
		}
	}
	return out
}

// Text returns a prompt-ready schema block, e.g.:
//
//	Table 'sales_data': Date (DATE), Amount (DOUBLE)
func (s Schema) Text() string {
	if len(s) == 0 {
		return "(no tables)"
	}
	var b strings.Builder
	for i, t := range s.Tables() {
		if i > 0 {
			b.WriteString("\n")
		}
		cols := []string{}
		for _, c := range s {
			if c.Table == t {
				cols = append(cols, fmt.Sprintf("%s (%s)", c.Name, c.Type))
			}
		}
		b.WriteString(fmt.Sprintf("Table '%s': %s\n", t, strings.Join(cols, ", ")))
	}
	return b.String()
}

func (s Schema) Hash() string {
	sum := sha256.Sum256([]byte(s.Text()))
	return hex.EncodeToString(sum[:])
}

// StaticCatalog serves a fixed schema.
type StaticCatalog Schema

func (c StaticCatalog) Describe(context.Context) (Schema, error) {
	return Schema(c), nil
}

const schemaCacheKey = "schema"

// CachedCatalog memoizes another catalog's description for a TTL so that
// concurrent sessions don't all hit Glue or the store.
type CachedCatalog struct {
	next  SchemaCatalog
	cache *ttlcache.Cache[string, Schema]
}

func NewCachedCatalog(next SchemaCatalog, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{
		next: next,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, Schema](ttl),
		),
	}
}

func (c *CachedCatalog) Describe(ctx context.Context) (Schema, error) {
	if item := c.cache.Get(schemaCacheKey); item != nil {
		return item.Value(), nil
	}
	s, err := c.next.Describe(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(schemaCacheKey, s, ttlcache.DefaultTTL)
	return s, nil
}

// Invalidate drops the cached schema, e.g. after new data is registered.
func (c *CachedCatalog) Invalidate() {
	c.cache.DeleteAll()
}
