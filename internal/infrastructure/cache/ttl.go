package cache

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultTTL applies when neither the policy nor a category sets one.
const DefaultTTL = 5 * time.Minute

// DefaultCategoryTTLs returns the built-in TTL table. Fast-moving data gets a
// short TTL, configuration a long one.
func DefaultCategoryTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		"analytics":         30 * time.Second,
		"inquiries":         1 * time.Minute,
		"products":          5 * time.Minute,
		"products:featured": 1 * time.Minute,
		"categories":        15 * time.Minute,
		"admin-config":      1 * time.Hour,
	}
}

// TTLPolicy resolves the time-to-live of a key.
type TTLPolicy struct {
	// Default is used when no category matches. Zero means DefaultTTL.
	Default time.Duration

	// Categories maps category names to TTLs. Nested categories use ':'
	// as separator and fall back to their parent ("products:featured" then
	// "products").
	Categories map[string]time.Duration

	// Categorize overrides how a key is turned into a category name.
	Categorize func(key string) string
}

// FixedTTL returns a policy that applies d to every key.
func FixedTTL(d time.Duration) TTLPolicy {
	return TTLPolicy{Default: d}
}

// CategoryPolicy returns a policy using the given table and default.
func CategoryPolicy(def time.Duration, categories map[string]time.Duration) TTLPolicy {
	return TTLPolicy{Default: def, Categories: categories}
}

// For returns the TTL of key.
func (p TTLPolicy) For(key string) time.Duration {
	if len(p.Categories) > 0 {
		name := categoryName(key)
		if p.Categorize != nil {
			name = p.Categorize(key)
		}
		for name != "" {
			if d, ok := p.Categories[name]; ok && d > 0 {
				return d
			}
			i := strings.LastIndex(name, ":")
			if i < 0 {
				break
			}
			name = name[:i]
		}
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultTTL
}

// CategoryOf returns the top-level category of a key:
// "/data/analytics.json" is "analytics", "products:category:7" is "products".
func CategoryOf(key string) string {
	name := categoryName(key)
	if i := strings.Index(name, ":"); i >= 0 {
		return name[:i]
	}
	return name
}

func categoryName(key string) string {
	base := filepath.Base(key)
	if !strings.Contains(base, ":") {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}
