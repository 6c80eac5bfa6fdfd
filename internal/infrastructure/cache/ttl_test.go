package cache_test

import (
	"testing"
	"time"

	"catalog-backend/internal/infrastructure/cache"

	"github.com/stretchr/testify/assert"
)

func TestTTLPolicy_For(t *testing.T) {
	policy := cache.CategoryPolicy(5*time.Minute, cache.DefaultCategoryTTLs())

	tests := []struct {
		key  string
		want time.Duration
	}{
		{"/data/analytics.json", 30 * time.Second},
		{"/data/admin-config.json", time.Hour},
		{"/data/categories.json", 15 * time.Minute},
		{"products:all", 5 * time.Minute},
		{"products:featured", time.Minute},
		{"products:category:7", 5 * time.Minute},
		{"/data/unknown.json", 5 * time.Minute},
		{"", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.For(tt.key))
		})
	}
}

func TestTTLPolicy_Defaults(t *testing.T) {
	assert.Equal(t, cache.DefaultTTL, cache.TTLPolicy{}.For("anything"))
	assert.Equal(t, 42*time.Second, cache.FixedTTL(42*time.Second).For("/data/analytics.json"))
}

func TestTTLPolicy_CustomCategorizer(t *testing.T) {
	policy := cache.TTLPolicy{
		Default:    time.Minute,
		Categories: map[string]time.Duration{"hot": time.Second},
		Categorize: func(key string) string {
			if key == "trending" {
				return "hot"
			}
			return ""
		},
	}

	assert.Equal(t, time.Second, policy.For("trending"))
	assert.Equal(t, time.Minute, policy.For("cold"))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, "analytics", cache.CategoryOf("/var/data/analytics.json"))
	assert.Equal(t, "products", cache.CategoryOf("products:category:7"))
	assert.Equal(t, "admin-config", cache.CategoryOf("admin-config.json"))
}
