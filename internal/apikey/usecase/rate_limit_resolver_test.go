package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/apikey/domain"
)

func TestRateLimitResolver_Resolve(t *testing.T) {
	configs := domain.DefaultTypeConfigs()
	configs[0].RateLimitPerMinute = 300
	configs[0].EnvironmentRateLimits = map[string]int{domain.EnvironmentLive: 600}

	catalog, err := domain.NewTypeCatalog(configs...)
	require.NoError(t, err)

	resolver := NewRateLimitResolver(catalog, RateLimitPolicy{
		GlobalPerMinute:     60,
		EnvironmentDefaults: map[string]int{domain.EnvironmentTest: 30},
	})

	tests := []struct {
		name      string
		token     *domain.Token
		wantLimit int
	}{
		{
			name: "Success_TokenOverrideWins",
			token: &domain.Token{
				Type:               domain.TypeSecret,
				Environment:        domain.EnvironmentLive,
				RateLimitPerMinute: intPtr(5),
			},
			wantLimit: 5,
		},
		{
			name:      "Success_TypeAndEnvironment",
			token:     &domain.Token{Type: domain.TypeSecret, Environment: domain.EnvironmentLive},
			wantLimit: 600,
		},
		{
			name:      "Success_Type",
			token:     &domain.Token{Type: domain.TypeSecret, Environment: domain.EnvironmentTest},
			wantLimit: 300,
		},
		{
			name:      "Success_Environment",
			token:     &domain.Token{Type: domain.TypePublishable, Environment: domain.EnvironmentTest},
			wantLimit: 30,
		},
		{
			name:      "Success_Global",
			token:     &domain.Token{Type: domain.TypePublishable, Environment: domain.EnvironmentLive},
			wantLimit: 60,
		},
		{
			name: "Success_NonPositiveOverrideIgnored",
			token: &domain.Token{
				Type:               domain.TypePublishable,
				Environment:        domain.EnvironmentLive,
				RateLimitPerMinute: intPtr(0),
			},
			wantLimit: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, ok := resolver.Resolve(tt.token)
			assert.True(t, ok)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}

	t.Run("Success_NoLimit", func(t *testing.T) {
		empty := NewRateLimitResolver(catalog, RateLimitPolicy{})
		_, ok := empty.Resolve(&domain.Token{Type: domain.TypePublishable, Environment: domain.EnvironmentLive})
		assert.False(t, ok)
	})
}
