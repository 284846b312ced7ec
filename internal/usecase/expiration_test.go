package usecase

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetgateway/internal/domain"
	"assetgateway/internal/interface/repository/cache"
)

func TestExpireEntries(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		policy  domain.ExpirationPolicy
		ages    []time.Duration
		removed []string
	}{
		{
			name:   "no limits",
			policy: domain.ExpirationPolicy{},
			ages:   []time.Duration{48 * time.Hour, time.Hour},
		},
		{
			name:    "max age",
			policy:  domain.ExpirationPolicy{MaxAge: 24 * time.Hour},
			ages:    []time.Duration{48 * time.Hour, 30 * time.Hour, time.Hour},
			removed: []string{"/0", "/1"},
		},
		{
			name:    "max entries",
			policy:  domain.ExpirationPolicy{MaxEntries: 1},
			ages:    []time.Duration{3 * time.Hour, 2 * time.Hour, time.Hour},
			removed: []string{"/0", "/1"},
		},
		{
			name:    "both",
			policy:  domain.ExpirationPolicy{MaxEntries: 2, MaxAge: 24 * time.Hour},
			ages:    []time.Duration{48 * time.Hour, 3 * time.Hour, 2 * time.Hour, time.Hour},
			removed: []string{"/0", "/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cache.New().Open(ctx, "test")
			require.NoError(t, err)

			var keys []string
			for i, age := range tt.ages {
				req := newRequest(t, siteOrigin+"/"+string(rune('0'+i)), domain.DestinationNone)
				keys = append(keys, req.Key())
				require.NoError(t, p.Put(ctx, req, &domain.Response{Status: http.StatusOK, Header: http.Header{}}, base.Add(-age)))
			}

			removed, err := ExpireEntries(ctx, p, tt.policy, base)
			require.NoError(t, err)

			var want []string
			for _, suffix := range tt.removed {
				want = append(want, "GET "+siteOrigin+suffix)
			}
			assert.Equal(t, want, removed)

			n, err := p.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, len(keys)-len(want), n)
		})
	}
}
