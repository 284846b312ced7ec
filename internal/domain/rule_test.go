package domain

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRequest(t *testing.T, rawURL string, dest Destination) *Request {
	t.Helper()
	req, err := NewRequest(http.MethodGet, rawURL)
	require.NoError(t, err)
	req.Destination = dest
	return req
}

func TestMatcher_Matches(t *testing.T) {
	tests := []struct {
		name    string
		matcher Matcher
		url     string
		dest    Destination
		want    bool
	}{
		{"destination", ByDestination(DestinationImage), "https://a.example/x.png", DestinationImage, true},
		{"other destination", ByDestination(DestinationImage), "https://a.example/", DestinationDocument, false},
		{"path prefix", ByPathPrefix("/public/src/img/slider/"), "https://a.example/public/src/img/slider/1.jpg", DestinationNone, true},
		{"path prefix miss", ByPathPrefix("/public/src/img/slider/"), "https://a.example/public/src/img/1.png", DestinationNone, false},
		{"origin", ByOrigin("https://API.example.com/"), "https://api.example.com/slider", DestinationNone, true},
		{"origin with port", ByOrigin("https://api.example.com"), "https://api.example.com:8443/slider", DestinationNone, false},
		{"zero matcher", Matcher{}, "https://a.example/", DestinationNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.matcher.Matches(mustRequest(t, tt.url, tt.dest)))
		})
	}
}

func TestMatchRule_DefaultPolicyOrder(t *testing.T) {
	policy := DefaultPolicy("https://api.example.com", "https://bucket.s3.amazonaws.com")
	require.NoError(t, policy.Validate())

	tests := []struct {
		url  string
		dest Destination
		want string
	}{
		{"https://site.example/public/src/img/slider/2.jpg", DestinationImage, "slider-images"},
		{"https://api.example.com/slider", DestinationNone, "api-slider"},
		{"https://bucket.s3.amazonaws.com/truck.png", DestinationImage, "s3-images"},
		{"https://site.example/public/src/img/logo.png", DestinationImage, "images"},
		{"https://site.example/Terminos", DestinationDocument, "pages"},
	}
	for _, tt := range tests {
		rule, ok := MatchRule(policy.Rules, mustRequest(t, tt.url, tt.dest))
		require.True(t, ok, tt.url)
		assert.Equal(t, tt.want, rule.Name, tt.url)
	}

	_, ok := MatchRule(policy.Rules, mustRequest(t, "https://site.example/app.js", DestinationScript))
	assert.False(t, ok)
}

func TestRule_Cacheable(t *testing.T) {
	rule := Rule{Statuses: DefaultStatuses}
	assert.True(t, rule.Cacheable(StatusOpaque))
	assert.True(t, rule.Cacheable(http.StatusOK))
	assert.False(t, rule.Cacheable(http.StatusNotFound))
	assert.False(t, rule.Cacheable(http.StatusPartialContent))
}

func TestExpirationPolicy_Fresh(t *testing.T) {
	stored := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	policy := ExpirationPolicy{MaxAge: time.Hour}

	assert.True(t, policy.Fresh(stored, stored.Add(time.Hour)))
	assert.False(t, policy.Fresh(stored, stored.Add(time.Hour+time.Second)))
	assert.True(t, ExpirationPolicy{}.Fresh(stored, stored.Add(1000*time.Hour)))
}

func TestPolicy_Validate(t *testing.T) {
	base := func() *Policy { return DefaultPolicy("https://api.example.com", "https://bucket.example.com") }

	p := base()
	p.PrecacheName = ""
	assert.Error(t, p.Validate())

	p = base()
	p.Rules[0].Strategy = "network-first"
	assert.Error(t, p.Validate())

	p = base()
	p.Rules[1].Partition = ""
	assert.Error(t, p.Validate())

	p = base()
	p.Rules[2].Expiration.MaxEntries = -1
	assert.Error(t, p.Validate())

	assert.Equal(t, []string{DefaultPrecacheName}, base().Whitelist())
}
