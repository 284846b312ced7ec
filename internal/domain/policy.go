package domain

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultPrecacheName = "my-cache-v1"
	DefaultPushTitle    = "Notificación Push"
	DefaultPushIcon     = "/assets/mudanzas.jpeg"
	DefaultRootURL      = "/"
)

// DefaultStatuses はキャッシュ対象のステータスコード (opaque と 200).
var DefaultStatuses = []int{StatusOpaque, 200}

// PushDefaults はプッシュ通知の既定値.
type PushDefaults struct {
	Title string
	Icon  string
	Badge string
}

// Policy はゲートウェイのキャッシュポリシー全体を表す.
type Policy struct {
	PrecacheName string
	Manifest     []string
	Rules        []Rule
	Push         PushDefaults
	RootURL      string
}

// Whitelist はアクティベーション時に残すパーティション名を返す.
func (p *Policy) Whitelist() []string {
	return []string{p.PrecacheName}
}

// Validate はポリシーの整合性を検証する.
func (p *Policy) Validate() error {
	if p.PrecacheName == "" {
		return errors.New("precache name is required")
	}
	for i, rule := range p.Rules {
		if !rule.Strategy.Valid() {
			return errors.Errorf("rule %d (%s): unknown strategy %q", i, rule.Name, rule.Strategy)
		}
		if rule.Partition == "" {
			return errors.Errorf("rule %d (%s): partition is required", i, rule.Name)
		}
		if rule.Matcher.Value == "" {
			return errors.Errorf("rule %d (%s): matcher value is required", i, rule.Name)
		}
		if rule.Expiration.MaxEntries < 0 || rule.Expiration.MaxAge < 0 {
			return errors.Errorf("rule %d (%s): expiration must not be negative", i, rule.Name)
		}
	}
	return nil
}

// DefaultPolicy はサイトの標準ポリシーを返す.
func DefaultPolicy(apiOrigin, objectStoreOrigin string) *Policy {
	const day = 24 * time.Hour
	return &Policy{
		PrecacheName: DefaultPrecacheName,
		Manifest: []string{
			"/",
			"/index.html",
			"/Terminos",
			"/Privacidad",
			"/InformacionM",
			"/InformacionP",
			"/InformacionVP",
			"/public/src/img/1.png",
			"/public/src/img/2.png",
			"/public/src/img/3.png",
			"/public/src/img/4.jpeg",
			"/public/src/img/logo.png",
			"/public/src/img/headerB.jpg",
			"/public/src/img/Guadalajara.jpg",
			"/public/src/img/Monterrey.jpeg",
			"/public/src/img/Queretaro.jpeg",
			"/public/src/img/Tampico.jpeg",
			"/public/src/img/Valles.jpg",
		},
		Rules: []Rule{
			{
				Name:       "slider-images",
				Matcher:    ByPathPrefix("/public/src/img/slider/"),
				Strategy:   StrategyCacheFirst,
				Partition:  "slider-images",
				Statuses:   DefaultStatuses,
				Expiration: ExpirationPolicy{MaxEntries: 10, MaxAge: 30 * day},
			},
			{
				Name:       "api-slider",
				Matcher:    ByOrigin(apiOrigin),
				Strategy:   StrategyStaleWhileRevalidate,
				Partition:  "api-slider-cache",
				Statuses:   DefaultStatuses,
				Expiration: ExpirationPolicy{MaxEntries: 50, MaxAge: 7 * day},
			},
			{
				Name:       "s3-images",
				Matcher:    ByOrigin(objectStoreOrigin),
				Strategy:   StrategyCacheFirst,
				Partition:  "s3-image-cache",
				Statuses:   DefaultStatuses,
				Expiration: ExpirationPolicy{MaxEntries: 100, MaxAge: 30 * day},
			},
			{
				Name:       "images",
				Matcher:    ByDestination(DestinationImage),
				Strategy:   StrategyStaleWhileRevalidate,
				Partition:  "image-cache",
				Statuses:   DefaultStatuses,
				Expiration: ExpirationPolicy{MaxEntries: 60, MaxAge: 30 * day},
			},
			{
				Name:       "pages",
				Matcher:    ByDestination(DestinationDocument),
				Strategy:   StrategyStaleWhileRevalidate,
				Partition:  "pages-cache",
				Statuses:   DefaultStatuses,
				Expiration: ExpirationPolicy{MaxEntries: 60, MaxAge: 30 * day},
			},
		},
		Push: PushDefaults{
			Title: DefaultPushTitle,
			Icon:  DefaultPushIcon,
			Badge: DefaultPushIcon,
		},
		RootURL: DefaultRootURL,
	}
}

// PolicyProvider は現在有効なポリシーを返す.
type PolicyProvider interface {
	Current() *Policy
}

// Current は固定ポリシーとして自身を返す.
func (p *Policy) Current() *Policy {
	return p
}
