package policy

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"assetgateway/internal/domain"
)

type policyConfig struct {
	PrecacheName string        `yaml:"precache_name"`
	RootURL      string        `yaml:"root_url,omitempty"`
	Manifest     []string      `yaml:"manifest"`
	Routes       []routeConfig `yaml:"routes"`
	Push         pushConfig    `yaml:"push"`
}

type routeConfig struct {
	Name       string           `yaml:"name"`
	Match      matchConfig      `yaml:"match"`
	Strategy   string           `yaml:"strategy"`
	CacheName  string           `yaml:"cache_name"`
	Statuses   []int            `yaml:"statuses,omitempty"`
	Expiration expirationConfig `yaml:"expiration"`
}

type matchConfig struct {
	Destination string `yaml:"destination,omitempty"`
	PathPrefix  string `yaml:"path_prefix,omitempty"`
	Origin      string `yaml:"origin,omitempty"`
}

type expirationConfig struct {
	MaxEntries int           `yaml:"max_entries,omitempty"`
	MaxAge     time.Duration `yaml:"max_age,omitempty"`
}

type pushConfig struct {
	Title string `yaml:"title,omitempty"`
	Icon  string `yaml:"icon,omitempty"`
	Badge string `yaml:"badge,omitempty"`
}

// loadConfigFile はYAMLファイルを読み込む. ファイルがなければ defaults で作成する
func loadConfigFile(path string, defaults *domain.Policy) (*policyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return createDefaultConfig(path, defaults)
		}
		return nil, errors.Wrap(err, "read policy")
	}

	var config policyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "parse policy")
	}
	return &config, nil
}

func createDefaultConfig(path string, defaults *domain.Policy) (*policyConfig, error) {
	config := fromPolicy(defaults)

	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, errors.Wrap(err, "encode default policy")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, errors.Wrap(err, "write default policy")
	}
	return config, nil
}

// prepare は設定データを正規化し, ドメインのポリシーに変換する
func (c *policyConfig) prepare() (*domain.Policy, error) {
	p := &domain.Policy{
		PrecacheName: strings.TrimSpace(c.PrecacheName),
		RootURL:      strings.TrimSpace(c.RootURL),
		Push: domain.PushDefaults{
			Title: c.Push.Title,
			Icon:  c.Push.Icon,
			Badge: c.Push.Badge,
		},
	}
	if p.RootURL == "" {
		p.RootURL = domain.DefaultRootURL
	}
	if p.Push.Title == "" {
		p.Push.Title = domain.DefaultPushTitle
	}
	if p.Push.Icon == "" {
		p.Push.Icon = domain.DefaultPushIcon
	}
	if p.Push.Badge == "" {
		p.Push.Badge = domain.DefaultPushIcon
	}

	for _, u := range c.Manifest {
		if u = strings.TrimSpace(u); u != "" {
			p.Manifest = append(p.Manifest, u)
		}
	}

	for i, rc := range c.Routes {
		matcher, err := rc.Match.matcher()
		if err != nil {
			return nil, errors.Wrapf(err, "route %d (%s)", i, rc.Name)
		}
		statuses := rc.Statuses
		if len(statuses) == 0 {
			statuses = domain.DefaultStatuses
		}
		p.Rules = append(p.Rules, domain.Rule{
			Name:      rc.Name,
			Matcher:   matcher,
			Strategy:  domain.Strategy(strings.ToLower(strings.TrimSpace(rc.Strategy))),
			Partition: strings.TrimSpace(rc.CacheName),
			Statuses:  statuses,
			Expiration: domain.ExpirationPolicy{
				MaxEntries: rc.Expiration.MaxEntries,
				MaxAge:     rc.Expiration.MaxAge,
			},
		})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// matcher は1つだけ指定された述語を返す
func (m matchConfig) matcher() (domain.Matcher, error) {
	var matchers []domain.Matcher
	if m.Destination != "" {
		matchers = append(matchers, domain.ByDestination(domain.Destination(strings.ToLower(m.Destination))))
	}
	if m.PathPrefix != "" {
		matchers = append(matchers, domain.ByPathPrefix(m.PathPrefix))
	}
	if m.Origin != "" {
		matchers = append(matchers, domain.ByOrigin(m.Origin))
	}
	if len(matchers) != 1 {
		return domain.Matcher{}, errors.Errorf("exactly one of destination, path_prefix, origin is required, got %d", len(matchers))
	}
	return matchers[0], nil
}

func fromPolicy(p *domain.Policy) *policyConfig {
	config := &policyConfig{
		PrecacheName: p.PrecacheName,
		RootURL:      p.RootURL,
		Manifest:     append([]string(nil), p.Manifest...),
		Push: pushConfig{
			Title: p.Push.Title,
			Icon:  p.Push.Icon,
			Badge: p.Push.Badge,
		},
	}
	for _, rule := range p.Rules {
		rc := routeConfig{
			Name:      rule.Name,
			Strategy:  string(rule.Strategy),
			CacheName: rule.Partition,
			Statuses:  append([]int(nil), rule.Statuses...),
			Expiration: expirationConfig{
				MaxEntries: rule.Expiration.MaxEntries,
				MaxAge:     rule.Expiration.MaxAge,
			},
		}
		switch rule.Matcher.Kind {
		case domain.MatchDestination:
			rc.Match.Destination = rule.Matcher.Value
		case domain.MatchPathPrefix:
			rc.Match.PathPrefix = rule.Matcher.Value
		case domain.MatchOrigin:
			rc.Match.Origin = rule.Matcher.Value
		}
		config.Routes = append(config.Routes, rc)
	}
	return config
}
