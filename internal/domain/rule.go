package domain

import (
	"fmt"
	"strings"
)

// MatcherKind はルール述語の種類.
type MatcherKind int

const (
	MatchDestination MatcherKind = iota + 1
	MatchPathPrefix
	MatchOrigin
)

func (k MatcherKind) String() string {
	switch k {
	case MatchDestination:
		return "destination"
	case MatchPathPrefix:
		return "path_prefix"
	case MatchOrigin:
		return "origin"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Matcher はリクエストに対する述語を表すタグ付きバリアント.
type Matcher struct {
	Kind  MatcherKind
	Value string
}

// ByDestination は宛先種別が kind に一致するリクエストにマッチする.
func ByDestination(kind Destination) Matcher {
	return Matcher{Kind: MatchDestination, Value: string(kind)}
}

// ByPathPrefix はURLパスが prefix で始まるリクエストにマッチする.
func ByPathPrefix(prefix string) Matcher {
	return Matcher{Kind: MatchPathPrefix, Value: prefix}
}

// ByOrigin はオリジンが origin に一致するリクエストにマッチする.
func ByOrigin(origin string) Matcher {
	return Matcher{Kind: MatchOrigin, Value: strings.ToLower(strings.TrimRight(origin, "/"))}
}

// Matches は述語を評価する.
func (m Matcher) Matches(req *Request) bool {
	switch m.Kind {
	case MatchDestination:
		return string(req.Destination) == m.Value
	case MatchPathPrefix:
		return strings.HasPrefix(req.URL.Path, m.Value)
	case MatchOrigin:
		return req.Origin() == m.Value
	default:
		return false
	}
}

func (m Matcher) String() string {
	return m.Kind.String() + "=" + m.Value
}

// Strategy はキャッシュ戦略.
type Strategy string

const (
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// Valid は既知の戦略かを返す.
func (s Strategy) Valid() bool {
	return s == StrategyCacheFirst || s == StrategyStaleWhileRevalidate
}

// Rule はルート規則を表す.
type Rule struct {
	Name       string
	Matcher    Matcher
	Strategy   Strategy
	Partition  string
	Statuses   []int
	Expiration ExpirationPolicy
}

// Cacheable はステータスコードがキャッシュ対象かを返す.
func (r Rule) Cacheable(status int) bool {
	for _, s := range r.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// MatchRule は宣言順にルールを評価し, 最初にマッチしたものを返す.
func MatchRule(rules []Rule, req *Request) (Rule, bool) {
	for _, rule := range rules {
		if rule.Matcher.Matches(req) {
			return rule, true
		}
	}
	return Rule{}, false
}
