package auth

import (
	"fmt"
	"net/http"
	"path"
	"strings"
)

// Requirement says whether a path needs an authenticated principal.
type Requirement int

const (
	Public Requirement = iota
	Authenticated
)

func (r Requirement) String() string {
	if r == Authenticated {
		return "auth"
	}
	return "public"
}

// RejectMode selects how a rejected request on a protected path is answered.
type RejectMode int

const (
	// RejectJSON answers every rejection with a 401 JSON envelope.
	RejectJSON RejectMode = iota
	// RejectRedirect sends missing or expired tokens to the frontend login
	// page with a 303. Invalid tokens still get a 401 JSON envelope.
	RejectRedirect
)

// Rule maps a path pattern, optionally restricted to one method, to a requirement.
//
// Patterns are matched segment by segment: "*" matches exactly one segment and
// a trailing "**" matches the remainder of the path, including nothing.
type Rule struct {
	Pattern     string
	Method      string
	Requirement Requirement
	Reject      RejectMode
}

func (r Rule) String() string {
	if r.Method != "" {
		return r.Method + " " + r.Pattern
	}
	return r.Pattern
}

func (r Rule) matches(method string, segments []string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	return matchSegments(splitPath(r.Pattern), segments)
}

// AccessDecision is the outcome of classifying a request.
type AccessDecision struct {
	Required bool
	Rule     string
	Reject   RejectMode
}

// Rule names reported for decisions not produced by a configured rule.
const (
	RulePreflight = "preflight"
	RuleDefault   = "default"
)

// AccessPolicy is an ordered rule table. The first matching rule wins.
// It is immutable after construction.
type AccessPolicy struct {
	rules []Rule
	def   Requirement
}

// NewAccessPolicy validates rules and builds a policy. Requests matching no
// rule get def.
func NewAccessPolicy(rules []Rule, def Requirement) (*AccessPolicy, error) {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if err := validatePattern(r.Pattern); err != nil {
			return nil, err
		}
		r.Method = strings.ToUpper(r.Method)
		out = append(out, r)
	}
	return &AccessPolicy{rules: out, def: def}, nil
}

// Rules returns a copy of the configured rules in match order.
func (p *AccessPolicy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// Classify decides whether a request needs authentication. CORS preflights
// are always public.
func (p *AccessPolicy) Classify(method, urlPath string) AccessDecision {
	method = strings.ToUpper(method)
	if method == http.MethodOptions {
		return AccessDecision{Required: false, Rule: RulePreflight}
	}

	segments := splitPath(cleanPath(urlPath))
	for _, r := range p.rules {
		if r.matches(method, segments) {
			return AccessDecision{
				Required: r.Requirement == Authenticated,
				Rule:     r.String(),
				Reject:   r.Reject,
			}
		}
	}
	return AccessDecision{Required: p.def == Authenticated, Rule: RuleDefault}
}

// DefaultRules returns the storefront's rule table. Everything under
// /admin-api requires a principal; catalog, static, login and probe paths
// are public.
func DefaultRules() []Rule {
	public := func(pattern string) Rule { return Rule{Pattern: pattern, Requirement: Public} }
	return []Rule{
		public("/"),
		public("/products/**"),
		public("/save"),
		public("/users/register"),
		public("/css/**"),
		public("/style.css"),
		public("/auth/validate"),
		{Pattern: "/auth/login", Method: http.MethodPost, Requirement: Public},
		{Pattern: "/auth/logout", Method: http.MethodPost, Requirement: Public},
		public("/login/oauth2/**"),
		public("/oauth2/**"),
		public("/luxuryfashion/**"),
		public("/health/**"),
		public("/metrics"),
		{Pattern: "/admin-api/**", Requirement: Authenticated, Reject: RejectJSON},
	}
}

// ParseRules parses a rule list of the form
//
//	[METHOD ]pattern=public|auth[:redirect|:json]
//
// with entries separated by ";". Blank entries are ignored.
func ParseRules(spec string) ([]Rule, error) {
	var rules []Rule
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		lhs, rhs, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("access rule %q: missing '='", entry)
		}

		var r Rule
		fields := strings.Fields(lhs)
		switch len(fields) {
		case 1:
			r.Pattern = fields[0]
		case 2:
			r.Method, r.Pattern = strings.ToUpper(fields[0]), fields[1]
		default:
			return nil, fmt.Errorf("access rule %q: expected [METHOD] pattern", entry)
		}
		if err := validatePattern(r.Pattern); err != nil {
			return nil, err
		}

		req, mode, _ := strings.Cut(strings.ToLower(strings.TrimSpace(rhs)), ":")
		requirement, err := ParseRequirement(req)
		if err != nil {
			return nil, fmt.Errorf("access rule %q: %w", entry, err)
		}
		r.Requirement = requirement

		switch mode {
		case "", "json":
			r.Reject = RejectJSON
		case "redirect":
			r.Reject = RejectRedirect
		default:
			return nil, fmt.Errorf("access rule %q: unknown reject mode %q", entry, mode)
		}

		rules = append(rules, r)
	}
	return rules, nil
}

// ParseRequirement parses "public" or "auth".
func ParseRequirement(s string) (Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public", "permit":
		return Public, nil
	case "auth", "authenticated":
		return Authenticated, nil
	default:
		return Public, fmt.Errorf("unknown requirement %q", s)
	}
}

func validatePattern(pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("access rule pattern %q must start with '/'", pattern)
	}
	segs := splitPath(pattern)
	for i, s := range segs {
		if s == "**" && i != len(segs)-1 {
			return fmt.Errorf("access rule pattern %q: '**' is only allowed as the last segment", pattern)
		}
		if s != "*" && s != "**" && strings.Contains(s, "*") {
			return fmt.Errorf("access rule pattern %q: wildcards must span a whole segment", pattern)
		}
	}
	return nil
}

// cleanPath resolves dot segments so "/products/../admin-api/x" is classified
// as the path the router will actually serve.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segments []string) bool {
	for i, ps := range pattern {
		if ps == "**" {
			return true
		}
		if i >= len(segments) {
			return false
		}
		if ps != "*" && ps != segments[i] {
			return false
		}
	}
	return len(pattern) == len(segments)
}
