// Package routing decides, per request, which upstream and model to use.
//
// DESIGN: The resolver fingerprints the request's system prompt and maps it
// through the agent registry. A registry hit is authoritative over the
// request's own model field. Everything else degrades to the default
// decision: primary provider, original model, OAuth credentials. The resolver
// itself never fails a request.
package routing

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/fstlabs/claude-gateway/internal/fingerprint"
	"github.com/fstlabs/claude-gateway/internal/registry"
)

// Upstream endpoints. Overridable via Options for tests and self-hosted
// gateways; the alias tables stay compiled-in (registry targets are the
// operator-facing surface, not model IDs).
const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1/messages"
	DefaultAlternateBaseURL = "https://api.z.ai/api/anthropic"
)

// AlternatePrefix marks registry targets routed to the alternate provider.
const AlternatePrefix = "zai-"

// primaryAliases maps bare quality-tier aliases to concrete model IDs on the
// primary provider.
var primaryAliases = map[string]string{
	"haiku":  "claude-3-5-haiku-20241022",
	"sonnet": "claude-sonnet-4-20250514",
	"opus":   "claude-opus-4-5-20251101",
}

// alternateAliases maps provider-prefixed aliases to the model IDs the
// alternate provider expects.
var alternateAliases = map[string]string{
	"zai-haiku":  "anthropic/claude-3-5-haiku-20241022",
	"zai-sonnet": "anthropic/claude-sonnet-4-20250514",
	"zai-opus":   "anthropic/claude-opus-4-5-20251101",
}

// Decision is the output of Resolve. Computed fresh per request and never
// cached: the registry and credential state can change between requests.
type Decision struct {
	BaseURL     string
	Model       string
	UseOAuth    bool   // primary-provider path with injected OAuth credentials
	APIKey      string // set only on the alternate-provider path
	Fingerprint string // empty when no prompt text was found
	RouteTarget string // registry target that matched, empty on miss
}

// Alternate reports whether the decision routes to the alternate provider.
func (d Decision) Alternate() bool { return d.APIKey != "" }

// URL returns the full upstream endpoint. The primary base URL already
// includes the messages path; the alternate provider exposes an
// Anthropic-compatible surface under its base.
func (d Decision) URL() string {
	if d.Alternate() {
		return d.BaseURL + "/v1/messages"
	}
	return d.BaseURL
}

// Options configures a Resolver.
type Options struct {
	AnthropicBaseURL string
	AlternateBaseURL string
	AlternateAPIKey  string
	// Extra alias entries merged over the compiled-in tables.
	Aliases          map[string]string
	AlternateAliases map[string]string
}

// Resolver maps request bodies to routing decisions.
type Resolver struct {
	registry  *registry.Registry
	opts      Options
	primary   map[string]string
	alternate map[string]string
}

// NewResolver creates a resolver over the given registry.
func NewResolver(reg *registry.Registry, opts Options) *Resolver {
	if opts.AnthropicBaseURL == "" {
		opts.AnthropicBaseURL = DefaultAnthropicBaseURL
	}
	if opts.AlternateBaseURL == "" {
		opts.AlternateBaseURL = DefaultAlternateBaseURL
	}
	return &Resolver{
		registry:  reg,
		opts:      opts,
		primary:   mergeAliases(primaryAliases, opts.Aliases),
		alternate: mergeAliases(alternateAliases, opts.AlternateAliases),
	}
}

func mergeAliases(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// Resolve decides the upstream, model, and credential source for a request
// body in Anthropic Messages format.
func (r *Resolver) Resolve(body []byte) Decision {
	doc := gjson.ParseBytes(body)
	originalModel := doc.Get("model").String()

	def := Decision{
		BaseURL:  r.opts.AnthropicBaseURL,
		Model:    originalModel,
		UseOAuth: true,
	}

	prompt := r.extractPrompt(doc)
	if prompt == "" || r.registry.Len() == 0 {
		return def
	}

	fp := fingerprint.Compute(prompt)
	def.Fingerprint = fp

	target, ok := r.registry.Get(fp)
	if !ok {
		log.Debug().Str("fingerprint", fp).Str("model", originalModel).Msg("routing: registry miss")
		return def
	}
	def.RouteTarget = target

	if strings.HasPrefix(target, AlternatePrefix) {
		return r.resolveAlternate(def, target, originalModel)
	}

	// Bare alias on the primary provider; unmapped aliases pass the original
	// model through unchanged.
	if model, ok := r.primary[target]; ok {
		def.Model = model
	}
	log.Info().
		Str("fingerprint", fp).
		Str("target", target).
		Str("model", def.Model).
		Msg("routing: registry hit")
	return def
}

// resolveAlternate handles provider-prefixed targets. Missing alternate
// credentials downgrade to the bare alias on the primary provider; an
// unrecognized alternate alias falls back to the default decision entirely.
func (r *Resolver) resolveAlternate(def Decision, target, originalModel string) Decision {
	if r.opts.AlternateAPIKey == "" {
		bare := strings.TrimPrefix(target, AlternatePrefix)
		log.Warn().
			Str("target", target).
			Str("bare_alias", bare).
			Msg("routing: alternate provider key not configured, downgrading to primary")
		if model, ok := r.primary[bare]; ok {
			def.Model = model
		}
		return def
	}

	model, ok := r.alternate[target]
	if !ok {
		log.Warn().Str("target", target).Msg("routing: unknown alternate alias, using default route")
		return def
	}

	log.Info().
		Str("fingerprint", def.Fingerprint).
		Str("target", target).
		Str("model", model).
		Msg("routing: alternate provider hit")
	return Decision{
		BaseURL:     r.opts.AlternateBaseURL,
		Model:       model,
		UseOAuth:    false,
		APIKey:      r.opts.AlternateAPIKey,
		Fingerprint: def.Fingerprint,
		RouteTarget: target,
	}
}

// extractPrompt pulls the prompt text used for fingerprinting. Message lists
// following the agent convention (two or more system messages led by the
// client identity message) fingerprint the second system message; otherwise
// the native system field wins, then the first system-role message.
func (r *Resolver) extractPrompt(doc gjson.Result) string {
	messages := doc.Get("messages")
	if txt, ok := fingerprint.AgentPrompt(messages); ok {
		return txt
	}
	if system := doc.Get("system"); system.Exists() {
		if txt := fingerprint.Text(system); txt != "" {
			return txt
		}
	}
	if txt, ok := fingerprint.PlainPrompt(messages); ok {
		return txt
	}
	return ""
}
