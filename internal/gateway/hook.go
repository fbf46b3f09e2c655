// Pre-call hook - the embeddable form of the gateway's routing and
// credential injection.
//
// DESIGN: A hosting proxy framework that owns the HTTP surface can invoke
// PreCallHook with its mutable request representation instead of going
// through /v1/messages. The hook mirrors the handler's semantics on a
// generic map: registry routing rewrites the model, and the primary-provider
// path injects the reference-client headers, the bearer credential, and the
// metadata identity. The hook never fails a request; any internal problem
// leaves the representation unchanged.
package gateway

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fstlabs/claude-gateway/internal/fingerprint"
	"github.com/fstlabs/claude-gateway/internal/routing"
)

// PreCallHook mutates a request representation before dispatch. Recognized
// keys: "model" (string), "messages" ([]any of {role, content}),
// "extra_headers" (map), "api_key" (string), "metadata" (map).
func (g *Gateway) PreCallHook(data map[string]any) map[string]any {
	if data == nil {
		return data
	}

	if prompt := systemPromptFromMessages(data["messages"]); prompt != "" && g.registry.Len() > 0 {
		fp := fingerprint.Compute(prompt)
		if target, ok := g.registry.Get(fp); ok {
			log.Info().
				Str("fingerprint", fp).
				Str("target", target).
				Msg("hook: registry route")
			data["model"] = target
			g.metrics.RecordRegistryHit()
		} else {
			g.metrics.RecordRegistryMiss()
		}
	}

	model, _ := data["model"].(string)
	if !isDirectAnthropicModel(model) {
		return data
	}

	cred, ok := g.creds.Get(false)
	if !ok {
		log.Warn().Str("model", model).Msg("hook: no credential available, leaving request unmodified")
		return data
	}

	headers, _ := data["extra_headers"].(map[string]any)
	if headers == nil {
		headers = map[string]any{}
		data["extra_headers"] = headers
	}
	for name, value := range hookHeaderSet() {
		headers[name] = value
	}

	// The hosting framework turns api_key into the Authorization bearer.
	data["api_key"] = cred.AccessToken

	metadata, _ := data["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
		data["metadata"] = metadata
	}
	if _, set := metadata["user_id"]; !set {
		metadata["user_id"] = fmt.Sprintf("user_%s_account_%s_session_%s",
			cred.UserID, cred.AccountUUID, g.sessionID)
	}

	return data
}

// hookHeaderSet is the reference-client signature as plain values for the
// hosting framework's extra_headers map.
func hookHeaderSet() map[string]string {
	h := map[string]string{
		"user-agent":                  ClientUserAgent,
		"x-app":                       "cli",
		"anthropic-beta":              ClientBetaHeader,
		"x-stainless-arch":            stainlessArch(),
		"x-stainless-lang":            "js",
		"x-stainless-os":              stainlessOS(),
		"x-stainless-package-version": ClientVersion,
		"x-stainless-retry-count":     "0",
		"x-stainless-runtime":         "node",
		"x-stainless-runtime-version": "v22.0.0",
	}
	h["anthropic-dangerous-direct-browser-access"] = "true"
	return h
}

// isDirectAnthropicModel reports whether the model goes straight to the
// primary provider and therefore needs the credential injection. Alternate
// provider targets and foreign models are left for the hosting framework.
func isDirectAnthropicModel(model string) bool {
	lower := strings.ToLower(model)
	if !strings.Contains(lower, "claude") && !strings.Contains(lower, "anthropic") {
		return false
	}
	for _, prefix := range []string{routing.AlternatePrefix, "openai/", "gpt-"} {
		if strings.Contains(lower, prefix) {
			return false
		}
	}
	return true
}

// systemPromptFromMessages extracts the first system message's text from a
// generic message list. Content is either a string or a list of text blocks.
func systemPromptFromMessages(messages any) string {
	list, ok := messages.([]any)
	if !ok {
		return ""
	}
	for _, item := range list {
		msg, ok := item.(map[string]any)
		if !ok || msg["role"] != "system" {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			return content
		case []any:
			var parts []string
			for _, block := range content {
				b, ok := block.(map[string]any)
				if !ok || b["type"] != "text" {
					continue
				}
				if text, ok := b["text"].(string); ok {
					parts = append(parts, text)
				}
			}
			return strings.Join(parts, " ")
		}
		return ""
	}
	return ""
}
