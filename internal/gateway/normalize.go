// Request normalization - headers and body rewritten to the reference
// client signature.
//
// DESIGN: The upstream validates that OAuth requests match the exact
// signature of its own CLI client. Two surfaces must line up:
//   - Headers: user-agent, x-app, beta flags, and the SDK descriptor
//     family. The oauth beta token is mandatory; without it the upstream
//     rejects the bearer credential outright.
//   - Body: system prompt prefixed with the client identity block, tools
//     always present, temperature never present, metadata.user_id in the
//     client's composite format.
package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fstlabs/claude-gateway/internal/credentials"
	"github.com/fstlabs/claude-gateway/internal/utils"
)

// Reference client identity. These values must match what the upstream
// expects byte for byte; bumping the version requires re-verifying the
// whole set against a live client capture.
const (
	ClientVersion   = "2.1.5"
	ClientUserAgent = "claude-cli/" + ClientVersion + " (external, cli)"

	// OAuthBetaToken must appear in anthropic-beta or the upstream answers
	// "OAuth authentication is currently not supported".
	OAuthBetaToken = "oauth-2025-04-20"

	ClientBetaHeader = OAuthBetaToken + ",interleaved-thinking-2025-05-14,prompt-caching-2024-07-31,max-tokens-3-5-sonnet-2024-07-15,pdfs-2024-09-25,token-efficient-tools-2025-02-19"

	AnthropicVersion = "2023-06-01"

	// SystemPromptPrefix is the identity block the upstream checks for at
	// the head of the system prompt.
	SystemPromptPrefix = "You are Claude Code, Anthropic's official CLI for Claude."
)

// systemPrefixBlock is the prefix as a prompt-cache-friendly content block.
const systemPrefixBlock = `{"type":"text","text":"` + SystemPromptPrefix + `","cache_control":{"type":"ephemeral"}}`

// forwardableHeaders are identifying headers we pass through from the
// caller when present. Authorization is deliberately absent: the gateway
// always substitutes its own credential.
var forwardableHeaders = []string{
	"user-agent", "x-app", "anthropic-beta",
	"anthropic-dangerous-direct-browser-access",
	"anthropic-version",
	"x-stainless-arch", "x-stainless-lang", "x-stainless-os",
	"x-stainless-package-version", "x-stainless-retry-count",
	"x-stainless-runtime", "x-stainless-runtime-version",
	"x-stainless-timeout",
}

// PrimaryHeaders builds the outbound header set for the primary provider.
// Starts from the full reference signature, overlays identifying headers
// the caller already sent, then pins the fields that must not vary.
func PrimaryHeaders(inbound http.Header, accessToken string) http.Header {
	h := http.Header{}
	h.Set("user-agent", ClientUserAgent)
	h.Set("x-app", "cli")
	h.Set("anthropic-dangerous-direct-browser-access", "true")
	h.Set("anthropic-beta", ClientBetaHeader)
	h.Set("x-stainless-arch", stainlessArch())
	h.Set("x-stainless-lang", "js")
	h.Set("x-stainless-os", stainlessOS())
	h.Set("x-stainless-package-version", ClientVersion)
	h.Set("x-stainless-retry-count", "0")
	h.Set("x-stainless-runtime", "node")
	h.Set("x-stainless-runtime-version", "v22.0.0")

	if inbound != nil {
		for _, name := range forwardableHeaders {
			if v := inbound.Get(name); v != "" {
				h.Set(name, v)
			}
		}
	}

	h.Set("authorization", "Bearer "+accessToken)
	h.Set("anthropic-version", AnthropicVersion)
	if inbound != nil {
		if v := inbound.Get("anthropic-version"); v != "" {
			h.Set("anthropic-version", v)
		}
	}
	h.Set("content-type", "application/json")
	h.Set("accept", "application/json")
	h.Set("anthropic-beta", ensureOAuthBeta(h.Get("anthropic-beta")))
	return h
}

// AlternateHeaders builds the minimal header set for the alternate
// provider, which authenticates with a plain API key and does not
// validate a client signature.
func AlternateHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", AnthropicVersion)
	h.Set("content-type", "application/json")
	return h
}

// ensureOAuthBeta guarantees the oauth token is present in an
// anthropic-beta value, preserving any caller-supplied tokens.
func ensureOAuthBeta(beta string) string {
	if strings.Contains(beta, OAuthBetaToken) {
		return beta
	}
	if beta == "" {
		return OAuthBetaToken
	}
	return OAuthBetaToken + "," + beta
}

// NormalizeBody applies the reference client's body conventions to an
// outbound request on the primary provider.
func NormalizeBody(body []byte, cred *credentials.Credential, sessionID string) []byte {
	body = injectSystemPrefix(body)

	if !gjson.GetBytes(body, "tools").Exists() {
		body, _ = sjson.SetRawBytes(body, "tools", []byte(`[]`))
	}
	if gjson.GetBytes(body, "temperature").Exists() {
		body, _ = sjson.DeleteBytes(body, "temperature")
	}

	if !gjson.GetBytes(body, "metadata.user_id").Exists() {
		userID, accountUUID := "anonymous", "default"
		if cred != nil {
			userID, accountUUID = cred.UserID, cred.AccountUUID
		}
		id := fmt.Sprintf("user_%s_account_%s_session_%s", userID, accountUUID, sessionID)
		body, _ = sjson.SetBytes(body, "metadata.user_id", id)
	}
	return body
}

// injectSystemPrefix prepends the client identity block to the system
// prompt unless it already leads with it. The three system shapes (absent,
// string, block list) all normalize to a block list.
func injectSystemPrefix(body []byte) []byte {
	system := gjson.GetBytes(body, "system")

	switch {
	case !system.Exists(), system.IsArray() && len(system.Array()) == 0:
		out, _ := sjson.SetRawBytes(body, "system", []byte("["+systemPrefixBlock+"]"))
		return out

	case system.Type == gjson.String:
		if strings.HasPrefix(system.String(), SystemPromptPrefix) {
			return body
		}
		text, err := utils.MarshalNoEscape(map[string]string{"type": "text", "text": system.String()})
		if err != nil {
			return body
		}
		out, _ := sjson.SetRawBytes(body, "system", []byte("["+systemPrefixBlock+","+string(text)+"]"))
		return out

	case system.IsArray():
		first := system.Array()[0]
		if strings.HasPrefix(first.Get("text").String(), SystemPromptPrefix) {
			return body
		}
		raw := strings.TrimSpace(system.Raw)
		merged := "[" + systemPrefixBlock + "," + strings.TrimPrefix(raw, "[")
		out, _ := sjson.SetRawBytes(body, "system", []byte(merged))
		return out
	}
	return body
}

func stainlessArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "arm64":
		return "arm64"
	}
	return runtime.GOARCH
}

func stainlessOS() string {
	if runtime.GOOS == "" {
		return "unknown"
	}
	return runtime.GOOS
}
