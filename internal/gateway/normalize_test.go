package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/fstlabs/claude-gateway/internal/credentials"
)

var testCred = &credentials.Credential{
	AccessToken: "sk-ant-REDACTED",
	UserID:      "u123",
	AccountUUID: "acct-uuid-1",
}

func TestPrimaryHeaders_ReferenceSignature(t *testing.T) {
	h := PrimaryHeaders(nil, testCred.AccessToken)

	assert.Equal(t, "claude-cli/2.1.5 (external, cli)", h.Get("user-agent"))
	assert.Equal(t, "cli", h.Get("x-app"))
	assert.Equal(t, "true", h.Get("anthropic-dangerous-direct-browser-access"))
	assert.Equal(t, "2023-06-01", h.Get("anthropic-version"))
	assert.Equal(t, "Bearer "+testCred.AccessToken, h.Get("authorization"))
	assert.Equal(t, "application/json", h.Get("content-type"))
	assert.Equal(t, "application/json", h.Get("accept"))

	assert.Equal(t, "js", h.Get("x-stainless-lang"))
	assert.Equal(t, "node", h.Get("x-stainless-runtime"))
	assert.Equal(t, "v22.0.0", h.Get("x-stainless-runtime-version"))
	assert.Equal(t, "2.1.5", h.Get("x-stainless-package-version"))
	assert.Equal(t, "0", h.Get("x-stainless-retry-count"))

	assert.Contains(t, h.Get("anthropic-beta"), OAuthBetaToken)
}

func TestPrimaryHeaders_ForwardsIdentifyingHeaders(t *testing.T) {
	inbound := http.Header{}
	inbound.Set("user-agent", "claude-cli/2.0.0 (external, cli)")
	inbound.Set("x-stainless-timeout", "600")
	inbound.Set("anthropic-version", "2024-01-01")

	h := PrimaryHeaders(inbound, testCred.AccessToken)

	assert.Equal(t, "claude-cli/2.0.0 (external, cli)", h.Get("user-agent"))
	assert.Equal(t, "600", h.Get("x-stainless-timeout"))
	assert.Equal(t, "2024-01-01", h.Get("anthropic-version"))
}

func TestPrimaryHeaders_NeverForwardsAuthorization(t *testing.T) {
	inbound := http.Header{}
	inbound.Set("Authorization", "Bearer caller-token")
	inbound.Set("x-api-key", "caller-key")

	h := PrimaryHeaders(inbound, testCred.AccessToken)

	assert.Equal(t, "Bearer "+testCred.AccessToken, h.Get("authorization"))
	assert.Empty(t, h.Get("x-api-key"))
}

func TestPrimaryHeaders_InsertsOAuthBetaToken(t *testing.T) {
	inbound := http.Header{}
	inbound.Set("anthropic-beta", "prompt-caching-2024-07-31")

	h := PrimaryHeaders(inbound, testCred.AccessToken)

	assert.Equal(t, OAuthBetaToken+",prompt-caching-2024-07-31", h.Get("anthropic-beta"))
}

func TestEnsureOAuthBeta(t *testing.T) {
	assert.Equal(t, OAuthBetaToken, ensureOAuthBeta(""))
	assert.Equal(t, OAuthBetaToken+",extra", ensureOAuthBeta("extra"))
	assert.Equal(t, ClientBetaHeader, ensureOAuthBeta(ClientBetaHeader))
}

func TestAlternateHeaders(t *testing.T) {
	h := AlternateHeaders("zai-key")

	assert.Equal(t, "zai-key", h.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", h.Get("anthropic-version"))
	assert.Equal(t, "application/json", h.Get("content-type"))
	assert.Empty(t, h.Get("authorization"))
	assert.Empty(t, h.Get("user-agent"))
}

func TestNormalizeBody_InjectsSystemPrefixWhenAbsent(t *testing.T) {
	out := NormalizeBody([]byte(`{"model":"m","messages":[]}`), testCred, "sess1234")

	system := gjson.GetBytes(out, "system")
	require.True(t, system.IsArray())
	blocks := system.Array()
	require.Len(t, blocks, 1)
	assert.Equal(t, SystemPromptPrefix, blocks[0].Get("text").String())
	assert.Equal(t, "ephemeral", blocks[0].Get("cache_control.type").String())
}

func TestNormalizeBody_WrapsStringSystem(t *testing.T) {
	out := NormalizeBody([]byte(`{"model":"m","system":"You are a helpful bot."}`), testCred, "s")

	blocks := gjson.GetBytes(out, "system").Array()
	require.Len(t, blocks, 2)
	assert.Equal(t, SystemPromptPrefix, blocks[0].Get("text").String())
	assert.Equal(t, "You are a helpful bot.", blocks[1].Get("text").String())
}

func TestNormalizeBody_PrependsToBlockList(t *testing.T) {
	body := `{"model":"m","system":[{"type":"text","text":"agent prompt"}]}`
	out := NormalizeBody([]byte(body), testCred, "s")

	blocks := gjson.GetBytes(out, "system").Array()
	require.Len(t, blocks, 2)
	assert.Equal(t, SystemPromptPrefix, blocks[0].Get("text").String())
	assert.Equal(t, "agent prompt", blocks[1].Get("text").String())
}

func TestNormalizeBody_SkipsInjectionWhenPrefixPresent(t *testing.T) {
	body := `{"model":"m","system":"` + SystemPromptPrefix + ` Extra instructions."}`
	out := NormalizeBody([]byte(body), testCred, "s")

	// Still a string: nothing needed rewriting.
	system := gjson.GetBytes(out, "system")
	assert.Equal(t, gjson.String, system.Type)
}

func TestNormalizeBody_ToolsAndTemperature(t *testing.T) {
	out := NormalizeBody([]byte(`{"model":"m","temperature":0.7}`), testCred, "s")

	assert.True(t, gjson.GetBytes(out, "tools").IsArray())
	assert.Empty(t, gjson.GetBytes(out, "tools").Array())
	assert.False(t, gjson.GetBytes(out, "temperature").Exists())
}

func TestNormalizeBody_PreservesExistingTools(t *testing.T) {
	out := NormalizeBody([]byte(`{"model":"m","tools":[{"name":"bash"}]}`), testCred, "s")

	tools := gjson.GetBytes(out, "tools").Array()
	require.Len(t, tools, 1)
	assert.Equal(t, "bash", tools[0].Get("name").String())
}

func TestNormalizeBody_MetadataUserID(t *testing.T) {
	out := NormalizeBody([]byte(`{"model":"m"}`), testCred, "sess1234")

	assert.Equal(t, "user_u123_account_acct-uuid-1_session_sess1234",
		gjson.GetBytes(out, "metadata.user_id").String())
}

func TestNormalizeBody_MetadataOnlyWhenUnset(t *testing.T) {
	body := `{"model":"m","metadata":{"user_id":"preset"}}`
	out := NormalizeBody([]byte(body), testCred, "s")

	assert.Equal(t, "preset", gjson.GetBytes(out, "metadata.user_id").String())
}

func TestNormalizeBody_NilCredentialUsesPlaceholders(t *testing.T) {
	out := NormalizeBody([]byte(`{"model":"m"}`), nil, "sess")

	assert.Equal(t, "user_anonymous_account_default_session_sess",
		gjson.GetBytes(out, "metadata.user_id").String())
}
