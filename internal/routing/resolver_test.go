package routing

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fstlabs/claude-gateway/internal/fingerprint"
	"github.com/fstlabs/claude-gateway/internal/registry"
)

const agentPrompt = "You are a database migration agent."

func regWithTarget(t *testing.T, target string) *registry.Registry {
	t.Helper()
	fp := fingerprint.Compute(agentPrompt)
	path := filepath.Join(t.TempDir(), "agent_hashes.json")
	doc := fmt.Sprintf(`{"mappings": {%q: %q}}`, fp, target)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return registry.New(path)
}

func emptyReg(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(filepath.Join(t.TempDir(), "missing.json"))
}

func bodyWithSystem(model string) []byte {
	return []byte(fmt.Sprintf(`{"model": %q, "system": %q, "messages": [{"role":"user","content":"hi"}]}`, model, agentPrompt))
}

func TestResolve_EmptyRegistryUsesDefault(t *testing.T) {
	r := NewResolver(emptyReg(t), Options{})
	d := r.Resolve(bodyWithSystem("gpt-x"))

	assert.Equal(t, DefaultAnthropicBaseURL, d.BaseURL)
	assert.Equal(t, "gpt-x", d.Model)
	assert.True(t, d.UseOAuth)
	assert.False(t, d.Alternate())
}

func TestResolve_NoPromptUsesDefault(t *testing.T) {
	r := NewResolver(regWithTarget(t, "opus"), Options{})
	d := r.Resolve([]byte(`{"model": "claude-sonnet-4-20250514", "messages": [{"role":"user","content":"hi"}]}`))

	assert.Equal(t, "claude-sonnet-4-20250514", d.Model)
	assert.Empty(t, d.RouteTarget)
}

func TestResolve_RegistryMissUsesOriginalModel(t *testing.T) {
	r := NewResolver(regWithTarget(t, "opus"), Options{})
	d := r.Resolve([]byte(`{"model": "gpt-x", "system": "a prompt nobody registered"}`))

	assert.Equal(t, "gpt-x", d.Model)
	assert.NotEmpty(t, d.Fingerprint)
	assert.Empty(t, d.RouteTarget)
}

func TestResolve_HitOverridesRequestedModel(t *testing.T) {
	r := NewResolver(regWithTarget(t, "opus"), Options{})
	d := r.Resolve(bodyWithSystem("gpt-x"))

	assert.Equal(t, "claude-opus-4-5-20251101", d.Model)
	assert.Equal(t, "opus", d.RouteTarget)
	assert.True(t, d.UseOAuth)
}

func TestResolve_SystemSegmentList(t *testing.T) {
	r := NewResolver(regWithTarget(t, "haiku"), Options{})
	body := fmt.Sprintf(`{"model": "m", "system": [{"type":"text","text":%q}]}`, agentPrompt)
	d := r.Resolve([]byte(body))

	assert.Equal(t, "claude-3-5-haiku-20241022", d.Model)
}

func TestResolve_MessagesFallbackForSystemPrompt(t *testing.T) {
	r := NewResolver(regWithTarget(t, "sonnet"), Options{})
	body := fmt.Sprintf(`{"model": "m", "messages": [{"role":"system","content":%q},{"role":"user","content":"hi"}]}`, agentPrompt)
	d := r.Resolve([]byte(body))

	assert.Equal(t, "claude-sonnet-4-20250514", d.Model)
}

func TestResolve_UnmappedAliasPassesModelThrough(t *testing.T) {
	r := NewResolver(regWithTarget(t, "experimental-tier"), Options{})
	d := r.Resolve(bodyWithSystem("claude-original"))

	assert.Equal(t, "claude-original", d.Model)
	assert.Equal(t, "experimental-tier", d.RouteTarget)
}

func TestResolve_AlternateProvider(t *testing.T) {
	r := NewResolver(regWithTarget(t, "zai-sonnet"), Options{AlternateAPIKey: "zai-key-123"})
	d := r.Resolve(bodyWithSystem("gpt-x"))

	assert.Equal(t, DefaultAlternateBaseURL, d.BaseURL)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", d.Model)
	assert.False(t, d.UseOAuth)
	assert.True(t, d.Alternate())
	assert.Equal(t, "zai-key-123", d.APIKey)
}

func TestResolve_AlternateDowngradeWithoutKey(t *testing.T) {
	r := NewResolver(regWithTarget(t, "zai-opus"), Options{})
	d := r.Resolve(bodyWithSystem("gpt-x"))

	assert.Equal(t, DefaultAnthropicBaseURL, d.BaseURL)
	assert.Equal(t, "claude-opus-4-5-20251101", d.Model)
	assert.True(t, d.UseOAuth)
	assert.False(t, d.Alternate())
}

func TestResolve_UnknownAlternateAliasFallsBackToDefault(t *testing.T) {
	r := NewResolver(regWithTarget(t, "zai-mystery"), Options{AlternateAPIKey: "zai-key-123"})
	d := r.Resolve(bodyWithSystem("original-model"))

	assert.Equal(t, DefaultAnthropicBaseURL, d.BaseURL)
	assert.Equal(t, "original-model", d.Model)
	assert.True(t, d.UseOAuth)
}

func TestResolve_AgentPatternFingerprintsSecondSystemMessage(t *testing.T) {
	r := NewResolver(regWithTarget(t, "opus"), Options{})
	body := fmt.Sprintf(`{
		"model": "m",
		"system": "some other prompt that is not registered",
		"messages": [
			{"role": "system", "content": "You are Claude Code, Anthropic's official CLI for Claude."},
			{"role": "system", "content": %q},
			{"role": "user", "content": "hi"}
		]
	}`, agentPrompt)
	d := r.Resolve([]byte(body))

	assert.Equal(t, "claude-opus-4-5-20251101", d.Model)
	assert.Equal(t, "opus", d.RouteTarget)
}

func TestResolve_ConfiguredAliasOverride(t *testing.T) {
	r := NewResolver(regWithTarget(t, "sonnet"), Options{
		Aliases: map[string]string{"sonnet": "claude-sonnet-custom"},
	})
	d := r.Resolve(bodyWithSystem("m"))

	assert.Equal(t, "claude-sonnet-custom", d.Model)
}
