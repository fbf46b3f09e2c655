// Package fingerprint derives stable identifiers from system prompts.
//
// DESIGN: A fingerprint is the first 16 hex chars of the SHA-256 of the
// prompt text, after stripping the trailing "Notes:" section. The Notes
// section carries per-request content (workspace state, timestamps) that
// would otherwise make the same agent definition hash differently on every
// call, so it is cut before hashing.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tidwall/gjson"
)

// Size is the length of a fingerprint in hex characters.
const Size = 16

// AgentClientMarker identifies requests originating from the reference CLI
// client. The agent-pattern detection below only applies when the first
// system message carries this marker.
const AgentClientMarker = "Claude Code"

// volatileMarkers are checked in order; the first match wins and the text is
// truncated there. Only one strip is performed.
var volatileMarkers = []string{"\n\nNotes:", "\nNotes:", "Notes:"}

// Compute returns the canonical fingerprint of prompt text.
func Compute(text string) string {
	for _, marker := range volatileMarkers {
		if idx := strings.Index(text, marker); idx >= 0 {
			text = text[:idx]
			break
		}
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])[:Size]
}

// Text flattens a message content value into plain text. Content arrives
// either as a bare string or as an ordered list of typed segments; only
// text segments contribute, joined by single spaces.
func Text(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var parts []string
	content.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			if txt := block.Get("text").String(); txt != "" {
				parts = append(parts, txt)
			}
		}
		return true
	})
	return strings.Join(parts, " ")
}

// FromContent fingerprints a message content value (string or segment list).
func FromContent(content gjson.Result) string {
	return Compute(Text(content))
}

// SystemMessages returns the content of every system-role entry in a
// messages array, in order.
func SystemMessages(messages gjson.Result) []gjson.Result {
	var system []gjson.Result
	messages.ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "system" {
			system = append(system, msg.Get("content"))
		}
		return true
	})
	return system
}

// AgentPrompt extracts the agent definition text from a messages array
// following the reference client's convention: two or more system messages
// where the first carries the client marker. The SECOND system message is
// the agent definition and is the one that gets fingerprinted; the first is
// the client's own preamble and is ignored.
//
// Returns ok=false when the request does not follow the convention.
func AgentPrompt(messages gjson.Result) (string, bool) {
	system := SystemMessages(messages)
	if len(system) < 2 {
		return "", false
	}
	if !strings.Contains(Text(system[0]), AgentClientMarker) {
		return "", false
	}
	agent := Text(system[1])
	if agent == "" {
		return "", false
	}
	return agent, true
}

// PlainPrompt extracts prompt text in plain mode: the first system-role
// message's content, regardless of how many system messages exist.
func PlainPrompt(messages gjson.Result) (string, bool) {
	for _, content := range SystemMessages(messages) {
		if txt := Text(content); txt != "" {
			return txt, true
		}
		return "", false
	}
	return "", false
}
