// Package registry maps prompt fingerprints to routing targets.
//
// DESIGN: The registry document is operator-maintained and updated
// out-of-band; the gateway mirrors it in an immutable snapshot swapped
// atomically on Load/Reload. Readers never see a partially built map.
// Registry content is untrusted input: a missing or malformed document
// degrades to an empty registry, never to a request failure.
package registry

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// DefaultTarget is assumed when an agents-array record omits its model.
const DefaultTarget = "sonnet"

// Registry holds the fingerprint -> route target mapping.
type Registry struct {
	path     string
	snapshot atomic.Pointer[map[string]string]
}

// New creates a registry backed by the document at path. The document is not
// read until Load is called.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Load reads the backing document once; subsequent calls return the cached
// snapshot until Reload. Never returns an error: absence or parse failure
// yields an empty mapping.
func (r *Registry) Load() map[string]string {
	if m := r.snapshot.Load(); m != nil {
		return *m
	}
	return r.Reload()
}

// Reload re-reads the backing document and atomically replaces the snapshot.
func (r *Registry) Reload() map[string]string {
	mapping := r.read()
	r.snapshot.Store(&mapping)
	return mapping
}

// Get looks up the route target for a fingerprint.
func (r *Registry) Get(fp string) (string, bool) {
	target, ok := r.Load()[fp]
	return target, ok
}

// Len returns the number of mappings in the current snapshot.
func (r *Registry) Len() int {
	return len(r.Load())
}

// read parses the backing document. Three payload shapes are accepted:
//
//  1. {"mappings": {hash: target}}          preferred, carries metadata
//  2. {"agents": [{"hash": h, "model": m}]} legacy array form
//  3. {hash: target}                        bare map
func (r *Registry) read() map[string]string {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", r.path).Msg("registry: document not found, using empty registry")
		} else {
			log.Error().Err(err).Str("path", r.path).Msg("registry: read failed, using empty registry")
		}
		return map[string]string{}
	}

	if !gjson.ValidBytes(data) {
		log.Error().Str("path", r.path).Msg("registry: malformed document, using empty registry")
		return map[string]string{}
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		log.Error().Str("path", r.path).Msg("registry: document is not an object, using empty registry")
		return map[string]string{}
	}

	mapping := make(map[string]string)

	switch {
	case doc.Get("mappings").IsObject():
		doc.Get("mappings").ForEach(func(key, value gjson.Result) bool {
			mapping[key.String()] = value.String()
			return true
		})
	case doc.Get("agents").IsArray():
		doc.Get("agents").ForEach(func(_, agent gjson.Result) bool {
			hash := agent.Get("hash").String()
			if hash == "" {
				return true
			}
			target := agent.Get("model").String()
			if target == "" {
				target = DefaultTarget
			}
			mapping[hash] = target
			return true
		})
	default:
		doc.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				mapping[key.String()] = value.String()
			}
			return true
		})
	}

	log.Info().Int("mappings", len(mapping)).Str("path", r.path).Msg("registry: loaded")
	return mapping
}
