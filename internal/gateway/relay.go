// Transport relay - forwards the normalized request and returns the
// upstream response, buffered or streamed.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fstlabs/claude-gateway/internal/config"
	"github.com/fstlabs/claude-gateway/internal/utils"
)

// relayResult summarizes a relay for telemetry.
type relayResult struct {
	StatusCode int
	Success    bool
	ErrorMsg   string
}

// relayBuffered forwards the request and writes the upstream JSON response
// through unchanged. Non-2xx upstream responses become a structured error
// with the upstream status preserved; retries belong to the caller.
func (g *Gateway) relayBuffered(ctx context.Context, w http.ResponseWriter, url string, body []byte, headers http.Header) relayResult {
	resp, err := g.forward(ctx, url, body, headers)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("relay: upstream request failed")
		g.writeError(w, "upstream request failed: "+err.Error(), "api_error", http.StatusBadGateway)
		return relayResult{StatusCode: http.StatusBadGateway, ErrorMsg: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxRequestBodySize))
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("relay: failed to read upstream response")
		g.writeError(w, "failed to read upstream response", "api_error", http.StatusBadGateway)
		return relayResult{StatusCode: http.StatusBadGateway, ErrorMsg: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", utils.TruncateForLog(msg, config.MaxErrorBodyLogLen)).
			Msg("relay: upstream error")
		g.writeError(w, msg, "api_error", resp.StatusCode)
		return relayResult{StatusCode: resp.StatusCode, ErrorMsg: msg}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
	return relayResult{StatusCode: resp.StatusCode, Success: true}
}

// relayStream forwards the request in streaming mode and relays raw SSE
// bytes verbatim. Error containment: a non-2xx initial response or a
// mid-stream transport failure yields exactly one terminal error event and
// no further chunks. The upstream body is closed on every exit path.
func (g *Gateway) relayStream(ctx context.Context, w http.ResponseWriter, url string, body []byte, headers http.Header) relayResult {
	resp, err := g.forward(ctx, url, body, headers)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("relay: upstream streaming request failed")
		writeSSEHeaders(w)
		writeSSEErrorEvent(w, map[string]any{
			"error": map[string]any{"message": err.Error(), "type": "streaming_error"},
		})
		return relayResult{StatusCode: http.StatusBadGateway, ErrorMsg: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, config.MaxRequestBodySize))
		msg := string(errBody)
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", utils.TruncateForLog(msg, config.MaxErrorBodyLogLen)).
			Msg("relay: upstream streaming error")
		writeSSEHeaders(w)
		writeSSEErrorEvent(w, map[string]any{
			"error": map[string]any{"message": msg, "status": resp.StatusCode},
		})
		return relayResult{StatusCode: resp.StatusCode, ErrorMsg: msg}
	}

	writeSSEHeaders(w)
	if err := g.streamBody(ctx, w, resp.Body); err != nil {
		writeSSEErrorEvent(w, map[string]any{
			"error": map[string]any{"message": err.Error(), "type": "streaming_error"},
		})
		return relayResult{StatusCode: resp.StatusCode, ErrorMsg: err.Error()}
	}
	return relayResult{StatusCode: resp.StatusCode, Success: true}
}

// forward issues the outbound POST. Headers replace wholesale; nothing from
// the inbound request leaks through except what normalize.go chose to keep.
func (g *Gateway) forward(ctx context.Context, url string, body []byte, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = headers.Clone()
	return g.client.Do(req)
}

// streamBody copies upstream chunks to the client with flushing. A client
// disconnect cancels ctx and stops the drain promptly; that is a clean exit,
// not an error event.
func (g *Gateway) streamBody(ctx context.Context, w http.ResponseWriter, reader io.Reader) error {
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		log.Warn().Msg("relay: streaming not supported, falling back to buffered copy")
	}

	buf := make([]byte, config.DefaultBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				log.Debug().Err(writeErr).Msg("relay: client disconnected")
				return nil
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Debug().Msg("relay: stream cancelled")
				return nil
			}
			log.Error().Err(err).Msg("relay: mid-stream read failure")
			return err
		}
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEErrorEvent emits a single terminal SSE error event.
func writeSSEErrorEvent(w http.ResponseWriter, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
