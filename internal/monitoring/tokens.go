package monitoring

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens gives a rough prompt token count for a request body in
// Anthropic Messages format. The cl100k_base encoding is an approximation
// for Claude tokenizers but close enough for telemetry. Returns 0 on any
// failure; never blocks a request.
func EstimateTokens(body []byte) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Err(err).Msg("telemetry: token encoding unavailable")
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return 0
	}

	total := 0
	count := func(text string) {
		if text != "" {
			total += len(encoding.Encode(text, nil, nil))
		}
	}

	doc := gjson.ParseBytes(body)
	countContent(doc.Get("system"), count)
	doc.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		countContent(msg.Get("content"), count)
		return true
	})
	return total
}

// countContent handles both string content and text-segment lists.
func countContent(content gjson.Result, count func(string)) {
	switch {
	case content.Type == gjson.String:
		count(content.String())
	case content.IsArray():
		content.ForEach(func(_, seg gjson.Result) bool {
			if seg.Get("type").String() == "text" {
				count(seg.Get("text").String())
			}
			return true
		})
	}
}
