package gateway

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/maxrelay/maxrelay/internal/config"
)

// TransformRequest rewrites an inbound messages payload for the upstream:
// identity preamble, blocked-string sanitization, tool-name namespacing.
// Pure over the body bytes; no I/O.
func TransformRequest(body []byte, tc config.TransformConfig) ([]byte, error) {
	body, err := injectIdentity(body, tc)
	if err != nil {
		return nil, err
	}
	return namespaceTools(body)
}

// IsStreaming reports whether the payload asked for a streamed response.
func IsStreaming(body []byte) bool {
	return gjson.GetBytes(body, "stream").Bool()
}

// injectIdentity normalizes `system` to an array of text blocks, prepends the
// identity preamble if no block already starts with it, and sanitizes blocked
// strings in every text block. Idempotent for the preamble step.
func injectIdentity(body []byte, tc config.TransformConfig) ([]byte, error) {
	sys := gjson.GetBytes(body, "system")

	var blocks []any
	switch {
	case sys.Type == gjson.String:
		blocks = []any{textBlock(sys.String())}
	case sys.IsArray():
		for _, b := range sys.Array() {
			blocks = append(blocks, b.Value())
		}
	}

	hasIdentity := false
	for _, b := range blocks {
		if m, ok := b.(map[string]any); ok {
			if text, ok := m["text"].(string); ok && strings.HasPrefix(text, config.IdentityPhrase) {
				hasIdentity = true
				break
			}
		}
	}
	if !hasIdentity {
		blocks = append([]any{textBlock(config.IdentityPhrase)}, blocks...)
	}

	for _, b := range blocks {
		m, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := m["text"].(string); ok {
			m["text"] = sanitize(text, tc)
		}
	}

	out, err := sjson.SetBytes(body, "system", blocks)
	if err != nil {
		return nil, fmt.Errorf("rewrite system field: %w", err)
	}
	return out, nil
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// sanitize replaces the blocked product name (case-sensitive) and the blocked
// brand token (case-insensitive). The upstream rejects system text containing
// either.
func sanitize(text string, tc config.TransformConfig) string {
	text = strings.ReplaceAll(text, tc.BlockedProduct, tc.Replacement)
	return replaceFold(text, tc.BlockedBrand, tc.Replacement)
}

// replaceFold replaces all occurrences of old in s ignoring ASCII case.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)

	var b strings.Builder
	start := 0
	for {
		i := strings.Index(lower[start:], oldLower)
		if i < 0 {
			b.WriteString(s[start:])
			return b.String()
		}
		i += start
		b.WriteString(s[start:i])
		b.WriteString(new)
		start = i + len(old)
	}
}

// namespaceTools prefixes every tool definition name and every tool-invocation
// block name. Applied exactly once per request.
func namespaceTools(body []byte) ([]byte, error) {
	var err error
	for i, tool := range gjson.GetBytes(body, "tools").Array() {
		name := tool.Get("name")
		if !name.Exists() {
			continue
		}
		body, err = sjson.SetBytes(body, fmt.Sprintf("tools.%d.name", i), config.ToolNamePrefix+name.String())
		if err != nil {
			return nil, fmt.Errorf("rewrite tool name: %w", err)
		}
	}

	for mi, msg := range gjson.GetBytes(body, "messages").Array() {
		content := msg.Get("content")
		if !content.IsArray() {
			continue
		}
		for ci, block := range content.Array() {
			if block.Get("type").String() != "tool_use" {
				continue
			}
			name := block.Get("name")
			if !name.Exists() {
				continue
			}
			path := fmt.Sprintf("messages.%d.content.%d.name", mi, ci)
			body, err = sjson.SetBytes(body, path, config.ToolNamePrefix+name.String())
			if err != nil {
				return nil, fmt.Errorf("rewrite tool_use name: %w", err)
			}
		}
	}
	return body, nil
}
