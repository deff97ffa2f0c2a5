package gateway

import (
	"regexp"
	"unicode/utf8"

	"github.com/maxrelay/maxrelay/internal/config"
)

// toolNamePattern matches a JSON "name" field whose string value carries the
// namespace prefix. Textual matching is deliberate: streamed bodies are event
// fragments, not whole JSON documents.
var toolNamePattern = regexp.MustCompile(`("name"\s*:\s*")` + regexp.QuoteMeta(config.ToolNamePrefix))

// Detransform strips the tool-name namespace prefix from a buffered response
// body.
func Detransform(body string) string {
	return toolNamePattern.ReplaceAllString(body, "${1}")
}

// StreamRewriter applies Detransform chunk by chunk over a byte stream. It
// carries incomplete trailing rune bytes from one chunk into the next so
// multi-byte characters split at chunk seams are never corrupted. Single
// forward pass, not restartable.
type StreamRewriter struct {
	carry []byte
}

// Rewrite transforms one upstream chunk into one output chunk. The output may
// be shorter than the input when trailing bytes are held for the next chunk.
func (s *StreamRewriter) Rewrite(chunk []byte) []byte {
	buf := append(s.carry, chunk...)
	complete, rest := splitIncompleteRune(buf)
	s.carry = append([]byte(nil), rest...)
	if len(complete) == 0 {
		return nil
	}
	return []byte(Detransform(string(complete)))
}

// Tail returns any bytes still held after the upstream stream ends. A
// truncated final rune is passed through as-is.
func (s *StreamRewriter) Tail() []byte {
	rest := s.carry
	s.carry = nil
	return rest
}

// splitIncompleteRune cuts b before a trailing incomplete UTF-8 sequence.
func splitIncompleteRune(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && len(b)-i <= utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], b[i:]
			}
			break
		}
	}
	return b, nil
}
