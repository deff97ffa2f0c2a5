package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/maxrelay/maxrelay/internal/config"
	"github.com/maxrelay/maxrelay/internal/oauth"
)

// handleMessages is the proxy path: authenticate, obtain a valid credential,
// transform the body, forward, and reverse-transform the response.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		if g.metrics != nil {
			g.metrics.ObserveRequest("messages", status, time.Since(start))
		}
	}()

	if !isAuthorized(r, g.cfg.Server.ProxyKey) {
		status = http.StatusUnauthorized
		writeError(w, status, "authentication_error", "invalid or missing gateway credentials")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil || !gjson.ValidBytes(body) {
		status = http.StatusBadRequest
		writeError(w, status, "invalid_request_error", "request body is not valid JSON")
		return
	}

	token, err := g.tokens.GetValidAccessToken(r.Context())
	if err != nil {
		status = http.StatusInternalServerError
		var re *oauth.RefreshError
		if errors.As(err, &re) {
			writeError(w, status, "credential_refresh_failed", re.Error())
		} else {
			writeError(w, status, "credential_refresh_failed", err.Error())
		}
		g.logger.Error().Err(err).Msg("Credential unavailable, request not forwarded")
		return
	}

	transformed, err := TransformRequest(body, g.cfg.Transform)
	if err != nil {
		status = http.StatusBadRequest
		writeError(w, status, "invalid_request_error", err.Error())
		return
	}

	upReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
		g.cfg.Upstream.MessagesURL, bytes.NewReader(transformed))
	if err != nil {
		status = http.StatusInternalServerError
		writeError(w, status, "internal_error", "failed to build upstream request")
		return
	}
	upReq.Header = BuildUpstreamHeaders(token, g.versions.Get(), r.Header.Get("anthropic-beta"))

	resp, err := g.client.Do(upReq)
	if err != nil {
		status = http.StatusBadGateway
		writeError(w, status, "upstream_error", "upstream request failed")
		g.logger.Error().Err(err).Msg("Upstream call failed")
		return
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	g.logger.Info().
		Int("status", resp.StatusCode).
		Bool("stream", IsStreaming(body)).
		Str("model", gjson.GetBytes(body, "model").String()).
		Msg("Forwarded messages request")

	if IsStreaming(body) && resp.StatusCode == http.StatusOK {
		g.streamResponse(w, resp)
		return
	}
	g.bufferResponse(w, resp)
}

// bufferResponse relays a non-streamed upstream response after reversing the
// tool-name namespacing. Upstream error bodies take the same path so callers
// see provider error semantics unchanged.
func (g *Gateway) bufferResponse(w http.ResponseWriter, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read upstream response")
		return
	}
	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(Detransform(string(body))))
}

// streamResponse relays a streamed upstream response chunk by chunk, applying
// the reverse transform to each chunk and flushing after every write. Once
// headers are sent, a mid-stream failure just ends the stream.
func (g *Gateway) streamResponse(w http.ResponseWriter, resp *http.Response) {
	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	rewriter := &StreamRewriter{}
	buf := make([]byte, config.DefaultBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if out := rewriter.Rewrite(buf[:n]); len(out) > 0 {
				if _, werr := w.Write(out); werr != nil {
					return
				}
				if canFlush {
					flusher.Flush()
				}
			}
			if g.metrics != nil {
				g.metrics.ObserveStreamChunk()
			}
		}
		if err != nil {
			if tail := rewriter.Tail(); len(tail) > 0 {
				w.Write(tail)
			}
			if canFlush {
				flusher.Flush()
			}
			if err != io.EOF {
				g.logger.Warn().Err(err).Msg("Upstream stream ended with error")
			}
			return
		}
	}
}

// handleHealth reports liveness and credential status, never credential
// values.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "maxrelay",
		"tokenStatus": g.tokens.CredentialStatus(r.Context()),
	})
}

// preflight answers CORS preflight on any path with no body.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key, anthropic-version, anthropic-beta")
		h.Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
	})
}

// copyResponseHeaders forwards upstream headers, dropping hop-by-hop ones and
// the length header since the reverse transform can change the body size.
func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		switch http.CanonicalHeaderKey(key) {
		case "Content-Length", "Connection", "Transfer-Encoding", "Keep-Alive":
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError emits the gateway's error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
