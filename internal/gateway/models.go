package gateway

import "net/http"

// modelEntry is one row of the static model catalog.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// modelCatalog is served as-is; the gateway does not query the upstream for
// model availability.
var modelCatalog = []modelEntry{
	{ID: "claude-opus-4-1-20250805", Object: "model", OwnedBy: "anthropic"},
	{ID: "claude-opus-4-20250514", Object: "model", OwnedBy: "anthropic"},
	{ID: "claude-sonnet-4-20250514", Object: "model", OwnedBy: "anthropic"},
	{ID: "claude-3-7-sonnet-20250219", Object: "model", OwnedBy: "anthropic"},
	{ID: "claude-3-5-haiku-20241022", Object: "model", OwnedBy: "anthropic"},
}

func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   modelCatalog,
	})
}
