// Package apiparser validates and extracts results and pagination metadata
// from decoded upstream JSON responses. Every extraction degrades to an
// empty/zero value on any shape mismatch rather than propagating an error —
// the upstream's payload shape is not contractual.
package apiparser

import (
	"encoding/json"
	"strings"
)

// PageMeta is the pagination metadata carried in payload.resultCount /
// payload.pageCount.
type PageMeta struct {
	TotalResults int
	TotalPages   int
}

// listResponse mirrors the subset of the upstream list/detail envelope this
// package cares about. Fields are left as json.RawMessage / map where the
// shape is not trusted, and decoded defensively afterward.
type listResponse struct {
	Payload json.RawMessage `json:"payload"`
}

type listPayload struct {
	Resultados  []map[string]any `json:"resultados"`
	ResultCount int              `json:"resultCount"`
	PageCount   int              `json:"pageCount"`
}

// Valid reports whether body decodes to an object carrying a payload with a
// "resultados" key. Any other shape is not a valid listing response.
func Valid(body []byte) bool {
	var env listResponse
	if err := json.Unmarshal(body, &env); err != nil || env.Payload == nil {
		return false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(env.Payload, &raw); err != nil {
		return false
	}
	_, ok := raw["resultados"]
	return ok
}

// Results extracts payload.resultados, defaulting to an empty slice on any
// decode failure or missing field.
func Results(body []byte) []map[string]any {
	var env listResponse
	if err := json.Unmarshal(body, &env); err != nil || env.Payload == nil {
		return []map[string]any{}
	}
	var p listPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return []map[string]any{}
	}
	if p.Resultados == nil {
		return []map[string]any{}
	}
	return p.Resultados
}

// PaginationMeta extracts payload.resultCount / payload.pageCount, both
// defaulting to 0 on any decode failure.
func PaginationMeta(body []byte) PageMeta {
	var env listResponse
	if err := json.Unmarshal(body, &env); err != nil || env.Payload == nil {
		return PageMeta{}
	}
	var p listPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return PageMeta{}
	}
	return PageMeta{TotalResults: p.ResultCount, TotalPages: p.PageCount}
}

// detailResponse mirrors the upstream detail envelope:
// {"success": "OK", "payload": {...flat fields...}}.
type detailResponse struct {
	Success string         `json:"success"`
	Payload map[string]any `json:"payload"`
}

// DetailPayload returns the flat payload object of a detail response when
// success == "OK" and a payload is present; ok is false otherwise.
func DetailPayload(body []byte) (payload map[string]any, ok bool) {
	var env detailResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	if env.Success != "OK" || env.Payload == nil {
		return nil, false
	}
	return env.Payload, true
}

// authSignalKeys are the envelope fields an expired-session body is likely
// to carry its message under.
var authSignalKeys = []string{"message", "error", "mensaje", "detail"}

// AuthExpired reports whether body carries a JSON "auth expired" signal,
// independent of the HTTP status code: a top-level string field (message,
// error, mensaje, detail) containing, case-insensitively, "expired",
// "expirad", "token" or "unauthoriz".
func AuthExpired(body []byte) bool {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return false
	}
	for _, key := range authSignalKeys {
		s, ok := raw[key].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		if strings.Contains(lower, "expired") || strings.Contains(lower, "expirad") ||
			strings.Contains(lower, "token") || strings.Contains(lower, "unauthoriz") {
			return true
		}
	}
	return false
}
