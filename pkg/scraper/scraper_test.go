package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeByCodeKeepsLast(t *testing.T) {
	items := []Item{
		{"codigo": "A1", "nombre": "first"},
		{"codigo": "A2", "nombre": "only"},
		{"codigo": "A1", "nombre": "last"},
	}

	out := dedupeByCode(items)

	require.Len(t, out, 2)
	var gotA1 Item
	for _, it := range out {
		if it["codigo"] == "A1" {
			gotA1 = it
		}
	}
	require.NotNil(t, gotA1)
	assert.Equal(t, "last", gotA1["nombre"])
}

func TestSessionStoreSingleSlot(t *testing.T) {
	var store sessionStore

	_, ok := store.get()
	assert.False(t, ok)

	store.set(Session{Authorization: "Bearer a"})
	got, ok := store.get()
	require.True(t, ok)
	assert.Equal(t, "Bearer a", got.Authorization)

	store.set(Session{Authorization: "Bearer b"})
	got, ok = store.get()
	require.True(t, ok)
	assert.Equal(t, "Bearer b", got.Authorization)
}

func TestAuthExpiredDetectsStatus(t *testing.T) {
	assert.True(t, authExpired(401, nil))
	assert.True(t, authExpired(403, []byte(`{}`)))
	assert.False(t, authExpired(200, []byte(`{}`)))
}

func TestAuthExpiredDetectsJSONSignal(t *testing.T) {
	assert.True(t, authExpired(200, []byte(`{"message":"Token expired"}`)))
	assert.True(t, authExpired(200, []byte(`{"error":"sesión expirada"}`)))
	assert.False(t, authExpired(200, []byte(`{"message":"not found"}`)))
}

func TestSessionHeadersIncludesAuthAndAPIKey(t *testing.T) {
	sess := Session{
		Authorization: "Bearer x",
		APIKey:        "key-1",
		UserAgent:     "ua",
		Accept:        "application/json",
		Referer:       "https://buscador.mercadopublico.cl/",
	}
	headers := sess.Headers()
	assert.Equal(t, "Bearer x", headers["authorization"])
	assert.Equal(t, "key-1", headers["x-api-key"])
}
