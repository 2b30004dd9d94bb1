package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHarvestedTenderExtractsDates(t *testing.T) {
	item := ListedItem{
		"codigo":            "L1",
		"nombre":            "Compra de insumos",
		"organismo":         "Ministerio A",
		"estado":            "Publicada",
		"fecha_publicacion": "2026-07-01",
		"fecha_cierre":      "2026-07-15T23:59:00Z",
	}

	got := toHarvestedTender(item)

	require.False(t, got.PublicationDate.IsZero())
	assert.Equal(t, 2026, got.PublicationDate.Year())
	assert.Equal(t, time.Month(7), got.PublicationDate.Month())
	assert.Equal(t, 1, got.PublicationDate.Day())

	require.NotNil(t, got.CloseDate)
	assert.Equal(t, 15, got.CloseDate.Day())
}

func TestToHarvestedTenderDefaultsPublicationDateWhenMissing(t *testing.T) {
	item := ListedItem{"codigo": "L2", "nombre": "x", "organismo": "Org"}

	got := toHarvestedTender(item)

	assert.False(t, got.PublicationDate.IsZero())
	assert.Nil(t, got.CloseDate)
}

func TestToDetailRecordExtractsCloseDates(t *testing.T) {
	payload := map[string]any{
		"descripcion":                  "desc",
		"fecha_cierre_primer_llamado":  "2026-07-15T23:59:00Z",
		"fecha_cierre_segundo_llamado": "2026-07-22T23:59:00Z",
	}

	got := toDetailRecord(payload)

	require.NotNil(t, got.CloseDate)
	assert.Equal(t, 15, got.CloseDate.Day())
	require.NotNil(t, got.CloseDateSecondCall)
	assert.Equal(t, 22, got.CloseDateSecondCall.Day())
}
