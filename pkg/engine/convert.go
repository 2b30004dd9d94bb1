package engine

import (
	"time"

	"github.com/ca-refa/licita-monitor/pkg/repository"
)

// toHarvestedTender maps one raw listing item, keyed by the upstream API's
// own Spanish field names, into the Repository's write shape.
func toHarvestedTender(item ListedItem) repository.HarvestedTender {
	code, _ := item["codigo"].(string)
	if code == "" {
		code, _ = item["id"].(string)
	}

	organismName, _ := item["organismo"].(string)
	if organismName == "" {
		organismName = "No Especificado"
	}

	t := repository.HarvestedTender{
		Code:         code,
		Name:         stringField(item, "nombre"),
		OrganismName: organismName,
		StateText:    stringField(item, "estado"),
	}
	if amount, ok := numberField(item, "monto_disponible_CLP"); ok {
		t.Amount = &amount
	}
	if n, ok := intField(item, "cantidad_provedores_cotizando"); ok {
		t.BidderCount = &n
	}
	if pub, ok := timeField(item, "fecha_publicacion"); ok {
		t.PublicationDate = pub
	} else {
		t.PublicationDate = time.Now().UTC()
	}
	if close, ok := timeField(item, "fecha_cierre"); ok {
		t.CloseDate = &close
	}
	return t
}

// toDetailRecord maps a detail payload, with the upstream's own
// "estado"/"motivo_desierta" fallback already resolved by the Scraper, into
// the Repository's enrichment shape.
func toDetailRecord(payload map[string]any) repository.DetailRecord {
	var d repository.DetailRecord

	if desc, ok := payload["descripcion"].(string); ok {
		d.Description = &desc
	}
	if addr, ok := payload["direccion_entrega"].(string); ok {
		d.DeliveryAddress = &addr
	}
	if estado, ok := payload["estado"].(string); ok && estado != "" {
		d.StateText = &estado
	}
	if n, ok := intField(payload, "cantidad_provedores_cotizando"); ok {
		d.BidderCount = &n
	}
	if n, ok := intField(payload, "plazo_entrega"); ok {
		d.DeliveryLeadDays = &n
	}
	if t, ok := timeField(payload, "fecha_cierre_primer_llamado"); ok {
		d.CloseDate = &t
	}
	if t, ok := timeField(payload, "fecha_cierre_segundo_llamado"); ok {
		d.CloseDateSecondCall = &t
	}
	d.Products = payload["productos_solicitados"]

	return d
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// timeLayouts covers the upstream's mixed date/datetime representations:
// plain dates for fecha_publicacion, RFC3339(-Nano) datetimes for
// fecha_cierre and its second-call/first-call variants.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func timeField(m map[string]any, key string) (time.Time, bool) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
