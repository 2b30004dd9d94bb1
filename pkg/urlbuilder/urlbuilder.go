// Package urlbuilder assembles the upstream buscador.mercadopublico.cl API
// endpoints. Stateless: callers guarantee codes and dates are well-formed.
package urlbuilder

import (
	"fmt"
	"net/url"
)

const baseAPI = "https://api.buscador.mercadopublico.cl/compra-agil"

// ListURL builds the paginated listing endpoint. date_from/date_to are
// passed through verbatim when non-empty; region is intentionally never
// emitted, it conflicts with date filters on the upstream.
func ListURL(page int, dateFrom, dateTo string) string {
	q := url.Values{}
	q.Set("status", "2")
	q.Set("order_by", "recent")
	q.Set("page_number", fmt.Sprintf("%d", page))
	if dateFrom != "" {
		q.Set("date_from", dateFrom)
	}
	if dateTo != "" {
		q.Set("date_to", dateTo)
	}
	return baseAPI + "?" + q.Encode()
}

// DetailURL builds the single-tender detail endpoint.
func DetailURL(code string) string {
	q := url.Values{}
	q.Set("action", "ficha")
	q.Set("code", code)
	return baseAPI + "?" + q.Encode()
}
