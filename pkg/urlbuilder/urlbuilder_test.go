package urlbuilder

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListURLOmitsRegion(t *testing.T) {
	raw := ListURL(3, "2024-01-01", "2024-01-31")
	require.True(t, strings.HasPrefix(raw, baseAPI+"?"))
	require.False(t, strings.Contains(raw, "region="))

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "2", q.Get("status"))
	require.Equal(t, "recent", q.Get("order_by"))
	require.Equal(t, "3", q.Get("page_number"))
	require.Equal(t, "2024-01-01", q.Get("date_from"))
	require.Equal(t, "2024-01-31", q.Get("date_to"))
}

func TestListURLOmitsEmptyDates(t *testing.T) {
	raw := ListURL(1, "", "")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	require.False(t, q.Has("date_from"))
	require.False(t, q.Has("date_to"))
}

func TestDetailURL(t *testing.T) {
	raw := DetailURL("L1-2024")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "ficha", q.Get("action"))
	require.Equal(t, "L1-2024", q.Get("code"))
}
