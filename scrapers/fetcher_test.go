package scrapers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"justicetracker/scrapers"
)

func TestFetcher_RetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`<html><body><p>ok</p></body></html>`))
	}))
	defer srv.Close()

	f := scrapers.NewFetcher(zap.NewNop())
	doc, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, "ok", doc.Find("p").Text())
}

func TestFetcher_GivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := scrapers.NewFetcher(zap.NewNop())
	_, err := f.Get(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestExtractTables(t *testing.T) {
	const page = `<html><body>
		<table>
			<tr><th>Program</th><th>Amount</th></tr>
			<tr><td>Youth detention operations</td><td>$312.5 million</td></tr>
			<tr><td>Community supervision</td><td>$18.2 million</td></tr>
		</table>
		<table></table>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	f := scrapers.NewFetcher(zap.NewNop())
	doc, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)

	tables := scrapers.ExtractTables(doc)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Program", "Amount"}, tables[0].Headers)
	require.Len(t, tables[0].Rows, 2)
	assert.Equal(t, "Youth detention operations", tables[0].Rows[0][0])
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$312.5 million", 312_500_000, true},
		{"1,234,000", 1_234_000, true},
		{"$857", 857, true},
		{"18.2m", 18_200_000, true},
		{"n/a", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := scrapers.ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	got, ok := scrapers.ParseCount("1,023")
	assert.True(t, ok)
	assert.Equal(t, 1023, got)

	_, ok = scrapers.ParseCount("unknown")
	assert.False(t, ok)
}
