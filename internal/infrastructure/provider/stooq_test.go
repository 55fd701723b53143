package provider_test

import (
	"context"
	"testing"

	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/provider"

	"github.com/stretchr/testify/require"
)

func TestStooqSymbol(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"AAPL":     "aapl.us",
		"VOD.L":    "vod.uk",
		"SAP.DE":   "sap.de",
		"7203.T":   "7203.jp",
		"0700.HK":  "0700.hk",
		"^GSPC":    "^spx",
		"^DJI":     "^dji",
		"^IXIC":    "^ndq",
		"EURUSD=X": "eurusd",
		"TRY=X":    "usdtry",
		"GC=F":     "gc.f",
		"BTC-USD":  "",
		"^TNX":     "",
		"DX-Y.NYB": "",
		"":         "",
	}
	for in, want := range cases {
		require.Equal(t, want, provider.StooqSymbol(in), in)
	}
}

func TestStooq_PriceAt(t *testing.T) {
	t.Parallel()
	var seen string
	csv := "Date,Open,High,Low,Close,Volume\n2025-01-02,248.93,249.1,241.82,243.85,55740731\n"
	s := &provider.Stooq{BaseURL: "https://stooq.com", APIKey: "k", HTTP: stubClient(csv, 200, &seen)}

	p, err := s.PriceAt(context.Background(), "AAPL", mustDay("2025-01-02"))
	require.NoError(t, err)
	require.InDelta(t, 243.85, p, 1e-9)
	require.Contains(t, seen, "s=aapl.us")
	require.Contains(t, seen, "d1=20241230")
	require.Contains(t, seen, "d2=20250102")
	require.Contains(t, seen, "i=d")
}

func TestStooq_WalksBackOverWeekend(t *testing.T) {
	t.Parallel()
	csv := "Date,Open,High,Low,Close,Volume\n2025-01-02,1,1,1,243.85,1\n2025-01-03,1,1,1,243.36,1\n"
	s := &provider.Stooq{BaseURL: "https://stooq.com", APIKey: "k", HTTP: stubClient(csv, 200, nil)}

	p, err := s.PriceAt(context.Background(), "AAPL", mustDay("2025-01-05"))
	require.NoError(t, err)
	require.InDelta(t, 243.36, p, 1e-9)

	_, err = s.PriceAt(context.Background(), "AAPL", mustDay("2025-01-08"))
	require.ErrorIs(t, err, domain.ErrPriceNotFound)
}

func TestStooq_NoData(t *testing.T) {
	t.Parallel()
	s := &provider.Stooq{BaseURL: "https://stooq.com", APIKey: "k", HTTP: stubClient("No data", 200, nil)}

	_, err := s.PriceAt(context.Background(), "AAPL", mustDay("2025-01-04"))
	require.ErrorIs(t, err, domain.ErrPriceNotFound)
}

func TestStooq_MissingKey(t *testing.T) {
	t.Parallel()
	s := &provider.Stooq{BaseURL: "https://stooq.com", HTTP: stubClient("", 200, nil)}

	_, err := s.PriceAt(context.Background(), "AAPL", mustDay("2025-01-02"))
	require.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestStooq_MalformedCSV(t *testing.T) {
	t.Parallel()
	s := &provider.Stooq{BaseURL: "https://stooq.com", APIKey: "k", HTTP: stubClient("<html>blocked</html>", 200, nil)}

	_, err := s.PriceAt(context.Background(), "AAPL", mustDay("2025-01-02"))
	require.Error(t, err)
	require.True(t, provider.CountsAsFailure(err))
}

func TestStooq_UntranslatableTicker(t *testing.T) {
	t.Parallel()
	s := &provider.Stooq{BaseURL: "https://stooq.com", APIKey: "k", HTTP: stubClient("", 200, nil)}

	_, err := s.PriceAt(context.Background(), "^TNX", mustDay("2025-01-02"))
	require.ErrorIs(t, err, domain.ErrUnsupportedAsset)
}
