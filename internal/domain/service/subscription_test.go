package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSymbolsNormalizes(t *testing.T) {
	require.Equal(t, []string{"AAPL", "MSFT"}, ParseSymbols(" aapl, msft ,aapl"))
}

func TestParseSymbolsDelimiters(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"tsla", []string{"TSLA"}},
		{"aapl msft\tgoog", []string{"AAPL", "MSFT", "GOOG"}},
		{"aapl;;msft,,", []string{"AAPL", "MSFT"}},
		{"   ", []string{}},
		{"", []string{}},
		{`{"symbols":["ibm"," nvda"]}`, []string{"IBM", "NVDA"}},
		{`{"ticker":"aapl"}`, []string{"AAPL"}},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.want, ParseSymbols(tc.in), "input %q", tc.in)
	}
}

func TestSubscriptionSetSymbols(t *testing.T) {
	sub := NewSubscription()
	require.True(t, sub.Empty())

	require.True(t, sub.SetSymbols([]string{"msft", "aapl"}))
	require.Equal(t, []string{"MSFT", "AAPL"}, sub.Symbols())

	require.False(t, sub.SetSymbols([]string{"MSFT", "aapl "}), "same set is not a change")

	require.True(t, sub.SetSymbols(nil))
	require.True(t, sub.Empty())
}

func TestSubscriptionSymbolsReturnsCopy(t *testing.T) {
	sub := NewSubscription()
	sub.SetSymbols([]string{"AAPL"})

	got := sub.Symbols()
	got[0] = "XXX"
	require.Equal(t, []string{"AAPL"}, sub.Symbols())
}
