package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/internal/external/kis"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		value  float64
		places int
		want   string
	}{
		{0, 0, "0"},
		{999, 0, "999"},
		{72300, 0, "72,300"},
		{1234567.891, 2, "1,234,567.89"},
		{-2025, 0, "-2,025"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAmount(tt.value, tt.places))
		})
	}
}

func TestRankingRows(t *testing.T) {
	rows := rankingRows([]kis.RankingEntry{
		{Rank: 1, Code: "005930", Name: "삼성전자", Market: kis.MarketDomestic, Price: "72300", ChangeRate: "1.20", Volume: "15000000", Amount: "1084500000000"},
		{Rank: 2, Code: "AAPL", Name: "AAPL", Market: kis.MarketNASDAQ, Price: "270000.00", ChangeRate: "-0.75", Volume: "1000", Amount: ""},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "005930", "삼성전자", "KR", "72,300", "1.20", "15,000,000", "1,084,500,000,000"}, rows[0])
	assert.Equal(t, "270,000", rows[1][4])
	assert.Equal(t, "0", rows[1][7])
}

func TestPrintTableAndHeader(t *testing.T) {
	var buf bytes.Buffer
	printHeader(&buf, "USD/KRW", [][2]string{{"Rate", "1,350.00"}})
	require.NoError(t, printTable(&buf, []string{"A", "B"}, [][]string{{"1", "22"}}))

	out := buf.String()
	assert.Contains(t, out, "USD/KRW")
	assert.Contains(t, out, "Rate      : 1,350.00")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines[len(lines)-1], "22")
}
