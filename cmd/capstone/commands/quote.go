package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zxcvny/capstone/internal/external/kis"
)

// quoteCmd prints a quote and the detail record of one symbol
var quoteCmd = &cobra.Command{
	Use:   "quote <symbol>",
	Short: "현재가/상세 조회",
	Long: `종목 현재가와 상세 정보를 조회합니다.
해외 종목 가격은 원화로 환산되어 표시됩니다.

Example:
  go run ./cmd/capstone quote 005930
  go run ./cmd/capstone quote AAPL --market NAS`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

var (
	quoteMarket string
	quoteJSON   bool
)

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteMarket, "market", "", "KR | NAS | NYS | AMS (기본: 종목코드로 추론)")
	quoteCmd.Flags().BoolVar(&quoteJSON, "json", false, "JSON 출력")
}

func runQuote(cmd *cobra.Command, args []string) error {
	symbol := strings.ToUpper(strings.TrimSpace(args[0]))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	market := kis.InferMarket(symbol, a.kis.ForeignMarket())
	if quoteMarket != "" {
		if market, err = kis.ParseMarket(quoteMarket); err != nil {
			return err
		}
	}

	quote := a.kis.GetQuote(ctx, symbol, market)
	detail := a.kis.GetDetail(ctx, symbol, market)

	out := cmd.OutOrStdout()
	if quoteJSON {
		return printJSON(out, map[string]interface{}{
			"quote":  quote,
			"detail": detail,
		})
	}

	if quote == nil {
		return fmt.Errorf("no quote for %s (%s)", symbol, market)
	}

	printHeader(out, fmt.Sprintf("%s %s", symbol, a.directory.Name(symbol)), [][2]string{
		{"Market", string(market)},
		{"Price", fmt.Sprintf("%s %s", formatAmount(quote.Price, 2), quote.Currency)},
		{"Change", fmt.Sprintf("%s (%.2f%%)", formatAmount(quote.Change, 2), quote.ChangeRate)},
		{"Volume", formatAmount(quote.Volume, 0)},
		{"Turnover", formatAmount(quote.Turnover, 0)},
	})

	// 상세 가격은 원화 기준
	return printTable(out, []string{"OPEN", "HIGH", "LOW", "52W H", "52W L", "CAP(억)", "PER", "PBR"}, [][]string{{
		formatAmount(detail.Open, 0),
		formatAmount(detail.High, 0),
		formatAmount(detail.Low, 0),
		formatAmount(detail.High52W, 0),
		formatAmount(detail.Low52W, 0),
		formatAmount(detail.MarketCap, 0),
		fmt.Sprintf("%.2f", detail.PER),
		fmt.Sprintf("%.2f", detail.PBR),
	}})
}
