package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/ranking"
)

// rankingCmd prints a combined ranking
var rankingCmd = &cobra.Command{
	Use:   "ranking [rank_type]",
	Short: "통합 랭킹 조회",
	Long: `국내/해외 랭킹을 조회합니다.

rank_type: volume (기본), amount, market_cap (cap), rise, fall
market   : ALL (기본), DOMESTIC, OVERSEAS

Example:
  go run ./cmd/capstone ranking rise --market ALL
  go run ./cmd/capstone ranking cap --market OVERSEAS --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRanking,
}

var (
	rankingMarket string
	rankingJSON   bool
)

func init() {
	rootCmd.AddCommand(rankingCmd)

	rankingCmd.Flags().StringVar(&rankingMarket, "market", "ALL", "ALL | DOMESTIC | OVERSEAS")
	rankingCmd.Flags().BoolVar(&rankingJSON, "json", false, "JSON 출력")
}

func runRanking(cmd *cobra.Command, args []string) error {
	rankType := kis.RankVolume
	if len(args) == 1 {
		rankType = kis.RankType(args[0])
	}
	if !rankType.Valid() {
		return fmt.Errorf("invalid rank type %q", rankType)
	}
	scope, err := ranking.ParseScope(rankingMarket)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	entries := a.rankings.GetRanking(ctx, rankType, scope)

	out := cmd.OutOrStdout()
	if rankingJSON {
		return printJSON(out, entries)
	}

	printHeader(out, "Ranking", [][2]string{
		{"Type", string(rankType.Normalize())},
		{"Market", string(scope)},
		{"FX", formatAmount(a.fx.Snapshot().Value, 2)},
		{"Entries", strconv.Itoa(len(entries))},
	})
	return printTable(out, []string{"#", "CODE", "NAME", "MKT", "PRICE", "RATE(%)", "VOLUME", "AMOUNT"}, rankingRows(entries))
}

func rankingRows(entries []kis.RankingEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Rank),
			e.Code,
			e.Name,
			string(e.Market),
			formatAmount(kis.ParseNumber(e.Price), 0),
			e.ChangeRate,
			formatAmount(kis.ParseNumber(e.Volume), 0),
			formatAmount(kis.ParseNumber(e.Amount), 0),
		})
	}
	return rows
}
