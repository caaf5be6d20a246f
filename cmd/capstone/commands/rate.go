package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// rateCmd prints the USD/KRW exchange rate
var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "USD/KRW 환율 조회",
	Long: `환율 소스(TwelveData → Naver)에서 USD/KRW 환율을 갱신하고 출력합니다.
모든 소스가 실패하면 기본값(FX_DEFAULT_RATE)을 출력합니다.

Example:
  go run ./cmd/capstone rate`,
	Args: cobra.NoArgs,
	RunE: runRate,
}

var rateJSON bool

func init() {
	rootCmd.AddCommand(rateCmd)

	rateCmd.Flags().BoolVar(&rateJSON, "json", false, "JSON 출력")
}

func runRate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.fx.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("Exchange rate refresh failed, showing fallback")
	}
	snap := a.fx.Snapshot()

	out := cmd.OutOrStdout()
	if rateJSON {
		return printJSON(out, snap)
	}

	fetched := "-"
	if !snap.FetchedAt.IsZero() {
		fetched = snap.FetchedAt.Format("2006-01-02 15:04:05")
	}
	printHeader(out, "USD/KRW", [][2]string{
		{"Rate", formatAmount(snap.Value, 2)},
		{"Source", snap.Source},
		{"Fetched", fetched},
	})
	return nil
}
