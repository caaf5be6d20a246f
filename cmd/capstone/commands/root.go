package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "capstone",
	Short: "Capstone - 국내/해외 주식 시세 게이트웨이",
	Long: `Capstone Unified CLI

KIS 시세 API 기반 국내·해외 주식 시세 게이트웨이.
REST 조회, 실시간 체결 스트리밍, 통합 랭킹, 환율 변환.

Usage:
  go run ./cmd/capstone [command]

Examples:
  go run ./cmd/capstone api
  go run ./cmd/capstone ranking rise --market ALL
  go run ./cmd/capstone quote AAPL --market NAS
  go run ./cmd/capstone rate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
