package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zxcvny/capstone/internal/api"
	"github.com/zxcvny/capstone/internal/api/handlers"
	"github.com/zxcvny/capstone/internal/realtime/cache"
	"github.com/zxcvny/capstone/internal/realtime/stream"
	"github.com/zxcvny/capstone/internal/scheduler"
	"github.com/zxcvny/capstone/internal/scheduler/jobs"
)

// tickCacheTTL marks a cached tick stale when no newer one arrived
const tickCacheTTL = time.Minute

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST + 실시간 스트리밍 게이트웨이를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- KIS 실시간 체결 스트림 중계
- 환율/종목 마스터 주기 갱신 스케줄러 시작

Endpoints:
  GET  /health                         - Health check
  GET  /fx/rate                        - USD/KRW 환율
  GET  /scheduler/jobs                 - 스케줄 작업 통계
  GET  /stocks/search?keyword=         - 종목 검색
  GET  /stocks/rank/{rank_type}        - 통합 랭킹
  GET  /stocks/{code}/quote            - 현재가
  GET  /stocks/{code}/detail           - 상세
  GET  /stocks/{code}/chart?period=    - 차트
  GET  /stocks/{code}/orderbook        - 호가
  GET  /stocks/{code}/trades           - 체결
  GET  /realtime/stats                 - 스트림 상태
  GET  /realtime/ticks/{code}          - 최근 체결
  WS   /realtime/stocks/{code}         - 실시간 체결
  WS   /realtime/rankings              - 실시간 랭킹

Example:
  go run ./cmd/capstone api
  go run ./cmd/capstone api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: PORT)")
	apiCmd.Flags().BoolVar(&apiScheduler, "scheduler", true, "환율/종목 마스터 스케줄러 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Capstone API Server ===")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Config, logger, storage, quotation clients
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}
	log := a.log

	log.WithFields(map[string]interface{}{
		"port":     a.cfg.Port,
		"env":      a.cfg.Env,
		"foreign":  a.kis.ForeignMarket(),
		"symbols":  a.directory.Len(),
		"redis":    a.redis.Enabled(),
		"database": a.db != nil,
	}).Info("Initializing API server")

	// 2. Realtime: last-tick cache and the push-feed manager
	ticks := cache.NewTickCache(tickCacheTTL, log)
	streams := stream.NewManager(
		stream.OptionsFromConfig(a.cfg.KIS, a.cfg.Stream, a.kis.ForeignMarket()),
		a.tokens, a.kis, a.fx, a.directory, ticks, log,
	)
	defer streams.Close()

	// 3. Scheduler
	sched := scheduler.New(scheduler.DefaultOptions(), log)
	for _, job := range []scheduler.Job{
		jobs.NewFXRefreshJob(a.fx),
		jobs.NewStockMasterJob(a.loader),
		jobs.NewTickCleanupJob(ticks, log),
	} {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job: %w", err)
		}
	}
	if apiScheduler {
		sched.Start()
		defer sched.Stop()
	}

	// 4. Handlers and router
	router := api.NewRouter(api.Handlers{
		Stock:   handlers.NewStockHandler(a.kis, a.directory, log),
		Ranking: handlers.NewRankingHandler(a.rankings, log),
		Stream:  handlers.NewStreamHandler(streams, a.rankings, ticks, a.cfg.FrontendURL, log),
		System:  handlers.NewSystemHandler(a.fx, sched, log),
	}, a.cfg.FrontendURL, log)

	// 5. Create server
	server := api.New(a.cfg, log, router)

	// 6. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
