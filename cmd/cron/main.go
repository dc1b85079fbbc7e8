package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xinyuan_tech/billing-sync-service/internal/conf"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			env.NewSource("BILLING_"),
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化应用
	app, cleanup, err := wireApp(&bc)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 1. 过期账户兜底检查 - 每天凌晨 2 点执行
	_, err = cronScheduler.AddFunc("0 0 2 * * *", func() {
		log.Println("[CRON] Starting lapsed account expiry check...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		count, uids, err := app.maintenance.ExpireLapsedAccounts(ctx)
		if err != nil {
			log.Printf("[CRON] Error expiring lapsed accounts: %v", err)
		} else {
			log.Printf("[CRON] Expired %d lapsed accounts: %v", count, uids)
			log.Println("[CRON] Finished lapsed account expiry check")
		}
	})
	if err != nil {
		log.Printf("Failed to add expiry check job: %v", err)
	}

	// 2. 事件去重记录清理 - 每天凌晨 4 点执行
	_, err = cronScheduler.AddFunc("0 0 4 * * *", func() {
		log.Println("[CRON] Starting webhook event prune...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		count, err := app.maintenance.PruneWebhookEvents(ctx)
		if err != nil {
			log.Printf("[CRON] Error pruning webhook events: %v", err)
		} else {
			log.Printf("[CRON] Pruned %d webhook events", count)
			log.Println("[CRON] Finished webhook event prune")
		}
	})
	if err != nil {
		log.Printf("Failed to add event prune job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	log.Println("========================================")
	log.Println("Cron jobs started successfully")
	log.Println("Scheduled jobs:")
	log.Println("  - Lapsed account expiry:  Every day at 02:00")
	log.Println("  - Webhook event prune:    Every day at 04:00")
	log.Println("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		log.Println("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		log.Println("Cron jobs forced to stop after timeout")
	}
}
