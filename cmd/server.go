/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mautops/expense-gin/internal/api"
	"github.com/mautops/expense-gin/internal/config"
	"github.com/mautops/expense-gin/internal/container"
	"github.com/mautops/expense-gin/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Expense Gin API server.
The server will listen on the configured host and port, serve the
report approval REST API and WebSocket endpoint, and run the reminder
and escalation schedulers in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 3. 初始化控制器
		controllers := &api.Controllers{
			Report:       api.NewReportController(ctr.Engine(), ctr.ReportRepo()),
			Notification: api.NewNotificationController(ctr.NotificationRepo()),
			TimeEntry:    api.NewTimeEntryController(ctr.TimeEntryRepo(), ctr.Scheduler(), ctr.Relay()),
			Admin:        api.NewAdminController(ctr.Scheduler()),
		}

		// 4. 设置路由
		router := api.SetupRoutes(ctr.Hub(), ctr.DB(), controllers, cfg)

		// 5. 监听配置文件变更,热更新日志级别
		if configPath != "" {
			watcher := config.NewWatcher(cfg, configPath)
			watcher.OnChange(func(newCfg *config.Config) {
				level, err := logrus.ParseLevel(newCfg.Log.Level)
				if err != nil {
					log.Printf("Invalid log level in reloaded config: %v", err)
					return
				}
				api.SetLoggerLevel(level)
				log.Printf("Log level updated to %s", newCfg.Log.Level)
			})
			if err := watcher.Start(); err != nil {
				log.Printf("Config watcher disabled: %v", err)
			} else {
				defer watcher.Stop()
			}
		}

		// 6. 启动后台组件
		go ctr.Hub().Run()

		schedCtx, cancelSched := context.WithCancel(context.Background())
		defer cancelSched()
		ctr.Scheduler().Start(schedCtx)
		defer ctr.Scheduler().Stop()

		collector := metrics.NewCollector(ctr.DB(), 30*time.Second)
		collector.Start()
		defer collector.Stop()

		// 7. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		// 启动服务器（在 goroutine 中）
		go func() {
			log.Printf("Server starting on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down server...")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		log.Println("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}

// LoadConfig 加载配置
func LoadConfig(configPath string) (*config.Config, error) {
	return config.Load(configPath)
}
