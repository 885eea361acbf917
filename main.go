/**
 * Shion 主入口文件
 *
 * 这是 Wails 应用的启动点，负责：
 * 1. 加载配置并初始化日志
 * 2. 创建 App 实例
 * 3. 启动 Wails 运行时
 */

package main

import (
	"context"
	"embed"
	"log"

	"github.com/chenyang-zz/shion/internal/app"
	"github.com/chenyang-zz/shion/internal/infrastructure/config"
	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	configPath, err := config.DefaultPath()
	if err != nil {
		log.Fatalf("Failed to resolve config path: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	env := "production"
	if cfg.Application.Debug {
		env = "development"
	}
	if err := logger.Init(logger.Options{
		Env:   env,
		Level: cfg.Logging.Level,
		File:  cfg.Logging.FileOptions(),
	}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// App 是前后端通信的桥梁，包含所有导出的方法
	shionApp := app.New(app.WithConfig(cfg, configPath))

	err = wails.Run(&options.App{
		Title:            "Shion",
		Width:            1024,
		Height:           720,
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 255},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		/**
		 * 将 App 实例绑定到 Wails
		 * 前端可以通过 window.go.app.App 访问导出的方法
		 */
		Bind: []interface{}{
			shionApp,
		},

		OnStartup: func(ctx context.Context) {
			if err := shionApp.Startup(ctx); err != nil {
				logger.Fatal("启动失败", zap.Error(err))
			}
		},

		OnShutdown: func(ctx context.Context) {
			if err := shionApp.Shutdown(); err != nil {
				logger.Error("退出时清理失败", zap.Error(err))
			}
		},
	})

	if err != nil {
		log.Fatalf("Error: %s", err.Error())
	}
}
