package main

import (
	"log"
	"os"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/app/bootstrap"
	"github.com/solarisops/assistant-go/app/router"
	"github.com/solarisops/assistant-go/internal/logger"
)

func main() {
	// 在bootstrap之前设置端口
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8002"
	}
	if p, err := strconv.Atoi(port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	} else {
		web.BConfig.Listen.HTTPPort = 8002
	}

	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	// 初始化路由
	router.Init()

	// 配置Beego全局设置
	web.BConfig.AppName = "Turbine Assistant Service"
	web.BConfig.CopyRequestBody = true

	logger.Info("🚀 Starting Turbine Assistant Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
