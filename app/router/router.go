package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solarisops/assistant-go/app/controllers"
)

// Init registers all routes. Must be called after config is loaded.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Handler("/metrics", promhttp.Handler())

	// 问答路由
	chatController := &controllers.ChatController{}
	web.Router("/api/v1/chat", chatController, "post:Ask")
	web.Router("/api/v1/chat/:session_id", chatController, "get:History;delete:Clear")
}
