package controllers

import (
	"net/http"

	"github.com/solarisops/assistant-go/app/bootstrap"
	"github.com/solarisops/assistant-go/internal/database"
)

// RootController 服务根路径
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "Turbine Assistant Service",
		"status":  "running",
	})
}

// HealthController 健康检查
type HealthController struct {
	BaseController
}

// Health 返回核心依赖的连接状态
// 数据库是必需依赖，其余组件缺失只降级不拦截
func (c *HealthController) Health() {
	components := map[string]string{
		"database": "connected",
		"redis":    "connected",
	}
	status := "ok"

	if database.DB == nil {
		components["database"] = "unavailable"
		status = "degraded"
	}
	if database.RedisClient == nil {
		components["redis"] = "unavailable"
	}

	if app := bootstrap.GetApp(); app != nil {
		for name, ready := range app.HealthProbes() {
			if ready() {
				components[name] = "ready"
			} else {
				components[name] = "unavailable"
			}
		}
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}
