package server

import (
	"encoding/json"
	stdhttp "net/http"
	"time"

	"xinyuan_tech/billing-sync-service/internal/conf"
	bizErrors "xinyuan_tech/billing-sync-service/internal/errors"
	"xinyuan_tech/billing-sync-service/internal/service"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/gorilla/handlers"
)

// ServiceName 服务名, 用于健康检查响应
const ServiceName = "billing-sync-service"

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Bootstrap, svc *service.WebhookService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
		http.Filter(corsFilter(c)),
		http.ErrorEncoder(customErrorEncoder),
	}
	if c.Server.Http.Addr != "" {
		opts = append(opts, http.Address(c.Server.Http.Addr))
	}
	if c.Server.Http.Timeout != "" {
		if d, err := time.ParseDuration(c.Server.Http.Timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}
	srv := http.NewServer(opts...)

	// 注册业务路由
	route := srv.Route("/")
	route.POST("/webhook", svc.HandleWebhook)
	route.GET("/subscription-status/{uid}", svc.GetSubscriptionStatus)
	route.GET("/payment-history/{uid}", svc.GetPaymentHistory)

	// 注册健康检查端点
	route.GET("/health", healthHandler)
	route.GET("/", healthHandler)

	return srv
}

func healthHandler(ctx http.Context) error {
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// corsFilter 按配置构造 CORS 过滤器
func corsFilter(c *conf.Bootstrap) func(stdhttp.Handler) stdhttp.Handler {
	origins := []string{"*"}
	if c != nil && c.Cors != nil && len(c.Cors.AllowedOrigins) > 0 {
		origins = c.Cors.AllowedOrigins
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Stripe-Signature"}),
	)
}

func customErrorEncoder(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	se := kerrors.FromError(err)
	status := stdhttp.StatusInternalServerError
	response := map[string]interface{}{
		"code":    status,
		"message": "internal server error",
	}

	if se != nil {
		status = mapErrorStatus(int(se.Code))
		response["code"] = se.Code
		response["reason"] = se.Reason
		response["message"] = se.Message
		if len(se.Metadata) > 0 {
			response["metadata"] = se.Metadata
		}
	} else if err != nil {
		response["message"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

func mapErrorStatus(code int) int {
	if code >= 100 && code < 600 {
		return code
	}
	switch {
	case code >= 140100 && code < 140200:
		return stdhttp.StatusBadRequest
	case code == bizErrors.ErrCodeAccountNotFound:
		return stdhttp.StatusNotFound
	}
	return stdhttp.StatusInternalServerError
}
