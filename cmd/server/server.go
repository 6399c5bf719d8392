package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/logger"
	"github.com/telemetry-collector/pkg/reconfig"
	"github.com/telemetry-collector/pkg/snapshot"
)

// maxParamsBody 重配置请求体上限
const maxParamsBody = 64 << 10

// SnapshotSource 最新快照来源（聚合调度器）
type SnapshotSource interface {
	GetSnapshot() *snapshot.Snapshot
}

// Reconfigurer 运行时重配置入口
type Reconfigurer interface {
	Apply(req reconfig.Request) reconfig.Result
	Current() reconfig.Params
}

// Server HTTP服务实例，封装核心依赖和配置
type Server struct {
	cfg       *config.Config
	logger    *logger.Logger
	server    *http.Server
	registry  prometheus.Gatherer
	snapshots SnapshotSource
	params    Reconfigurer
	mux       *customMux
}

// statusWriter 包装ResponseWriter，捕获状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

// customMux 自定义Mux，兼容原生用法并记录路由
type customMux struct {
	http.ServeMux
	routes []string
	mu     sync.Mutex
}

// Handle 重写Handle，注册路由时记录路径
func (m *customMux) Handle(pattern string, handler http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, pattern)
	m.ServeMux.Handle(pattern, handler)
}

// HandleFunc 重写HandleFunc
func (m *customMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	m.Handle(pattern, http.HandlerFunc(handler))
}

// NewHTTPServer 创建HTTP服务实例
func NewHTTPServer(cfg *config.Config, logger *logger.Logger, registry prometheus.Gatherer, snapshots SnapshotSource, params Reconfigurer) *Server {
	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		snapshots: snapshots,
		params:    params,
		mux:       &customMux{},
	}

	srv.registerEndpoints()

	srv.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return srv
}

// Handler 带日志中间件的路由（httptest 直接使用）
func (s *Server) Handler() http.Handler {
	return s.logMiddleware(s.mux)
}

// logMiddleware 统一日志记录
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Debug(
			"HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

const indexHTML = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
	<meta charset="UTF-8">
	<title>Telemetry Collector</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 40px; }
		h1 { color: #333; }
		a { display: block; margin: 8px 0; font-size: 18px; }
	</style>
</head>
<body>
	<h1>Telemetry Collector Service</h1>
	<p>Service is running.</p>
	<h2>Available Endpoints:</h2>
	<a href="/health">/health - 健康检查</a>
	<a href="/metrics">/metrics - Prometheus 指标暴露</a>
	<a href="/api/v1/telemetry">/api/v1/telemetry - 最新遥测快照（?format=json|cbor）</a>
	<a href="/api/v1/params">/api/v1/params - 测量参数（GET 查询 / POST 修改）</a>
</body>
</html>
`

// registerEndpoints 注册核心路由
func (s *Server) registerEndpoints() {
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, indexHTML)
	})

	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))

	s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.mux.HandleFunc("/api/v1/telemetry", s.handleTelemetry)
	s.mux.HandleFunc("/api/v1/params", s.handleParams)
}

// negotiate ?format= 优先，其次 Accept 头，默认 json
func negotiate(r *http.Request) (string, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		switch f {
		case snapshot.EncodingJSON, snapshot.EncodingCBOR:
			return f, nil
		default:
			return "", fmt.Errorf("unsupported format %q", f)
		}
	}
	if strings.Contains(r.Header.Get("Accept"), snapshot.ContentTypeCBOR) {
		return snapshot.EncodingCBOR, nil
	}
	return snapshot.EncodingJSON, nil
}

// handleTelemetry 返回最新完整快照（每次都是全量）
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	encoding, err := negotiate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap := s.snapshots.GetSnapshot()
	if snap == nil {
		http.Error(w, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}
	body, err := snap.Bytes(encoding)
	if err != nil {
		s.logger.Error("encode snapshot failed", zap.Uint64("seq", snap.Seq), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", snapshot.ContentType(encoding))
	w.Header().Set("X-Telemetry-Seq", strconv.FormatUint(snap.Seq, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(body)
	}
}

// handleParams GET 返回当前参数，POST 应用扁平 JSON 请求
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.params.Current())
	case http.MethodPost:
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParamsBody))
		if err != nil {
			http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusRequestEntityTooLarge)
			return
		}
		req, err := reconfig.ParseRequest(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := s.params.Apply(req)
		s.logger.Info("params request applied",
			zap.Bool("changed", res.Changed),
			zap.Strings("rejected", res.RejectedFields()))
		s.writeJSON(w, http.StatusOK, res)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", snapshot.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

// WriteHeader 捕获状态码
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Start 启动HTTP服务（非阻塞）；监听失败通过返回的通道上报
func (s *Server) Start() <-chan error {
	s.logger.Info(
		"starting HTTP server",
		zap.String("listen_addr", s.cfg.Server.Addr),
		zap.Strings("handle_funcs", s.mux.routes),
	)
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown 优雅关闭HTTP服务
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded")
		}
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	s.logger.Info("HTTP server shutdown successfully")
	return nil
}
