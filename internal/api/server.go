package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/rs/cors"

	"ChainPilot/internal/agent"
	"ChainPilot/internal/config"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/launchpad"
	"ChainPilot/internal/observability/metrics"
	"ChainPilot/internal/storage/mysql"
	"ChainPilot/internal/task"
	"ChainPilot/pkg/logger"
)

// Conversations 是对话类接口依赖的 Agent 能力。
type Conversations interface {
	Chat(ctx context.Context, prompt string) (*agent.ChatResult, error)
	LaunchpadChat(ctx context.Context, prompt string) (extract.Object, error)
	SentimentAnalysis(ctx context.Context, prompt string) (extract.Object, error)
	History(ctx context.Context, limit int) ([]mysql.ConversationRecord, error)
}

// TokenLauncher 负责代币部署与铸造。
type TokenLauncher interface {
	Deploy(ctx context.Context, req launchpad.DeployRequest) (*launchpad.DeployResult, error)
	Mint(ctx context.Context, req launchpad.MintRequest) (*launchpad.MintResult, error)
}

// Publisher 向社交账号发布动态。
type Publisher interface {
	Publish(ctx context.Context, content string) (map[string]any, error)
}

// TaskService 是异步任务接口依赖的能力。
type TaskService interface {
	Submit(ctx context.Context, req task.Request) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Task, error)
}

// Dependencies 汇总 API 使用的业务组件，未配置的组件对应接口返回 503。
type Dependencies struct {
	Agent     Conversations
	Launchpad TokenLauncher
	Social    Publisher
	Tasks     TaskService
}

// Server 负责暴露 REST 接口。
type Server struct {
	cfg  config.ServerConfig
	deps Dependencies
	log  *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	return &Server{cfg: cfg, deps: deps, log: logger.Named("api")}
}

// Handler 返回挂载了全部路由、指标与 CORS 中间件的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /launchpadChat", s.handleLaunchpadChat)
	mux.HandleFunc("POST /deployContract", s.handleDeployContract)
	mux.HandleFunc("POST /mintTokens", s.handleMintTokens)
	mux.HandleFunc("POST /sentimentAnalysis", s.handleSentimentAnalysis)
	mux.HandleFunc("POST /postTweet", s.handlePostTweet)
	mux.HandleFunc("POST /api/v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleTaskDetail)
	mux.HandleFunc("GET /api/v1/conversations", s.handleConversations)
	mux.Handle("GET /metrics", metrics.Handler())

	opts := cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	// 带凭证时浏览器不接受通配符，放开全部来源时回显请求的 Origin。
	if len(s.cfg.CORSOrigins) == 0 || slices.Contains(s.cfg.CORSOrigins, "*") {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(opts).Handler(withMetrics(mux))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", "address", s.cfg.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withMetrics 记录每个请求的状态码与耗时，标签使用路由模式而非原始路径。
func withMetrics(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.ObserveHTTPRequest(pattern, r.Method, rec.status, time.Since(start))
	})
}
