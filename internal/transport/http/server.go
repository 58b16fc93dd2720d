package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sable/internal/config"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/report"
	"sable/internal/store"
	"sable/internal/tracker"
)

// exportLimit 是 CSV 导出缺省的最大 K 线根数。
const exportLimit = 500

// DerivativesProvider 可选能力：资金费率与持仓量。
type DerivativesProvider interface {
	DerivativesSnapshot(ctx context.Context, symbol string) (market.DerivativesSnapshot, error)
}

type ServerParams struct {
	Addr        string
	Registry    *tracker.Registry
	Tracker     *tracker.Store
	Klines      store.KlineStore
	Source      market.Source
	Derivatives DerivativesProvider // 可为 nil
}

// Server 提供只读查询接口。所有写入都发生在 engine 内部，
// 这里永远不改状态。
type Server struct {
	addr        string
	registry    *tracker.Registry
	tr          *tracker.Store
	ks          store.KlineStore
	source      market.Source
	derivatives DerivativesProvider
	router      *gin.Engine
	srv         *http.Server
}

func NewServer(p ServerParams) (*Server, error) {
	if p.Registry == nil || p.Tracker == nil {
		return nil, errors.New("registry 和 tracker 不能为空")
	}
	if p.Addr == "" {
		p.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:        p.Addr,
		registry:    p.Registry,
		tr:          p.Tracker,
		ks:          p.Klines,
		source:      p.Source,
		derivatives: p.Derivatives,
		router:      router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	api := s.router.Group("/api")
	api.GET("/signals", s.handleSignals)
	api.GET("/signals/active", s.handleActiveSignals)
	api.GET("/stats", s.handleStats)
	api.GET("/state/:symbol", s.handleState)
	api.GET("/metrics/:symbol", s.handleMetrics)
	api.GET("/report/:symbol", s.handleReport)
	api.GET("/export/:symbol", s.handleExport)
}

// Start 在后台启动监听，ctx 结束时优雅关闭。
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	go func() {
		logger.Infof("HTTP 服务监听 %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP 服务异常退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.source != nil {
		stats := s.source.Stats()
		resp["ws"] = gin.H{
			"reconnects":       stats.Reconnects,
			"subscribe_errors": stats.SubscribeErrors,
			"last_error":       stats.LastError,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSignals(c *gin.Context) {
	records := s.registry.All()
	symbol := config.NormalizeSymbol(c.Query("symbol"))
	sigType := strings.TrimSpace(c.Query("type"))
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	filtered := records[:0:0]
	for _, rec := range records {
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		if sigType != "" && string(rec.SignalType) != sigType {
			continue
		}
		if status != "" && string(rec.Status) != status {
			continue
		}
		filtered = append(filtered, rec)
	}
	c.JSON(http.StatusOK, gin.H{"signals": filtered, "total": len(filtered)})
}

func (s *Server) handleActiveSignals(c *gin.Context) {
	active := s.registry.Active()
	c.JSON(http.StatusOK, gin.H{"signals": active, "total": len(active)})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, tracker.Summarize(s.registry.All()))
}

func (s *Server) handleState(c *gin.Context) {
	symbol := config.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 symbol"})
		return
	}
	snap := s.tr.Snapshot()
	byInterval, ok := snap[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "未跟踪该交易对"})
		return
	}
	if iv := strings.ToLower(strings.TrimSpace(c.Query("interval"))); iv != "" {
		st, ok := byInterval[iv]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未跟踪该周期"})
			return
		}
		c.JSON(http.StatusOK, st)
		return
	}
	c.JSON(http.StatusOK, byInterval)
}

func (s *Server) handleMetrics(c *gin.Context) {
	if s.derivatives == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "行情源不支持衍生品指标"})
		return
	}
	symbol := config.NormalizeSymbol(c.Param("symbol"))
	snap, err := s.derivatives.DerivativesSnapshot(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleReport(c *gin.Context) {
	if s.ks == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "没有可用的 K 线存储"})
		return
	}
	symbol := config.NormalizeSymbol(c.Param("symbol"))
	interval := strings.ToLower(strings.TrimSpace(c.DefaultQuery("interval", "1h")))
	candles, err := s.ks.Get(c.Request.Context(), symbol, interval)
	if err != nil || len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有该交易对的 K 线数据"})
		return
	}
	records := make([]tracker.SignalRecord, 0)
	for _, rec := range s.registry.All() {
		if rec.Symbol == symbol && rec.Interval == interval {
			records = append(records, rec)
		}
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.RenderHTML(c.Writer, symbol, interval, candles, records); err != nil {
		logger.Errorf("渲染报表失败 %s %s: %v", symbol, interval, err)
	}
}

func (s *Server) handleExport(c *gin.Context) {
	if s.ks == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "没有可用的 K 线存储"})
		return
	}
	symbol := config.NormalizeSymbol(c.Param("symbol"))
	interval := strings.ToLower(strings.TrimSpace(c.DefaultQuery("interval", "1h")))
	limit := exportLimit
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
			return
		}
		limit = n
	}
	var candles []market.Candle
	var err error
	if ex, ok := s.ks.(store.SnapshotExporter); ok {
		candles, err = ex.Export(c.Request.Context(), symbol, interval, limit)
	} else {
		candles, err = s.ks.Get(c.Request.Context(), symbol, interval)
		if len(candles) > limit {
			candles = candles[len(candles)-limit:]
		}
	}
	if err != nil || len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有该交易对的 K 线数据"})
		return
	}
	csv := report.BuildCandleCSV(candles, report.CandleCSVOptions{PricePrecision: report.PrecisionAuto})
	c.Header("Content-Disposition", "attachment; filename="+strings.ToLower(symbol)+"_"+interval+".csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
}
