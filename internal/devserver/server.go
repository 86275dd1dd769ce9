package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jondoveston/monitop/internal/client"
)

// DefaultSampleInterval is how often history is recorded
const DefaultSampleInterval = 5 * time.Second

// Options configures a Server
type Options struct {
	ServiceName    string
	Probe          Probe
	History        *History
	SampleInterval time.Duration
	// RateLimit is requests per second per client, zero disables limiting
	RateLimit float64
	Logger    logr.Logger
}

// Server is a small monitoring backend speaking the same API the dashboard polls
type Server struct {
	name     string
	probe    Probe
	history  *History
	tracer   *Tracer
	interval time.Duration
	limit    float64
	logger   logr.Logger
	started  time.Time

	requests   atomic.Int64
	totalNanos atomic.Int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a server. A nil probe reads the real host with gopsutil and a
// nil history is kept in memory.
func New(opts Options) (*Server, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "monitop-devserver"
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.Probe == nil {
		probe, err := NewSystemProbe()
		if err != nil {
			return nil, err
		}
		opts.Probe = probe
	}
	if opts.History == nil {
		history, err := NewHistory("", 0)
		if err != nil {
			return nil, err
		}
		opts.History = history
	}

	return &Server{
		name:     opts.ServiceName,
		probe:    opts.Probe,
		history:  opts.History,
		tracer:   NewTracer(),
		interval: opts.SampleInterval,
		limit:    opts.RateLimit,
		logger:   opts.Logger.WithName("devserver"),
		started:  time.Now(),
		limiters: map[string]*rate.Limiter{},
	}, nil
}

// Tracer exposes the function tracer
func (s *Server) Tracer() *Tracer {
	return s.tracer
}

// Router builds the gin engine serving the API
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	if s.limit > 0 {
		r.Use(s.rateLimit())
	}

	api := r.Group(client.DefaultPrefix)
	{
		api.GET("/"+client.EndpointServiceInfo, s.getServiceInfo)
		api.GET("/"+client.EndpointMetrics, s.getMetrics)
		api.GET("/"+client.EndpointGoRoutines, s.getGoRoutines)
		api.POST("/"+client.EndpointServiceMetrics, s.postServiceMetrics)
		api.POST("/"+client.EndpointReports, s.postReports)
		api.GET("/"+client.EndpointFunctions, s.getFunctions)
		api.GET("/"+client.EndpointFunctionDetails, s.getFunctionDetails)
	}
	return r
}

// Sample records one set of history values
func (s *Server) Sample(ctx context.Context) error {
	var err error
	s.tracer.Trace("devserver.Sample", func() {
		var sample Sample
		sample, err = s.collect(ctx)
		if err != nil {
			return
		}
		err = s.history.Record(sample.At, sample.HistoryValues())
	})
	return err
}

// Run serves on addr and samples history until ctx ends
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("serving", "addr", addr, "prefix", client.DefaultPrefix)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("devserver: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if err := s.Sample(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(err, "failed to sample")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	err := g.Wait()
	if cerr := s.history.Close(); cerr != nil {
		s.logger.Error(cerr, "failed to close history")
	}
	return err
}

func (s *Server) collect(ctx context.Context) (Sample, error) {
	return Collect(ctx, s.probe, s.started, s.requests.Load(), time.Duration(s.totalNanos.Load()))
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		s.requests.Add(1)
		s.totalNanos.Add(int64(elapsed))
		s.logger.V(1).Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", elapsed,
			"requestID", c.GetHeader("X-Request-Id"),
		)
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		s.mu.Lock()
		limiter, ok := s.limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(s.limit), int(s.limit*2)+1)
			s.limiters[ip] = limiter
		}
		s.mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) getServiceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, client.ServiceInfo{
		ServiceName:      s.name,
		GoVersion:        runtime.Version(),
		ServiceStartTime: s.started,
		ProcessID:        os.Getpid(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	unit := strings.ToUpper(c.DefaultQuery("unit", "MB"))
	sample, err := s.collect(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sample.Payload(unit))
}

func (s *Server) getGoRoutines(c *gin.Context) {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	stacks := strings.Split(strings.TrimSpace(string(buf[:n])), "\n\n")
	c.JSON(http.StatusOK, client.GoRoutinesStats{
		NumberOfGoroutines: runtime.NumGoroutine(),
		StackView:          stacks,
	})
}

func (s *Server) postServiceMetrics(c *gin.Context) {
	var req client.HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to decode request"})
		return
	}
	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	points, err := s.history.Query(req.FieldNames, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, points)
}

func (s *Server) postReports(c *gin.Context) {
	var req client.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to decode request"})
		return
	}
	fields, err := ReportFields(req.Topic)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	points, err := s.history.Query(fields, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, BuildReport(fields, points, start, end))
}

func (s *Server) getFunctions(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracer.Functions())
}

func (s *Server) getFunctionDetails(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	details, err := s.tracer.Details(name, c.DefaultQuery("reportType", ReportText))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, details)
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339Nano, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q", startRaw)
	}
	end, err := time.Parse(time.RFC3339Nano, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time %q", endRaw)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end time is before start time")
	}
	return start, end, nil
}
