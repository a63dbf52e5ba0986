// Package gateway implements a JSON HTTP API over the blog service.
//
// Each request is tagged with a trace identifier read from, or written to, the
// X-Trace-ID header. The Prometheus collectors of the components are served
// at /metrics.
package gateway

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.dedis.ch/chainblog"
	"go.dedis.ch/chainblog/blog"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"go.dedis.ch/chainblog/wallet"
	"golang.org/x/xerrors"
)

// TraceHeader is the header that carries the trace identifier of a request.
const TraceHeader = "X-Trace-ID"

const traceKey = "trace"

// Service is the interface of the blog operations served by the gateway.
type Service interface {
	Account() wallet.Account
	Balance(ctx context.Context) (ledger.Account, error)
	List(ctx context.Context) ([]post.Post, error)
	Get(ctx context.Context, id uint64) (post.Post, error)
	Create(ctx context.Context, draft post.Draft) (blog.Result, error)
	Edit(ctx context.Context, id uint64, draft post.Draft) (blog.Result, error)
	Vote(ctx context.Context, id uint64, dir post.Direction) (blog.Result, error)
	Delete(ctx context.Context, id uint64) (blog.Result, error)
}

// Response is the body of every response.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// AccountInfo is the body of the account route.
type AccountInfo struct {
	wallet.Account

	Amount uint64 `json:"amount"`
	Round  uint64 `json:"round"`
}

// Gateway is an HTTP server over the blog service.
type Gateway struct {
	sync.Mutex

	service  Service
	engine   *gin.Engine
	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewGateway creates a gateway over the service. The registry is filled with
// the collectors of the components.
func NewGateway(service Service) *Gateway {
	gin.SetMode(gin.ReleaseMode)

	g := &Gateway{
		service:  service,
		engine:   gin.New(),
		registry: prometheus.NewRegistry(),
		logger:   chainblog.Logger.With().Str("component", "gateway").Logger(),
	}

	for _, c := range chainblog.PromCollectors {
		err := g.registry.Register(c)
		if err != nil {
			g.logger.Warn().Err(err).Msg("collector not registered")
		}
	}

	g.engine.Use(g.traceMiddleware(), gin.Recovery())

	g.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})))

	api := g.engine.Group("/api")
	{
		api.GET("/account", g.getAccount)
		api.GET("/posts", g.listPosts)
		api.GET("/posts/:id", g.getPost)
		api.POST("/posts", g.createPost)
		api.PUT("/posts/:id", g.editPost)
		api.POST("/posts/:id/upvote", g.vote(post.Upvote))
		api.POST("/posts/:id/downvote", g.vote(post.Downvote))
		api.DELETE("/posts/:id", g.deletePost)
	}

	return g
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	g.engine.ServeHTTP(w, req)
}

// Listen starts to serve the requests on the address in a goroutine.
func (g *Gateway) Listen(addr string) error {
	g.Lock()
	defer g.Unlock()

	if g.server != nil {
		return xerrors.New("gateway already listening")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return xerrors.Errorf("failed to listen: %v", err)
	}

	g.listener = ln
	g.server = &http.Server{
		Handler:           g.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")

	go func() {
		err := g.server.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			g.logger.Err(err).Msg("gateway stopped")
		}
	}()

	return nil
}

// Addr returns the address of the listener, or nil if the gateway is not
// listening.
func (g *Gateway) Addr() net.Addr {
	g.Lock()
	defer g.Unlock()

	if g.listener == nil {
		return nil
	}

	return g.listener.Addr()
}

// Stop shuts the server down and waits for the requests in progress.
func (g *Gateway) Stop(ctx context.Context) error {
	g.Lock()
	defer g.Unlock()

	if g.server == nil {
		return nil
	}

	err := g.server.Shutdown(ctx)
	if err != nil {
		return xerrors.Errorf("failed to shutdown: %v", err)
	}

	g.server = nil
	g.listener = nil

	return nil
}

func (g *Gateway) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(traceKey, traceID)
		c.Header(TraceHeader, traceID)

		start := time.Now()

		c.Next()

		g.logger.Debug().
			Str("trace", traceID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (g *Gateway) getAccount(c *gin.Context) {
	balance, err := g.service.Balance(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}

	g.success(c, AccountInfo{
		Account: g.service.Account(),
		Amount:  balance.Amount,
		Round:   balance.Round,
	})
}

func (g *Gateway) listPosts(c *gin.Context) {
	posts, err := g.service.List(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}

	g.success(c, posts)
}

func (g *Gateway) getPost(c *gin.Context) {
	id, ok := g.parseID(c)
	if !ok {
		return
	}

	p, err := g.service.Get(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}

	g.success(c, p)
}

func (g *Gateway) createPost(c *gin.Context) {
	draft, ok := g.parseDraft(c)
	if !ok {
		return
	}

	res, err := g.service.Create(c.Request.Context(), draft)
	if err != nil {
		g.fail(c, err)
		return
	}

	g.success(c, res)
}

func (g *Gateway) editPost(c *gin.Context) {
	id, ok := g.parseID(c)
	if !ok {
		return
	}

	draft, ok := g.parseDraft(c)
	if !ok {
		return
	}

	res, err := g.service.Edit(c.Request.Context(), id, draft)
	if err != nil {
		g.fail(c, err)
		return
	}

	g.success(c, res)
}

func (g *Gateway) vote(dir post.Direction) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := g.parseID(c)
		if !ok {
			return
		}

		res, err := g.service.Vote(c.Request.Context(), id, dir)
		if err != nil {
			g.fail(c, err)
			return
		}

		g.success(c, res)
	}
}

func (g *Gateway) deletePost(c *gin.Context) {
	id, ok := g.parseID(c)
	if !ok {
		return
	}

	res, err := g.service.Delete(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}

	g.success(c, res)
}

func (g *Gateway) parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		g.write(c, http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "invalid post id",
		})

		return 0, false
	}

	return id, true
}

func (g *Gateway) parseDraft(c *gin.Context) (post.Draft, bool) {
	var draft post.Draft

	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&draft)
	if err == nil {
		err = draft.Validate()
	}

	if err != nil {
		g.write(c, http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "invalid draft: " + err.Error(),
		})

		return draft, false
	}

	return draft, true
}

func (g *Gateway) success(c *gin.Context, data interface{}) {
	g.write(c, http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status := StatusOf(err)

	if status == http.StatusInternalServerError {
		g.logger.Err(err).Str("trace", c.GetString(traceKey)).Msg("request failed")
	}

	g.write(c, status, Response{
		Code:    status,
		Message: err.Error(),
	})
}

func (g *Gateway) write(c *gin.Context, status int, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		g.logger.Err(err).Msg("failed to encode response")
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(status, "application/json; charset=utf-8", data)
}

// StatusOf returns the HTTP status of the reason of the error.
func StatusOf(err error) int {
	switch ledger.ReasonOf(err) {
	case ledger.NotFound:
		return http.StatusNotFound
	case ledger.Unauthorized, ledger.SigningRejected:
		return http.StatusForbidden
	case ledger.SubmissionRejected:
		return http.StatusConflict
	case ledger.ConfirmationTimeout:
		return http.StatusGatewayTimeout
	case ledger.CodecError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
