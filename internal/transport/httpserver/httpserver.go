// Package httpserver exposes a *servercore.Server over gin, grounded on
// leanlp-BTC-coinjoin/internal/api's SetupRouter route-group/handler
// layout (spec.md §6 External Interfaces: `GET /parameters`, `POST
// /oprf`, `POST /query`).
package httpserver

import (
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moya-app/overlap-psi/internal/metrics"
	"github.com/moya-app/overlap-psi/internal/oprf"
	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/servercore"
	"github.com/moya-app/overlap-psi/internal/transport/wire"
)

// requestIDHeader is the response header carrying a per-request
// correlation id (leanlp-BTC-coinjoin's uuid.New().String() edge-id
// pattern, repurposed here for request tracing instead of graph edges).
const requestIDHeader = "X-Request-Id"

// requestID stamps every response with a fresh UUID so operators can
// correlate a client-reported failure with this process's logs.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Writer.Header().Set(requestIDHeader, id)
		c.Set("request_id", id)
		c.Next()
	}
}

// Handler wraps a *servercore.Server with gin request/response plumbing.
type Handler struct {
	server *servercore.Server
	reg    *metrics.Registry
}

// NewRouter builds a *gin.Engine exposing server's RPCs. When tokenHash is
// non-empty, the three RPC routes are gated by BearerAuth(tokenHash);
// `GET /metrics` is not gated (leanlp's
// AuthMiddleware, bcrypt-hashed token instead of plaintext-equal). When reg
// is non-nil, `GET /metrics` and a per-RPC latency/error middleware are
// also mounted (Sumatoshi-tech-codefang's dedicated-registry pattern).
func NewRouter(server *servercore.Server, tokenHash string, reg *metrics.Registry) *gin.Engine {
	r := gin.Default()
	r.Use(requestID())
	h := &Handler{server: server, reg: reg}

	if reg != nil {
		r.GET("metrics", gin.WrapH(reg.Handler()))
	}

	group := r.Group("/")
	if tokenHash != "" {
		group.Use(BearerAuth(tokenHash))
	}
	if reg != nil {
		group.Use(h.instrument())
	}
	group.GET("parameters", h.handleParameters)
	group.POST("oprf", h.handleOPRF)
	group.POST("query", h.handleQuery)

	return r
}

// instrument records RequestsTotal/RequestLatency for every route under
// this group, keyed by the matched route path.
func (h *Handler) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rpc := c.FullPath()
		h.reg.RequestsTotal.WithLabelValues(rpc).Inc()
		h.reg.RequestLatency.WithLabelValues(rpc).Observe(time.Since(start).Seconds())
	}
}

func (h *Handler) handleParameters(c *gin.Context) {
	c.JSON(http.StatusOK, h.server.Parameters())
}

func (h *Handler) handleOPRF(c *gin.Context) {
	var req wire.OPRFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, psierr.New(psierr.ProtocolViolation, "httpserver.handleOPRF", err))
		return
	}

	points := make([]oprf.Point, len(req.Points))
	for i, p := range req.Points {
		x, ok := new(big.Int).SetString(p.X, 10)
		if !ok {
			h.writeError(c, psierr.New(psierr.ProtocolViolation, "httpserver.handleOPRF", errBadCoordinate(p.X)))
			return
		}
		y, ok := new(big.Int).SetString(p.Y, 10)
		if !ok {
			h.writeError(c, psierr.New(psierr.ProtocolViolation, "httpserver.handleOPRF", errBadCoordinate(p.Y)))
			return
		}
		points[i] = oprf.Point{X: x, Y: y}
	}

	out, err := h.server.OPRF(points)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := wire.OPRFResponse{Points: make([]wire.OPRFPoint, len(out))}
	for i, p := range out {
		resp.Points[i] = wire.OPRFPoint{X: p.X.String(), Y: p.Y.String()}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleQuery(c *gin.Context) {
	var req wire.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, psierr.New(psierr.ProtocolViolation, "httpserver.handleQuery", err))
		return
	}

	publicContext, err := wire.DecodeBytes(req.PublicContext)
	if err != nil {
		h.writeError(c, psierr.New(psierr.ProtocolViolation, "httpserver.handleQuery", err))
		return
	}

	encQuery := make([][][]byte, len(req.EncQuery))
	for i, row := range req.EncQuery {
		encQuery[i] = make([][]byte, len(row))
		for j, cell := range row {
			if cell == nil {
				continue
			}
			b, err := wire.DecodeBytes(*cell)
			if err != nil {
				h.writeError(c, psierr.New(psierr.CryptoFailure, "httpserver.handleQuery", err))
				return
			}
			encQuery[i][j] = b
		}
	}

	answers, err := h.server.Query(publicContext, encQuery)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.reg != nil {
		h.reg.IntersectionSize.Observe(float64(len(answers)))
	}

	resp := wire.QueryResponse{Answers: make([]string, len(answers))}
	for i, ct := range answers {
		resp.Answers[i] = wire.EncodeBytes(ct)
	}
	c.JSON(http.StatusOK, resp)
}

// writeError maps a psierr.Kind to an HTTP status code, matching spec.md
// §7's error taxonomy to transport-level semantics.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind, ok := psierr.KindOf(err)
	status := http.StatusInternalServerError
	if ok {
		switch kind {
		case psierr.ProtocolViolation:
			status = http.StatusUnprocessableEntity
		case psierr.ParameterMismatch, psierr.CapacityExceeded:
			status = http.StatusConflict
		case psierr.CryptoFailure:
			status = http.StatusBadRequest
		case psierr.TransportFailure:
			status = http.StatusBadGateway
		}
	}
	if h.reg != nil {
		h.reg.ObserveError(c.FullPath(), string(kind))
	}
	requestID, _ := c.Get("request_id")
	c.JSON(status, wire.ErrorResponse{Error: err.Error(), Kind: string(kind), RequestID: fmt.Sprint(requestID)})
}

type errBadCoordinate string

func (e errBadCoordinate) Error() string { return "invalid OPRF point coordinate: " + string(e) }
