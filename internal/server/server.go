package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"craftshop-backend/internal/config"
	"craftshop-backend/internal/domain"
	"craftshop-backend/internal/metrics"
	"craftshop-backend/internal/patterns"
	"craftshop-backend/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	callerKey    = "caller"
	requestIDKey = "request_id"
)

type Server struct {
	engine  *gin.Engine
	auth    *usecase.AuthService
	catalog *usecase.CatalogService
	cart    *usecase.CartService
	orders  *usecase.OrderService
	breaker *patterns.Breaker
	keyID   string
}

type Deps struct {
	Auth    *usecase.AuthService
	Catalog *usecase.CatalogService
	Cart    *usecase.CartService
	Orders  *usecase.OrderService
	// Breaker guards the payment gateway; its state is shown on /health.
	Breaker *patterns.Breaker
	// KeyID is the public gateway key handed to the checkout widget.
	KeyID   string
}

func New(cfg config.Config, d Deps) *Server {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLog(), cors(), metrics.PrometheusMiddleware(metrics.Service))
	s := &Server{
		engine:  r,
		auth:    d.Auth,
		catalog: d.Catalog,
		cart:    d.Cart,
		orders:  d.Orders,
		breaker: d.Breaker,
		keyID:   d.KeyID,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		h := gin.H{"status": "healthy"}
		if s.breaker != nil {
			h["payment_circuit"] = s.breaker.State()
		}
		c.JSON(http.StatusOK, h)
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.POST("/user/admin", s.handleAdminLogin)

	product := api.Group("/product")
	product.GET("/list", s.handleListProducts)
	product.GET("/:id", s.handleGetProduct)
	product.POST("/add", s.authenticate(), s.handleAddProduct)
	product.DELETE("/:id", s.authenticate(), s.handleRemoveProduct)

	api.POST("/cart/quote", s.handleQuote)

	order := api.Group("/order", s.authenticate())
	order.POST("/place", s.handlePlaceCOD)
	order.POST("/create-razorpay-order", s.handleCreateIntent)
	order.POST("/verify-razorpay-payment", s.handleVerifyPayment)
	order.GET("/user", s.handleUserOrders)
	order.GET("/user/:orderId", s.handleUserOrder)
	order.PUT("/cancel/:orderId", s.handleCancel)
	order.GET("/all", s.handleAllOrders)
	order.PUT("/status/:orderId", s.handleUpdateStatus)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"request_id": c.GetString(requestIDKey),
		}).Info("request")
	}
}

// authenticate resolves the caller from the token header or a Bearer
// Authorization header.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := strings.TrimSpace(c.GetHeader("token"))
		if tok == "" {
			if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
				tok = strings.TrimSpace(h[7:])
			}
		}
		caller, err := s.auth.Verify(tok)
		if err != nil {
			s.err(c, http.StatusUnauthorized, "Unauthorized", "not authorized, login again")
			c.Abort()
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func callerOf(c *gin.Context) domain.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(domain.Caller)
	return caller
}

type adminLoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleAdminLogin(c *gin.Context) {
	var req adminLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	tok, err := s.auth.AdminLogin(req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": tok})
}

func (s *Server) handleListProducts(c *gin.Context) {
	ps, err := s.catalog.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": ps})
}

func (s *Server) handleGetProduct(c *gin.Context) {
	p, err := s.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "product": p})
}

type addProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	Bestseller  bool            `json:"bestseller"`
}

func (s *Server) handleAddProduct(c *gin.Context) {
	var req addProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	p, err := s.catalog.Add(c.Request.Context(), callerOf(c), usecase.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Images:      req.Images,
		Bestseller:  req.Bestseller,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "product": p})
}

func (s *Server) handleRemoveProduct(c *gin.Context) {
	if err := s.catalog.Remove(c.Request.Context(), callerOf(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type quoteReq struct {
	Items map[string]int `json:"items"`
}

func (s *Server) handleQuote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	q, err := s.cart.Quote(c.Request.Context(), req.Items)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handlePlaceCOD(c *gin.Context) {
	var d usecase.OrderDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	o, err := s.orders.PlaceCOD(c.Request.Context(), d, callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "order": o})
}

type createIntentReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleCreateIntent(c *gin.Context) {
	var req createIntentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	in, err := s.orders.CreateIntent(c.Request.Context(), req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"orderId":  in.ID,
		"amount":   in.Amount,
		"currency": in.Currency,
		"keyId":    s.keyID,
	})
}

type verifyPaymentReq struct {
	OrderID   string             `json:"razorpay_order_id"`
	PaymentID string             `json:"razorpay_payment_id"`
	Signature string             `json:"razorpay_signature"`
	OrderData usecase.OrderDraft `json:"orderData"`
}

func (s *Server) handleVerifyPayment(c *gin.Context) {
	var req verifyPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	o, err := s.orders.VerifyAndPlace(c.Request.Context(), req.OrderID, req.PaymentID, req.Signature, req.OrderData, callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment verified and order placed", "order": o})
}

func (s *Server) handleUserOrders(c *gin.Context) {
	os, err := s.orders.ListForUser(c.Request.Context(), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": os})
}

func (s *Server) handleUserOrder(c *gin.Context) {
	o, err := s.orders.GetForUser(c.Request.Context(), c.Param("orderId"), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": o})
}

func (s *Server) handleCancel(c *gin.Context) {
	o, err := s.orders.Cancel(c.Request.Context(), c.Param("orderId"), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": o})
}

func (s *Server) handleAllOrders(c *gin.Context) {
	page, size := pageParams(c)
	os, total, err := s.orders.ListAll(c.Request.Context(), callerOf(c), page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": os, "total": total, "page": page, "pageSize": size})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

type updateStatusReq struct {
	Status domain.OrderStatus `json:"orderStatus"`
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	o, err := s.orders.UpdateStatus(c.Request.Context(), c.Param("orderId"), req.Status, callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": o})
}

// fail maps a usecase error onto the error envelope.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.WithField("request_id", c.GetString(requestIDKey)).WithError(err).Error("request failed")
		msg = "internal error"
	}
	s.err(c, status, code, msg)
}

func statusOf(err error) (int, string) {
	var (
		notFound usecase.ErrNotFound
		conflict usecase.ErrConflict
		bad      usecase.ErrBadRequest
	)
	switch {
	case errors.Is(err, usecase.ErrInvalidSignature):
		return http.StatusBadRequest, "InvalidSignature"
	case errors.Is(err, usecase.ErrInvalidAmount):
		return http.StatusBadRequest, "InvalidAmount"
	case errors.Is(err, usecase.ErrInvalidTransition):
		return http.StatusConflict, "InvalidTransition"
	case errors.Is(err, usecase.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "GatewayUnavailable"
	case errors.Is(err, usecase.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, usecase.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "NotFound"
	case errors.As(err, &conflict):
		return http.StatusConflict, "Conflict"
	case errors.As(err, &bad):
		return http.StatusBadRequest, "BadRequest"
	}
	return http.StatusInternalServerError, "ServerError"
}

func (s *Server) err(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   msg,
			"requestId": c.GetString(requestIDKey),
		},
	})
}
