package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moyoez/productshot/api/controllers"
	"github.com/moyoez/productshot/api/middlewares"
	"github.com/moyoez/productshot/api/models"
	"github.com/moyoez/productshot/api/notifyhub"
	"github.com/moyoez/productshot/metrics"
	"github.com/moyoez/productshot/notify"
	"github.com/moyoez/productshot/storage"
	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

// Server is the product submission HTTP server.
type Server struct {
	cfg      types.ServerConfig
	repo     models.Repository
	store    storage.Store
	hub      *notifyhub.Hub
	registry *prometheus.Registry
	metrics  *metrics.Server
	products *controllers.ProductController

	mu     sync.RWMutex
	engine *gin.Engine
	server *http.Server
}

// Open creates the repository and blob store named in cfg and builds a server on them.
func Open(ctx context.Context, cfg types.ServerConfig) (*Server, error) {
	repo, err := models.NewRepository(ctx, cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %v", err)
	}
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to open storage: %v", err)
	}
	return NewServer(cfg, repo, store), nil
}

// NewServer wires the controllers to repo and store. The server owns both and closes them on Close.
func NewServer(cfg types.ServerConfig, repo models.Repository, store storage.Store) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.NewServer(metrics.WithRegistry(registry))
	hub := notifyhub.New()

	s := &Server{
		cfg:      cfg,
		repo:     repo,
		store:    store,
		hub:      hub,
		registry: registry,
		metrics:  m,
	}
	s.products = controllers.NewProductController(repo, store,
		controllers.WithServerMetrics(m),
		controllers.WithNotifier(notify.New(hub, cfg.NotifySocket)),
		controllers.WithMaxUpload(cfg.MaxUploadMB<<20),
		controllers.WithPublicURL(cfg.PublicURL),
	)
	return s
}

// Registry exposes the server's Prometheus registry so callers can add collectors to /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Hub is the websocket fan-out of upload events.
func (s *Server) Hub() *notifyhub.Hub {
	return s.hub
}

// Handler builds the routing engine once and returns it.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

func (s *Server) setupRoutes() *gin.Engine {
	engine := gin.New()
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		engine.Use(gin.Logger())
	}
	engine.Use(gin.Recovery())
	engine.Use(middlewares.AllowAllCORS())
	engine.Use(s.metrics.Middleware())

	engine.GET("/csrf", controllers.IssueCSRFToken)
	engine.GET("/ws/notify", notifyhub.HandleNotifyWS(s.hub))
	engine.GET("/metrics", middlewares.OnlyAllowLocal, gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	products := engine.Group("/products", middlewares.RequireCSRF(s.cfg.CSRF))
	{
		products.GET("/", s.products.Dashboard)
		products.POST("/submit/", s.products.Create)
		products.GET("/submit/:pk/", s.products.Get)
		products.POST("/submit/:pk/", s.products.Submit)
		products.POST("/submit/:pk/ajax-upload/", middlewares.RateLimit(s.cfg.UploadRate, s.cfg.UploadBurst), s.products.AjaxUpload)
		products.POST("/submit/:pk/delete-image/", s.products.DeleteImage)
		products.POST("/submit/:pk/validate/", s.products.Validate)
		products.GET("/submit/:pk/qrcode", s.products.QRCode)
	}

	if local, ok := s.store.(*storage.Local); ok && strings.HasPrefix(local.BaseURL(), "/") {
		engine.Static(local.BaseURL(), local.Dir())
		tool.DefaultLogger.Infof("[Server] Serving stored images from %s at %s", local.Dir(), local.BaseURL())
	}
	return engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	handler := s.Handler()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	protocol := s.cfg.Protocol
	if protocol == "" {
		protocol = "http"
	}
	tool.DefaultLogger.Infof("Starting API server on %s://0.0.0.0:%d", protocol, s.cfg.Port)
	if s.cfg.PublicURL == "" {
		for _, u := range tool.ServerURLs(protocol, s.cfg.Port, tool.LocalIPv4Addresses()) {
			tool.DefaultLogger.Infof("Reachable on the local network at %s", u)
		}
	}

	var err error
	if protocol == "https" {
		cert, generated, certErr := tool.GetOrCreateTLSCert(&s.cfg)
		if certErr != nil {
			return fmt.Errorf("failed to get TLS certificate: %v", certErr)
		}
		if generated {
			cfg := tool.GetCurrentConfig()
			cfg.Server.CertPEM, cfg.Server.KeyPEM = s.cfg.CertPEM, s.cfg.KeyPEM
			tool.PersistAppConfig(cfg)
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		tool.DefaultLogger.Infof("TLS certificate configured for HTTPS")
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Close releases the repository and the blob store.
func (s *Server) Close() error {
	return errors.Join(s.store.Close(), s.repo.Close())
}
