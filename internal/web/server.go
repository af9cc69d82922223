package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server is the combined HTTP+WebSocket external surface, optionally
// over TLS (§6's CLI/environment summary: "HTTP+WebSocket surface on a
// configured TLS port").
type Server struct {
	addr       string
	tlsCert    string
	tlsKey     string
	engine     *gin.Engine
	hub        *Hub
	httpServer *http.Server
	logger     *log.Logger
}

// NewServer builds a Server; handlers and hub are registered onto the
// gin engine before Start is called.
func NewServer(addr, tlsCert, tlsKey string, handlers *Handlers, hub *Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[web] ", log.LstdFlags)
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	handlers.Register(engine)
	engine.GET("/ws", func(c *gin.Context) { hub.ServeWS(c.Writer, c.Request) })

	return &Server{
		addr:    addr,
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
		engine:  engine,
		hub:     hub,
		logger:  logger,
	}
}

// Start runs the hub loop and the HTTP(S) listener in the background.
func (s *Server) Start() {
	go s.hub.Run()

	s.httpServer = &http.Server{Addr: s.addr, Handler: s.engine}
	go func() {
		var err error
		if s.tlsCert != "" && s.tlsKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.tlsCert, s.tlsKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Printf("listen error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server and the WebSocket hub
// within a bounded timeout, per §5's cancellation discipline.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}
	s.hub.Stop()
}
