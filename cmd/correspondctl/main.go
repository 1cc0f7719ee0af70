package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/correspond/internal/config"
	"github.com/danmuck/correspond/internal/correspondence"
	"github.com/danmuck/correspond/internal/logging"
	"github.com/danmuck/correspond/internal/metrics"
	"github.com/danmuck/correspond/internal/peer"
	"github.com/danmuck/correspond/internal/security"
	"github.com/danmuck/correspond/internal/server"
	"github.com/danmuck/correspond/internal/transport"
	logs "github.com/danmuck/smplog"
)

var startedAt = time.Now()

func main() {
	configPath := flag.String("config", "cmd/correspondctl/config.toml", "path to server config")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		logs.Errf("correspondctl: %v", err)
		return
	}
	logging.ConfigureFromFile(logging.ProfileRuntime, cfg.LogLevel)

	rec := metrics.NewPrometheus()
	log := logging.Default()

	kind, err := transport.ResolveKind(string(cfg.Transport))
	if err != nil {
		logs.Errf("correspondctl: %v", err)
		return
	}
	tlsConfig, err := security.ServerTLSConfig(cfg.ResolvedSecurityMode(), cfg.ResolvedTLS())
	if err != nil {
		logs.Errf("correspondctl: %v", err)
		return
	}

	ln, err := transport.Listen(kind, cfg.ListenAddr, tlsConfig)
	if err != nil {
		logs.Errf("correspondctl: %v", err)
		return
	}
	defer ln.Close()

	s := server.New()
	s.SetLogger(log)
	s.SetMetrics(rec)
	registerChatHandlers(s)

	s.OnError(func(err error) {
		logs.Warnf("correspondctl: peer error: %v", err)
	})
	s.OnConnect(func(stream transport.Stream, p *peer.Peer) {
		logs.Infof("correspondctl: peer connected id=%s", p.ID())
	})

	go acceptLoop(ln, s)

	if cfg.MetricsAddr != "" {
		go serveAdmin(cfg.MetricsAddr)
	}

	logs.Infof("correspondctl: listening addr=%s transport=%s", cfg.ListenAddr, cfg.Transport)
	select {}
}

func acceptLoop(ln transport.Listener, s *server.Server) {
	for {
		stream, err := ln.Accept()
		if err != nil {
			logs.Errf("correspondctl: accept: %v", err)
			return
		}
		s.Connect(stream)
	}
}

// registerChatHandlers wires the example chat subject: every inbound chunk
// on "chat.room" is echoed back as a stream of Data frames until the
// sender finishes.
func registerChatHandlers(s *server.Server) {
	s.Handle("chat.room", func(c *correspondence.Correspondence) error {
		for body, err := range c.All() {
			if err != nil {
				return err
			}
			logs.Infof("chat.room: %v", body)
			if werr := c.Write(body); werr != nil {
				return werr
			}
		}
		return c.Finish()
	})
}

func serveAdmin(addr string) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(startedAt).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	_ = r.Run(addr)
}
