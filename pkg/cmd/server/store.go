package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	_ "github.com/lib/pq"
	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/notify/config"
	"github.com/nsyszr/notify/pkg/api"
	"github.com/nsyszr/notify/pkg/dispatch"
	"github.com/nsyszr/notify/pkg/storage"
	"github.com/nsyszr/notify/pkg/storage/memory"
	"github.com/nsyszr/notify/pkg/storage/postgres"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type storeServer struct {
	c      *config.Config
	quitCh chan bool
	doneCh chan bool

	nc    *nats.Conn
	db    *sqlx.DB
	store storage.Interface
}

func init() {
	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
	}
	logrus.SetFormatter(formatter)

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

func newStoreServer(c *config.Config) (*storeServer, error) {
	s := &storeServer{
		c:      c,
		quitCh: make(chan bool),
		doneCh: make(chan bool),
	}

	nc, err := nats.Connect(c.NATSServerURL,
		nats.DrainTimeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats connection lost: ", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats connection reestablished")
		}))
	if err != nil {
		return nil, err
	}
	s.nc = nc

	// Without a database URL the server falls back to the in-memory
	// store, which is good enough for development and demos.
	if c.DatabaseURL != "" {
		db, err := sqlx.Open("postgres", c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		s.db = db
		s.store = postgres.NewStore(db)
	} else {
		log.Warn("no DATABASE_URL configured, using in-memory store")
		s.store = memory.NewStore()
	}

	return s, nil
}

func (s *storeServer) Serve() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(logger())

	// The dispatcher consumes the priority queues and republishes on
	// the delivery topics.
	d := dispatch.New(s.nc, s.store)
	if err := d.Subscribe(); err != nil {
		log.Error("failed to start dispatcher: ", err)
	}

	// Register API endpoints
	handler := api.NewHandler(s.nc, &natsSubscriber{nc: s.nc}, s.store)
	handler.RegisterRoutes(e)

	go func() {
		log.WithFields(log.Fields{
			"host": s.c.BindHost,
			"port": s.c.BindPort,
		}).Info("Starting server")

		if err := e.Start(fmt.Sprintf("%s:%d", s.c.BindHost, s.c.BindPort)); err != nil {
			e.Logger.Info("Shutting down the server")
		}
	}()

	// Wait until receiving the quit signal
	<-s.quitCh
	log.Info("Shutdown signal received")

	// Create a 10 second timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the echo web server
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Error(err)
	}

	// We've done!
	s.doneCh <- true
}

func (s *storeServer) Shutdown() {
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.db != nil {
		s.db.Close()
	}

	// Send the quit signal to the server.Serve() routine
	s.quitCh <- true

	// Wait up to 10 seconds
	select {
	case <-s.doneCh:
		log.Info("Shutdown server successful")
	case <-time.After(10 * time.Second):
		log.Error("Shutdown server failed")
	}
}

// natsSubscriber adapts *nats.Conn to the api.Subscriber interface of
// the realtime bridge.
type natsSubscriber struct {
	nc *nats.Conn
}

func (s *natsSubscriber) Subscribe(subject string, handler func(subject string, data []byte)) (api.Unsubscriber, error) {
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Logger returns a middleware that logs HTTP requests.
func logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			var err error
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			reqSizeStr := req.Header.Get(echo.HeaderContentLength)
			if reqSizeStr == "" {
				reqSizeStr = "0"
			}
			reqSize, err := strconv.ParseInt(reqSizeStr, 10, 0)
			if err != nil {
				reqSize = -1
			}
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}

			log.WithFields(log.Fields{
				"timestamp":     stop.Format(time.RFC3339),
				"id":            id,
				"remote_ip":     c.RealIP(),
				"host":          req.Host,
				"method":        req.Method,
				"uri":           req.RequestURI,
				"protocol":      req.Proto,
				"user_agent":    req.UserAgent(),
				"status":        res.Status,
				"status_text":   http.StatusText(res.Status),
				"referer":       req.Referer(),
				"error":         errMsg,
				"bytes_in":      reqSize,
				"bytes_out":     res.Size,
				"latency":       stop.Sub(start).Nanoseconds(),
				"latency_human": stop.Sub(start).String(),
			}).Infof("%s %s %s %d %s", req.Method, req.RequestURI, req.Proto,
				res.Status, strconv.FormatInt(res.Size, 10))

			return err
		}
	}
}

// RunServeStore starts the notification store service: REST API,
// dispatcher and realtime bridge.
func RunServeStore(c *config.Config) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		s, err := newStoreServer(c)
		if err != nil {
			log.Error("failed to create new server instance: ", err)
			os.Exit(1)
		}

		go s.Serve()

		// Wait for interrupt signal to gracefully shutdown the server
		quitCh := make(chan os.Signal, 1)
		signal.Notify(quitCh, os.Interrupt)
		<-quitCh

		// Shutdown the server
		s.Shutdown()
	}
}
