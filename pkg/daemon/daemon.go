package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/batch"
	"github.com/charlie0129/q0/pkg/config"
	"github.com/charlie0129/q0/pkg/events"
	"github.com/charlie0129/q0/pkg/publish"
	"github.com/charlie0129/q0/pkg/store"
)

var (
	conf   config.Config
	sseHub *events.EventHub
	reg    = newRegistry()
	// db is nil unless a database URL is configured.
	db Store
	// pub is nil unless an MQTT broker is configured.
	pub batch.Sink
)

// sinks returns where processed sessions go besides the registry.
func sinks() batch.Sinks {
	var out batch.Sinks
	if db != nil {
		out = append(out, db)
	}
	if pub != nil {
		out = append(out, pub)
	}
	return out
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.PUT("/min-run-duration", setMinRunDuration)
	router.PUT("/check-upstream-level", setCheckUpstreamLevel)
	router.POST("/calibrations", postCalibration)
	router.GET("/calibrations/:id", getCalibration)
	router.POST("/measurements", postMeasurement)
	router.GET("/measurements/:id", getMeasurement)
	router.GET("/schedule", getSchedule)
	router.PUT("/schedule", setSchedule)
	router.POST("/schedule/skip", skipSchedule)
	router.POST("/schedule/postpone", postponeSchedule)
	router.POST("/schedule/run", runSchedule)
	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	if f, ok := conf.(*config.File); ok {
		logrus.WithFields(f.LogrusFields()).Infof("config loaded")
	}

	sseHub = events.NewEventHub()

	if err := reg.load(filepath.Join(conf.DataDir(), "curves.json")); err != nil {
		logrus.WithError(err).Warn("failed to load stored calibration curves")
	}

	if url := conf.DatabaseURL(); url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := store.New(ctx, url)
		if err == nil {
			err = st.Migrate(ctx)
		}
		cancel()
		if err != nil {
			logrus.Fatalf("failed to open database: %v", err)
		}
		db = st
		defer st.Close()
		logrus.Info("persisting sessions to database")
	}

	if broker := conf.MQTTBroker(); broker != "" {
		p, err := publish.Connect(broker, conf.MQTTTopic())
		if err != nil {
			logrus.WithError(err).Error("sessions will not be published")
		} else {
			pub = p
			defer p.Close()
			logrus.WithField("topic", conf.MQTTTopic()).Info("publishing sessions to MQTT")
		}
	}

	if expr := conf.BatchSchedule(); expr != "" {
		if err := sched.Schedule(expr); err != nil {
			logrus.Errorf("invalid batch schedule %q: %v", expr, err)
		}
	}
	sched.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
			if err := sched.Schedule(conf.BatchSchedule()); err != nil {
				logrus.Errorf("invalid batch schedule %q: %v", conf.BatchSchedule(), err)
			}
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// A socket left behind by a crashed daemon blocks Listen.
	if err := os.Remove(unixSocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	var public *http.Server
	if addr := conf.HTTPListen(); addr != "" {
		public = &http.Server{
			Addr:              addr,
			Handler:           setupPublicRoutes(conf.AllowedOrigins()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logrus.Infof("read-only http server listening on %s", addr)
			if err := public.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("read-only http server failed: %v", err)
			}
		}()
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("closing event streams")
	sseHub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	if public != nil {
		if err := public.Shutdown(ctx); err != nil {
			logrus.Errorf("failed to shutdown read-only http server: %v", err)
		}
	}
	cancel()

	logrus.Info("stopping batch scheduler")
	sched.Stop()

	logrus.Info("exiting")
	return nil
}
