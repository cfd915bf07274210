// Package bridge wires the tank controller to the control plane: the serial
// link, the telemetry pipeline, the audit trail, and the local API.
package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tankbridge/pkg/audit"
	"tankbridge/pkg/calib"
	"tankbridge/pkg/config"
	"tankbridge/pkg/events"
	"tankbridge/pkg/remote"
	"tankbridge/pkg/serial"
	"tankbridge/pkg/telemetry"
)

// Run starts the bridge and blocks until SIGINT or SIGTERM. Configuration
// errors abort here; at steady state nothing is allowed to kill the process.
func Run(conf config.Config, unixSocketPath string) error {
	// Degenerate calibration must fail now, not per-sample.
	conv, err := calib.NewConverter(conf.Calibration())
	if err != nil {
		logrus.Fatalf("invalid calibration: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	// The event store is best-effort: a broken database logs and disables
	// event persistence, nothing more.
	var eventStore *events.Store
	if path := conf.EventDBPath(); path != "" {
		eventStore, err = events.Open(path)
		if err != nil {
			logrus.Errorf("event store disabled: %v", err)
		}
	}
	eventStore.Record(events.TypeStartup, "")

	auditLog := audit.New(conf.AuditPath())

	var rotator *cron.Cron
	if sched := conf.RotateSchedule(); sched != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		rotator = cron.New(cron.WithParser(parser))
		_, err := rotator.AddFunc(sched, func() {
			if err := auditLog.Rotate(time.Now()); err != nil {
				logrus.Errorf("audit rotation failed: %v", err)
				return
			}
			logrus.Info("audit file rotated")
		})
		if err != nil {
			logrus.Fatalf("invalid audit rotation schedule %q: %v", sched, err)
		}
		rotator.Start()
	}

	link := serial.New(serial.Config{
		PortName:       conf.SerialPort(),
		BaudRate:       conf.BaudRate(),
		ReadTimeout:    conf.ReadTimeout(),
		ReconnectDelay: conf.ReconnectDelay(),
		SettleDelay:    conf.SettleDelay(),
	})
	rs := remote.New(conf.PushURL(), conf.PullURL(), conf.HTTPTimeout())
	decoder := telemetry.NewDecoder(conf.HandshakeToken())

	loop := NewLoop(conf, link, decoder, conv, rs, auditLog, eventStore)

	// Serve the local API on a unix socket.
	router := setupRoutes(loop)
	srv := &http.Server{Handler: router}

	_ = os.Remove(unixSocketPath)
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		logrus.Debugln("control loop starts")
		loop.Run(ctx)
		close(loopDone)
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	cancel()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	// The loop closes the serial handle on its way out.
	<-loopDone

	if rotator != nil {
		rotator.Stop()
	}

	eventStore.Record(events.TypeShutdown, "")
	if err := eventStore.Close(); err != nil {
		logrus.Errorf("failed to close event store: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
