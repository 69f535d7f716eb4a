package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"latsim/config"
	"latsim/internal/engine"
	"latsim/internal/latency"
	"latsim/internal/recorder"
	"latsim/internal/replay"
	"latsim/internal/sim"
	"latsim/internal/stream"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "latsim.yaml", "path to YAML config")
	serve := flag.Bool("serve", false, "keep the HTTP/websocket server up after the run")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file, using process environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}

	runID := uuid.NewString()
	runLog := log.WithField("run_id", runID)

	lat, err := latency.NewModel(cfg.Simulation.Seed, cfg.LatencyRoutes())
	if err != nil {
		runLog.WithError(err).Fatal("latency model")
	}

	var feed replay.Feed
	if cfg.Feed.Path != "" {
		csvFeed, err := replay.NewCSVFeed(cfg.Feed.Path, cfg.Simulation.PriceTick)
		if err != nil {
			runLog.WithError(err).Fatal("open feed")
		}
		defer csvFeed.Close()
		feed = csvFeed
	}

	book := engine.NewOrderBookEngine()
	simulator := sim.NewSimulator(sim.Config{
		Horizon:   cfg.Horizon(),
		MaxEvents: cfg.Simulation.MaxEvents,
	}, book, lat, feed, runLog)

	tape := recorder.NewMemory()
	simulator.Observe(tape)

	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(runLog)
		go hub.Run(rootCtx)
		simulator.Observe(hub)
	}

	runLog.WithFields(logrus.Fields{
		"seed":    cfg.Simulation.Seed,
		"feed":    cfg.Feed.Path,
		"horizon": cfg.Simulation.HorizonMs,
	}).Info("starting run")

	summary, err := simulator.Run()
	if err != nil {
		runLog.WithError(err).Fatal("run failed")
	}

	runLog.WithFields(logrus.Fields{
		"events":           summary.EventsDispatched,
		"feed_events":      summary.FeedEvents,
		"fills":            summary.Fills,
		"volume":           summary.VolumeTraded,
		"orders":           summary.OrdersSubmitted,
		"lost":             summary.OrdersLost,
		"cancels_accepted": summary.CancelsAccepted,
		"cancels_rejected": summary.CancelsRejected,
		"end_vtime":        summary.EndTime,
	}).Info("run complete")

	if cfg.Recorder.Enabled {
		store, err := recorder.NewRunStore(recorder.DSNFromEnv())
		if err != nil {
			runLog.WithError(err).Fatal("connect run store")
		}
		defer store.Close()

		record := recorder.RunRecord{
			ID:         runID,
			Seed:       cfg.Simulation.Seed,
			Events:     int64(summary.EventsDispatched),
			Fills:      int64(summary.Fills),
			Volume:     int64(summary.VolumeTraded),
			EndVTime:   int64(summary.EndTime),
			FinishedAt: time.Now().UTC(),
		}
		if err := store.SaveRun(rootCtx, record, tape.Fills()); err != nil {
			runLog.WithError(err).Fatal("save run")
		}
		runLog.Info("run persisted")
	}

	if hub != nil {
		// final book state for anyone still subscribed
		hub.PublishTopOfBook(summary.EndTime, book.GetTopOfBook())
	}

	if cfg.Stream.Enabled && *serve {
		server := &stream.Server{
			Hub:     hub,
			Book:    book,
			Summary: func() sim.Summary { return summary },
			Log:     runLog,
		}
		httpServer := &http.Server{Addr: cfg.Stream.Addr, Handler: server.Routes()}
		go func() {
			<-rootCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		runLog.WithField("addr", cfg.Stream.Addr).Info("serving results")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			runLog.WithError(err).Fatal("http server")
		}
	}
}
