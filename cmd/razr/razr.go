package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/AMEND09/Razr/internal/api"
	"github.com/AMEND09/Razr/internal/config"
	"github.com/AMEND09/Razr/internal/db"
	"github.com/AMEND09/Razr/internal/imu"
	"github.com/AMEND09/Razr/internal/orientation"
	"github.com/AMEND09/Razr/internal/sensormux"
	"github.com/AMEND09/Razr/internal/session"
	"github.com/AMEND09/Razr/internal/timeutil"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode with a simulated sensor")
	listen     = flag.String("listen", ":8080", "Listen address")
	port       = flag.String("port", "/dev/ttyUSB0", "Serial port to use (ignored in dev mode)")
	baud       = flag.Int("baud", 115200, "Serial baud rate")
	dbPath     = flag.String("db-path", "razr.db", "Path to the sqlite database file")
	configPath = flag.String("config", "", "Path to a tuning config JSON file")
)

// devFixture is a canned flip/unflip cycle fed through the mock port in dev
// mode: uptime_ms,accel_z,tilt_deg lines long enough to pass the debounce.
const devFixture = `100,0.12,4.1
200,0.10,3.9
300,-0.45,88.2
400,-0.81,161.5
500,-0.93,168.0
600,-0.95,171.2
700,-0.96,170.8
800,-0.94,169.9
900,-0.40,95.3
1000,0.05,22.1
1100,0.11,8.4
1200,0.14,6.0
`

func main() {
	flag.Parse()

	// migrate subcommand manages the schema and exits
	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !*devMode && *port == "" {
		log.Fatal("Serial port is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	loc, err := time.LoadLocation(cfg.GetTimezone())
	if err != nil {
		log.Fatalf("failed to load timezone: %v", err)
	}

	var mux sensormux.MuxInterface
	if *devMode {
		fixture := []byte(devFixture)
		if data, err := os.ReadFile("fixtures.txt"); err == nil {
			fixture = data
		}
		mux = sensormux.NewMockMux(fixture, cfg.GetSampleInterval())
	} else {
		realMux, err := sensormux.NewRealMux(*port, sensormux.PortOptions{BaudRate: *baud})
		if err != nil {
			log.Fatalf("failed to open sensor port: %v", err)
		}
		mux = realMux
	}
	defer mux.Close()

	if err := mux.Initialize(cfg.GetSampleInterval()); err != nil {
		log.Fatalf("failed to initialize sensor: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// a stored flip policy overrides the config file
	policy := session.Policy(cfg.GetFlipPolicy())
	if stored, err := database.GetSetting("flip_policy", cfg.GetFlipPolicy()); err == nil {
		if parsed, perr := session.ParsePolicy(stored); perr == nil {
			policy = parsed
		}
	}

	tracker := session.NewTracker(timeutil.RealClock{}, database, policy)

	source := imu.NewSerialSource(mux, cfg.GetSampleKind())
	detector, err := orientation.NewDetector(cfg.DetectorConfig(), source)
	if err != nil {
		log.Fatalf("failed to create orientation detector: %v", err)
	}
	detector.AddObserver(tracker.HandleFlip)
	detector.AddObserver(func(flipped bool) {
		log.Printf("orientation changed: flipped=%v", flipped)
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the sensor port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled &&
			!strings.Contains(err.Error(), "closed") {
			log.Printf("failed to monitor sensor port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		serveMux := api.NewServer(database, detector, tracker, loc).ServeMux()
		mux.AttachAdminRoutes(serveMux)
		database.AttachAdminRoutes(serveMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(serveMux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// finalize any in-flight session before exit so no study time is lost
	detector.Close()
	tracker.Finish()
	log.Printf("Graceful shutdown complete")
}
