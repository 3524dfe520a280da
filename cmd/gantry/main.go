package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/banshee-data/gantry/internal/actuator"
	"github.com/banshee-data/gantry/internal/clocksync"
	"github.com/banshee-data/gantry/internal/config"
	"github.com/banshee-data/gantry/internal/db"
	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/executor"
	"github.com/banshee-data/gantry/internal/protocol"
	"github.com/banshee-data/gantry/internal/rig"
	"github.com/banshee-data/gantry/internal/serialmux"
	"github.com/banshee-data/gantry/internal/timeutil"
	"github.com/banshee-data/gantry/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to rig config JSON (defaults apply when empty)")
	devMode     = flag.Bool("dev", false, "Run against an in-memory port replaying fixture encounters")
	listen      = flag.String("listen", "", "Debug HTTP listen address (overrides config)")
	port        = flag.String("port", "", "Serial port to use (overrides config, ignored in dev mode)")
	dbPath      = flag.String("db", "", "Journal database path (overrides config)")
	echo        = flag.Bool("echo", false, "Echo each fired command back over the serial link")
	queueOrder  = flag.String("queue-order", "", "Queue order: commit or start_time (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// devReplayInterval is how often dev mode re-sends its fixture encounters.
const devReplayInterval = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encode" {
		if err := runEncode(os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Printf("starting %s", version.String())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}

	var link serialmux.TimeoutSerialPorter
	var idle time.Duration
	if *devMode {
		link, err = newDevPort(ctx, clock.Now())
		idle = 10 * time.Millisecond
	} else {
		link, err = serialmux.OpenPort(cfg.GetSerialPort(), cfg.GetSerialOptions())
	}
	if err != nil {
		log.Fatalf("failed to open serial port: %v", err)
	}
	defer link.Close()

	rtc, err := setup(ctx, link, clock, cfg)
	if err != nil {
		// the orchestrator only sees the serial link, so tell it why we stopped
		fmt.Fprintf(link, "%v\n", err)
		log.Fatalf("setup failed: %v", err)
	}

	journal, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer journal.Close()

	var act executor.Actuator = actuator.Logging{}
	if cfg.GetEchoCommands() {
		act = actuator.Multi{act, actuator.SerialEcho{W: link}}
	}
	act = actuator.Limited{Limits: cfg.GetLimits(), Next: act}

	r := rig.New(link, act, rig.Options{
		ReadSize:  cfg.GetReadBufferSize(),
		Interval:  cfg.GetTickInterval(),
		Order:     cfg.GetQueueOrder(),
		Clock:     clock,
		Journal:   journal,
		RTC:       rtc,
		IdlePause: idle,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.Run(ctx); err != nil {
			log.Printf("control loop failed: %v", err)
			stop()
		}
		log.Print("control loop routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		r.AttachAdminRoutes(mux)
		if err := journal.AttachAdminRoutes(mux); err != nil {
			log.Printf("journal admin routes unavailable: %v", err)
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: mux,
		}

		go func() {
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
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads -config when given and applies any command line
// overrides on top.
func loadConfig() (*config.RigConfig, error) {
	cfg := config.EmptyRigConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadRigConfig(*configPath); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = listen
		case "port":
			cfg.SerialPort = port
		case "db":
			cfg.DBPath = dbPath
		case "echo":
			cfg.EchoCommands = echo
		case "queue-order":
			cfg.QueueOrder = queueOrder
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup runs the startup sequence: announce on the link, wait for the
// orchestrator's clock handshake, set the rig clock, announce completion.
func setup(ctx context.Context, link io.ReadWriter, clock timeutil.Clock, cfg *config.RigConfig) (*clocksync.SoftwareRTC, error) {
	if _, err := io.WriteString(link, "Starting\n"); err != nil {
		return nil, fmt.Errorf("write banner: %w", err)
	}

	ts, err := clocksync.ReadHandshake(ctx, link, clock, cfg.GetHandshakeTimeout())
	if err != nil {
		return nil, err
	}

	rtc := clocksync.NewSoftwareRTC(clock, cfg.GetLocation())
	if err := rtc.Set(ts); err != nil {
		return nil, fmt.Errorf("set rig clock from %s: %w", ts.Digits(), err)
	}
	now, _ := rtc.Now()
	log.Printf("rig clock set to %s (day of week %d)", now.Format(time.RFC3339), rtc.DayOfWeek())

	if _, err := io.WriteString(link, "Ending setup\n"); err != nil {
		return nil, fmt.Errorf("write banner: %w", err)
	}
	return rtc, nil
}

// newDevPort returns an in-memory port preloaded with a clock handshake for
// now, then replays the fixture encounters until ctx is done.
func newDevPort(ctx context.Context, now time.Time) (*serialmux.TestableSerialPort, error) {
	ts, err := encounter.TimestampFromTime(now)
	if err != nil {
		return nil, err
	}
	handshake, err := protocol.EncodeHandshake(ts)
	if err != nil {
		return nil, err
	}
	frames, err := devFrames(ts)
	if err != nil {
		return nil, err
	}

	p := serialmux.NewTestableSerialPort()
	p.AddReadData(handshake)
	go p.Replay(ctx, frames, devReplayInterval)
	return p, nil
}
