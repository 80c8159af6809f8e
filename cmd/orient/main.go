// Command orient re-acquires a known reference prism with a motorised total
// station and sets the instrument's horizontal orientation from it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/station-orient/internal/config"
	"github.com/banshee-data/station-orient/internal/fsutil"
	"github.com/banshee-data/station-orient/internal/monitoring"
	"github.com/banshee-data/station-orient/internal/orient"
	"github.com/banshee-data/station-orient/internal/serialmux"
	"github.com/banshee-data/station-orient/internal/station"
	"github.com/banshee-data/station-orient/internal/station/geocom"
	"github.com/banshee-data/station-orient/internal/survey"
	"github.com/banshee-data/station-orient/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to the orient JSON config (default "+config.DefaultConfigPath+" if present)")
	catalogPath = flag.String("catalog", "", "Target catalog (.geo, .csv or .dmp); overrides config")
	model       = flag.String("model", "", "Instrument model, e.g. TPS1200 or \"TCA 1800\"; overrides config")
	port        = flag.String("port", "", "Serial port of the instrument; overrides config")
	stepDeg     = flag.Float64("step", 3, "Raster step in degrees; overrides config")
	distTol     = flag.Float64("tol", 0.1, "Distance and height tolerance in metres; overrides config")
	listen      = flag.String("listen", "", "Serve debug routes on this address; overrides config")
	debug       = flag.Bool("debug", false, "Log every instrument exchange")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Exit codes.
const (
	exitOriented  = 0
	exitError     = 1
	exitExhausted = 2
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("orient", version.String())
		return
	}

	fsys := fsutil.OSFileSystem{}
	cfg, err := loadConfig(fsys, *configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlagOverrides(cfg, set)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}
	if cfg.GetCatalog() == "" {
		log.Fatal("a target catalog is required (-catalog or \"catalog\" in config)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	link, err := serialmux.NewRealSerialMux(cfg.GetPort(), cfg.GetSerial(), serialmux.WithTerminator("\r\n"))
	if err != nil {
		log.Fatalf("failed to open instrument port %s: %v", cfg.GetPort(), err)
	}

	rep, err := run(ctx, cfg, fsys, link)
	if err != nil {
		log.Printf("orientation failed: %v", err)
		os.Exit(exitError)
	}
	if !rep.Found() {
		log.Printf("no catalog target found after %d cells (%s)", rep.Cells, rep.Elapsed.Round(time.Second))
		os.Exit(exitExhausted)
	}
	log.Printf("oriented on %s: hz %s (stage %s, %s)", rep.TargetID, rep.Orientation, rep.Stage, rep.Elapsed.Round(time.Second))
	os.Exit(exitOriented)
}

// loadConfig reads path, or DefaultConfigPath when path is empty and that
// file exists. With neither, every setting takes its default.
func loadConfig(fsys fsutil.FileSystem, path string) (*config.OrientConfig, error) {
	if path == "" {
		if _, err := fsys.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyOrientConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadOrientConfig(fsys, path)
}

// applyFlagOverrides copies explicitly set flags over the config values.
func applyFlagOverrides(cfg *config.OrientConfig, set map[string]bool) {
	if set["catalog"] {
		cfg.Catalog = catalogPath
	}
	if set["model"] {
		cfg.Model = model
	}
	if set["port"] {
		cfg.Port = port
	}
	if set["step"] {
		cfg.StepDeg = stepDeg
	}
	if set["tol"] {
		cfg.DistTol = distTol
	}
	if set["listen"] {
		cfg.Listen = listen
	}
	if set["debug"] {
		cfg.Debug = debug
	}
}

// run binds the GeoCOM driver to link, loads the catalog and performs one
// search. It owns link and closes it before returning.
func run(ctx context.Context, cfg *config.OrientConfig, fsys fsutil.FileSystem, link serialmux.SerialMuxInterface) (orient.Report, error) {
	if cfg.GetDebug() {
		monitoring.SetDebugLogger(log.Printf)
		defer monitoring.SetDebugLogger(nil)
	}

	codec, err := geocom.Lookup(cfg.GetModel())
	if err != nil {
		link.Close()
		return orient.Report{}, err
	}
	cat, err := survey.LoadFile(fsys, cfg.GetCatalog(), survey.LoadOptions{AngleUnit: cfg.GetAngleUnit()})
	if err != nil {
		link.Close()
		return orient.Report{}, err
	}
	monitoring.Logf("loaded %d catalog targets from %s", len(cat), cfg.GetCatalog())
	board := newStatusBoard(cfg.GetModel(), len(cat), time.Now())

	opts := orient.DefaultOptions()
	opts.Step = cfg.GetStep()
	opts.DistTol = cfg.GetDistTol()
	opts.MeasureWait = cfg.GetMeasureWait()
	opts.EDMMode = cfg.GetEDMMode()
	opts.MeasureProgram = cfg.GetMeasureProgram()
	opts.Progress = board.update
	searcher, err := orient.NewSearcher(opts)
	if err != nil {
		link.Close()
		return orient.Report{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor instrument port: %v", err)
		}
	}()

	if addr := cfg.GetListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(runCtx, addr, link, board)
		}()
	}

	sess := station.NewSession(codec, station.NewSerialTransport(link, cfg.GetReplyTimeout()), link,
		station.WithMeasureWait(cfg.GetMeasureWait()))
	monitoring.Logf("session %s: %s on %s", sess.ID(), sess.Driver(), cfg.GetPort())

	rep, err := searcher.Run(runCtx, cat, sess)
	board.finish(rep, err)

	cancel()
	if cerr := sess.Close(); cerr != nil {
		log.Printf("failed to close instrument port: %v", cerr)
	}
	wg.Wait()
	return rep, err
}

// serveDebug exposes the instrument link's admin routes and the search
// status until ctx ends.
func serveDebug(ctx context.Context, addr string, link serialmux.SerialMuxInterface, status http.Handler) {
	mux := http.NewServeMux()
	link.AttachAdminRoutes(mux)
	mux.Handle("/status", status)

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start debug server: %v", err)
		}
	}()
	monitoring.Logf("debug routes on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("debug server force close error: %v", err)
		}
	}
}
