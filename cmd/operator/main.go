// Command operator runs the operator station: it reads poses and operator
// requests from the vehicle link, runs the guidance loop and exposes the
// HTTP, gRPC and debug surfaces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/erov.guidance/internal/api"
	"github.com/banshee-data/erov.guidance/internal/config"
	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/db"
	"github.com/banshee-data/erov.guidance/internal/guidance"
	"github.com/banshee-data/erov.guidance/internal/monitoring"
	"github.com/banshee-data/erov.guidance/internal/pose"
	"github.com/banshee-data/erov.guidance/internal/shaper"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
	"github.com/banshee-data/erov.guidance/internal/timeutil"
	"github.com/banshee-data/erov.guidance/internal/vehiclelink"
	"github.com/banshee-data/erov.guidance/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to operator config JSON (defaults to "+config.DefaultConfigPath+" if present)")
	presetName  = flag.String("preset", "", "Controller preset: sitl or hardware (overrides config)")
	devMode     = flag.Bool("dev", false, "Run against a mock vehicle link replaying fixed poses")
	disableLink = flag.Bool("disable-link", false, "Run without a vehicle link")
	port        = flag.String("port", "", "Serial port of the vehicle bridge (overrides config)")
	canIface    = flag.String("can", "", "SocketCAN interface for actuation, e.g. can0 (overrides config)")
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC listen address (overrides config)")
	dbPath      = flag.String("db", "", "Telemetry database path (overrides config)")
	noDB        = flag.Bool("no-db", false, "Do not record telemetry")
	pushPoses   = flag.Bool("push-poses", false, "Use pushed POSE lines instead of frame-tree lookup")
	debugLog    = flag.Bool("debug", false, "Enable diagnostic logging")
	traceLog    = flag.String("trace-log", "", "File to append per-tick trace logging to")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	traceOut, closeTrace, err := openTrace(*traceLog)
	if err != nil {
		log.Fatalf("failed to open trace log: %v", err)
	}
	defer closeTrace()
	var diagOut io.Writer
	if *debugLog {
		diagOut = os.Stderr
	}
	setLogWriters(os.Stderr, diagOut, traceOut)
	log.Printf("%s starting", version.String())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	preset, err := cfg.GetPreset()
	if err != nil {
		log.Fatalf("invalid preset: %v", err)
	}

	clock := timeutil.RealClock{}
	tree := pose.NewFrameTree(clock, cfg.GetPoseMaxAge())
	syncer := pose.NewSynchronizer(clock)
	syncer.SetMaxAge(cfg.GetPoseMaxAge())
	frames := pose.Frames{
		Reference: pose.FrameID(cfg.GetReferenceFrame()),
		Vehicle:   pose.FrameID(cfg.GetVehicleFrame()),
		Target:    pose.FrameID(cfg.GetTargetFrame()),
	}
	var provider pose.Provider
	if cfg.GetUseTreeLookup() && !*pushPoses {
		provider = pose.NewTreeProvider(tree, frames)
	} else {
		provider = pose.NewPushProvider(syncer, cfg.GetPoseTimeout())
	}
	store := control.NewStore(control.State{Mode: control.ModeManual})

	link, err := openLink(cfg, frames)
	if err != nil {
		log.Fatalf("failed to open vehicle link: %v", err)
	}
	defer link.Close()

	// Create a context cancelled on SIGINT/SIGTERM and a wait group for the
	// long-running routines.
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var actuator guidance.Actuator = vehiclelink.NewLinkActuator(link)
	if iface := stringFlagOr(*canIface, cfg.GetCANInterface()); iface != "" {
		canAct, err := vehiclelink.DialCAN(ctx, iface)
		if err != nil {
			log.Fatalf("failed to open CAN interface %s: %v", iface, err)
		}
		defer canAct.Close()
		actuator = canAct
	}

	hub := telemetry.NewHub(telemetry.DefaultHistory)
	sinks := telemetry.MultiSink{hub}

	var (
		telemetryDB *db.DB
		recorder    *db.Recorder
	)
	if !*noDB {
		path := stringFlagOr(*dbPath, cfg.GetDBPath())
		telemetryDB, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("failed to open telemetry database %s: %v", path, err)
		}
		defer telemetryDB.Close()
		session, err := telemetryDB.StartSession(preset.Name)
		if err != nil {
			log.Fatalf("failed to start telemetry session: %v", err)
		}
		recorder = db.NewRecorder(telemetryDB, session, db.DefaultRecorderBuffer)
		defer recorder.Close()
		sinks = append(sinks, recorder)
		log.Printf("recording telemetry to %s (session %s)", path, session)
	}

	loop, err := guidance.New(guidance.Options{
		Preset:         preset,
		Provider:       provider,
		Actuator:       actuator,
		Sink:           sinks,
		Control:        store,
		Clock:          clock,
		TickPeriod:     cfg.GetTickPeriod(),
		FailureBackoff: cfg.GetFailureBackoff(),
	})
	if err != nil {
		log.Fatalf("failed to create guidance loop: %v", err)
	}

	dispatcher := &vehiclelink.Dispatcher{Sync: syncer, Frames: tree, Control: store}

	// run the monitor routine to manage IO on the vehicle link
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor vehicle link: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx, link); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("dispatcher stopped: %v", err)
		}
		log.Print("dispatcher routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(ctx)
		disarm(actuator)
		log.Print("guidance routine terminated")
	}()

	sources := monitoring.Sources{
		Status: loop.Status,
		Hub:    hub,
		Extra: map[string]func() any{
			"dispatcher": func() any { return dispatcher.Stats() },
			"poses": func() any {
				return map[string]pose.Stats{
					pose.RoleCurrent.String(): syncer.Stats(pose.RoleCurrent),
					pose.RoleTarget.String():  syncer.Stats(pose.RoleTarget),
				}
			},
		},
	}
	if recorder != nil {
		sources.Extra["recorder"] = func() any { return recorder.Stats() }
	}
	if s, ok := link.(interface{ Stats() (uint64, uint64) }); ok {
		sources.Extra["link"] = func() any {
			read, dropped := s.Stats()
			return map[string]uint64{"read": read, "dropped": dropped}
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		serveHTTP(ctx, stringFlagOr(*listen, cfg.GetListen()), link, store, hub, loop, sources, telemetryDB)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		serveGRPC(ctx, stringFlagOr(*grpcListen, cfg.GetGRPCListen()), api.NewService(store, hub, loop.Status))
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func setLogWriters(ops, diag, trace io.Writer) {
	guidance.SetLogWriters(ops, diag, trace)
	vehiclelink.SetLogWriters(ops, diag, trace)
	db.SetLogWriters(ops, diag, trace)
	api.SetLogWriters(ops, diag, trace)
	monitoring.SetLogWriters(ops, diag, trace)
}

func openTrace(path string) (io.Writer, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func loadConfig() (*config.OperatorConfig, error) {
	var cfg *config.OperatorConfig
	switch {
	case *configPath != "":
		c, err := config.LoadOperatorConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		c, err := config.LoadOperatorConfig(config.DefaultConfigPath)
		if err != nil {
			log.Printf("no config at %s, using built-in defaults", config.DefaultConfigPath)
			c = config.EmptyOperatorConfig()
		}
		cfg = c
	}
	if *presetName != "" {
		cfg.Preset = presetName
	}
	return cfg, cfg.Validate()
}

func stringFlagOr(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func openLink(cfg *config.OperatorConfig, frames pose.Frames) (vehiclelink.Conn, error) {
	switch {
	case *disableLink:
		log.Print("vehicle link disabled")
		return vehiclelink.NewDisabledLink(), nil
	case *devMode:
		link, err := vehiclelink.NewMockLink(devLines(frames), 100*time.Millisecond)
		if err != nil {
			return nil, err
		}
		log.Print("using mock vehicle link")
		return link, nil
	default:
		path := stringFlagOr(*port, cfg.GetSerialPort())
		if path == "" {
			return nil, errors.New("no serial port configured (use -port, -dev or -disable-link)")
		}
		link, err := vehiclelink.NewRealLink(path, vehiclelink.PortOptions{BaudRate: cfg.GetSerialBaudRate()})
		if err != nil {
			return nil, err
		}
		return link, nil
	}
}

// devLines is what the mock link replays: a vehicle one metre below the
// origin and a target one metre ahead of it, as both transforms and poses.
func devLines(f pose.Frames) []string {
	return []string{
		fmt.Sprintf("TF %s %s 0 0 1 1 0 0 0", f.Reference, f.Vehicle),
		fmt.Sprintf("TF %s %s 1 0 1 1 0 0 0", f.Reference, f.Target),
		"POSE current 0 0 1 1 0 0 0",
		"POSE target 1 0 1 1 0 0 0",
	}
}

// disarm makes a best-effort attempt to leave the vehicle disarmed and
// idle after the loop stops.
func disarm(actuator guidance.Actuator) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := actuator.SetManualControl(ctx, shaper.Neutral()); err != nil {
		log.Printf("failed to send neutral command: %v", err)
	}
	if err := actuator.Arm(ctx, false); err != nil {
		log.Printf("failed to disarm: %v", err)
	}
}

func serveHTTP(ctx context.Context, addr string, link vehiclelink.Conn, store *control.Store, hub *telemetry.Hub, loop *guidance.Loop, sources monitoring.Sources, telemetryDB *db.DB) {
	mux := http.NewServeMux()

	link.AttachAdminRoutes(mux)
	monitoring.AttachDebugRoutes(mux, sources)
	if telemetryDB != nil {
		if err := telemetryDB.AttachAdminRoutes(mux); err != nil {
			log.Printf("database admin routes unavailable: %v", err)
		}
	}

	apiMux := api.NewServer(store, hub, loop.Status).ServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", apiMux))

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("HTTP server routine stopped")
}

func serveGRPC(ctx context.Context, addr string, svc *api.Service) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("gRPC server disabled: failed to listen on %s: %v", addr, err)
		return
	}
	server := grpc.NewServer()
	api.RegisterOperatorServer(server, svc)

	go func() {
		log.Printf("gRPC server listening on %s", addr)
		if err := server.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down gRPC server...")

	// telemetry streams only end when clients leave, so bound the wait
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		server.Stop()
	}
	log.Printf("gRPC server routine stopped")
}
