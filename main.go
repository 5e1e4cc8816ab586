package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kwv/posemesh/pgo"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	replayFile = flag.String("replay", "", "Replay a JSON-lines measurement log and exit")
	outputFile = flag.String("output", "", "Render the graph to this file after replay (.png or .svg)")
	mqttMode   = flag.Bool("mqtt", false, "Run MQTT service mode for live measurement streams")
	httpMode   = flag.Bool("http", false, "Enable HTTP server for graph inspection")
	httpPort   = flag.Int("http-port", 8080, "HTTP server port (default 8080)")
)

func main() {
	flag.Parse()
	fmt.Printf("posemesh version: %s\n", Version)

	config, err := pgo.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v (looked at %s)", err, *configFile)
	}
	log.Printf("Loaded config from %s", *configFile)

	app := NewApp(config, log.Default())
	app.ConfigFile = *configFile
	app.ReplayFile = *replayFile
	app.OutputFile = *outputFile
	app.HTTPPort = *httpPort
	app.MqttMode = *mqttMode
	app.HTTPMode = *httpMode

	if app.ReplayFile != "" {
		runReplay(app)
		return
	}

	if app.MqttMode || app.HTTPMode {
		runService(app)
		return
	}

	fmt.Println("posemesh consistency filter")
	fmt.Println("Use --replay FILE to process a recorded measurement log")
	fmt.Println("Use --mqtt to subscribe to live measurement streams")
	fmt.Println("Use --http to serve graph inspection endpoints")
	fmt.Println("Use --mqtt --http to run both together")
	fmt.Println("\nConfiguration:")
	fmt.Println("  config.yaml - thresholds, robots, MQTT and render settings")
}

// runReplay feeds a JSON-lines measurement log through the filter and
// prints the accepted graph summary.
func runReplay(app *App) {
	f, err := os.Open(app.ReplayFile)
	if err != nil {
		log.Fatalf("Failed to open replay file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		msg, err := pgo.DecodeMeasurement([]byte(line))
		if err != nil {
			log.Printf("line %d: decode error: %v", lineNo, err)
			app.Tracker.RecordDecodeError()
			continue
		}

		if _, err := app.Tracker.Apply(msg); err != nil {
			log.Printf("line %d: %s rejected: %v", lineNo, msg.Type, err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Error reading replay file: %v", err)
	}

	status := app.Tracker.Status()
	fmt.Printf("\nReplay complete: %d measurements, %d accepted, %d rejected, %d decode errors\n",
		status.Processed, status.Accepted, status.Rejected, status.DecodeErrors)
	fmt.Printf("Loop closures: %d admitted, %d in the consistent set\n",
		status.LoopClosures, status.Inliers)
	for robot, n := range status.Robots {
		fmt.Printf("  robot %s: %d nodes\n", robot, n)
	}
	fmt.Printf("Accepted factors: %d\n", len(app.Tracker.AcceptedFactors()))

	if app.OutputFile != "" {
		if err := renderToFile(app); err != nil {
			log.Fatalf("Failed to render graph: %v", err)
		}
		fmt.Printf("Rendered graph to %s\n", app.OutputFile)
	}
}

// renderToFile writes the graph to a PNG or SVG depending on the output
// file extension.
func renderToFile(app *App) error {
	out, err := os.Create(app.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	return app.Tracker.WithFilter(func(filter *pgo.PCM[Belief]) error {
		renderer := pgo.NewGraphRenderer(filter, app.Config.Robots, app.Config.Render)
		switch strings.ToLower(filepath.Ext(app.OutputFile)) {
		case ".svg":
			return renderer.RenderToSVG(out)
		case ".png":
			return renderer.RenderToPNG(out)
		default:
			return fmt.Errorf("unsupported output format %q (use .png or .svg)", filepath.Ext(app.OutputFile))
		}
	})
}

// runService starts the MQTT subscriber and/or the HTTP server and waits
// for an interrupt.
func runService(app *App) {
	fmt.Println("Starting posemesh service...")

	if app.MqttMode {
		stream, err := pgo.InitStream(app.Config, app.HandleMeasurement)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if stream == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		app.Stream = stream
	}

	if app.HTTPMode {
		httpServer := newHTTPServer(app.Tracker, app.Config)
		go func() {
			addr := fmt.Sprintf(":%d", app.HTTPPort)
			fmt.Printf("HTTP server starting on %s\n", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if app.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, rc := range app.Config.Robots {
			fmt.Printf("    - %s (%s)\n", rc.Topic, rc.ID)
		}
	}

	if app.HTTPMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", app.HTTPPort)
		fmt.Println("  GET /health        - Health check")
		fmt.Println("  GET /status        - Filter counters and graph sizes")
		fmt.Println("  GET /graph.geojson - Accepted graph as GeoJSON")
		fmt.Println("  GET /graph.png     - Rendered graph (PNG)")
		fmt.Println("  GET /graph.svg     - Rendered graph (SVG)")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if app.Stream != nil {
		app.Stream.Disconnect()
	}
	fmt.Println("Service stopped")
}
