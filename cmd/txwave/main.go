// Command txwave generates a continuous complex-baseband waveform and
// streams it to a PlutoSDR-class transmit device over IIOD, degrading to
// a timed simulation when no device answers. It exposes a JSON telemetry
// API and a small stdin control loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sdrlab/txwave/internal/app"
	"github.com/sdrlab/txwave/internal/logging"
	"github.com/sdrlab/txwave/internal/mdns"
	"github.com/sdrlab/txwave/internal/sdr"
	"github.com/sdrlab/txwave/internal/telemetry"
)

// discover is swappable for tests.
var discover = mdns.FindFirst

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "txwave:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("txwave", flag.ContinueOnError)
	fs.SetOutput(out)

	device := fs.String("device", "", "IIOD device URI host:port (default $TXWAVE_DEVICE; empty simulates)")
	useDiscovery := fs.Bool("discover", false, "browse mDNS for an IIOD device when no URI is given")
	discoverTimeout := fs.Duration("discover-timeout", 5*time.Second, "mDNS browse window")
	httpAddr := fs.String("http", ":8080", "telemetry listen address (empty disables)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "log format: text or json")

	freq := fs.Float64("freq", app.DefaultFrequencyHz, "RF center frequency in Hz")
	gain := fs.Float64("gain", app.DefaultGainDB, "TX gain in dB")
	amp := fs.Float64("amp", app.DefaultAmplitude, "baseband amplitude, 0..1")
	wave := fs.String("wave", "sine", "waveform: sine or square")

	sshHost := fs.String("ssh-host", "", "device SSH host for sysfs attribute fallback")
	sshUser := fs.String("ssh-user", "root", "device SSH user")
	sshPass := fs.String("ssh-pass", "analog", "device SSH password")

	if err := fs.Parse(args); err != nil {
		return err
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(*logFormat)
	if err != nil {
		return err
	}
	logger := logging.New(level, format, out)
	logging.SetDefault(logger)

	uri := *device
	if uri == "" {
		uri = getenv("TXWAVE_DEVICE")
	}
	if uri == "" && *useDiscovery {
		logger.Info("browsing for IIOD devices")
		host, err := discover(ctx, *discoverTimeout)
		if err != nil {
			logger.Warn("discovery failed, running simulated", logging.Field{Key: "err", Value: err})
		} else {
			uri = host.URI()
			logger.Info("device discovered",
				logging.Field{Key: "instance", Value: host.Instance},
				logging.Field{Key: "uri", Value: uri})
		}
	}

	hub := telemetry.NewHub(100, logger)
	reporter := telemetry.MultiReporter{hub, telemetry.NewStdoutReporter(logger)}

	backend := sdr.NewPluto()
	backend.SetLogger(logger)
	gen := app.NewGenerator(backend, reporter, logger, app.Config{
		SSH: sdr.SSHConfig{Host: *sshHost, User: *sshUser, Password: *sshPass},
	})

	if err := gen.Params().SetFrequency(*freq); err != nil {
		return err
	}
	if err := gen.Params().SetGain(*gain); err != nil {
		return err
	}
	if err := gen.Params().SetAmplitude(*amp); err != nil {
		return err
	}
	if err := gen.Params().SetWaveform(*wave); err != nil {
		return err
	}

	hub.SetSnapshotSource(gen.Snapshot)
	hub.SetParamSink(gen.Params())

	var server *telemetry.WebServer
	if *httpAddr != "" {
		server = telemetry.NewWebServer(*httpAddr, hub, logger)
		server.Start()
	}

	if err := gen.Start(uri); err != nil {
		return err
	}

	controlLoop(ctx, gen, in, out)

	if err := gen.Stop(); err != nil {
		logger.Warn("stop failed", logging.Field{Key: "err", Value: err})
	}
	if server != nil {
		if err := server.Shutdown(); err != nil {
			logger.Warn("telemetry shutdown failed", logging.Field{Key: "err", Value: err})
		}
	}
	return nil
}

// controlLoop reads commands from in until quit, EOF, or ctx cancellation.
func controlLoop(ctx context.Context, gen *app.Generator, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := dispatch(gen, line, out); quit {
				return
			}
		}
	}
}

// dispatch executes one control command and reports whether to quit.
func dispatch(gen *app.Generator, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true

	case "status":
		fmt.Fprintln(out, gen.String())

	case "start":
		uri := ""
		if len(args) > 0 {
			uri = args[0]
		}
		if err := gen.Start(uri); err != nil {
			fmt.Fprintln(out, "error:", err)
		}

	case "stop":
		if err := gen.Stop(); err != nil {
			fmt.Fprintln(out, "error:", err)
		}

	case "freq":
		setFloat(args, gen.Params().SetFrequency, out)

	case "gain":
		setFloat(args, gen.Params().SetGain, out)

	case "amp":
		setFloat(args, gen.Params().SetAmplitude, out)

	case "wave":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: wave sine|square")
			return false
		}
		if err := gen.Params().SetWaveform(args[0]); err != nil {
			fmt.Fprintln(out, "error:", err)
		}

	case "help":
		fmt.Fprintln(out, "commands: status, start [uri], stop, freq <hz>, gain <db>, amp <0..1>, wave sine|square, quit")

	default:
		fmt.Fprintf(out, "unknown command %q (try help)\n", cmd)
	}
	return false
}

func setFloat(args []string, set func(float64) error, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: <command> <value>")
		return
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if err := set(v); err != nil {
		fmt.Fprintln(out, "error:", err)
	}
}
