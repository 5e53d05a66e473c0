package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"pid-loop-core/utils"
)

func main() {
	var (
		iface    = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath  = flag.String("map", "config/signal_map.json", "Path to the CAN signal map")
		profPath = flag.String("profile", "config/profile.json", "Control profile JSON file")
		simulate = flag.Bool("sim", false, "Run against the loopback plant instead of a bus")
		csvPath  = flag.String("csv", "", "Write per-cycle telemetry to this CSV file")
		logLevel = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("closed_loop.log", utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open closed_loop.log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:   *iface,
		MapPath:     *mapPath,
		ProfilePath: *profPath,
		Simulate:    *simulate,
		CSVPath:     *csvPath,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
