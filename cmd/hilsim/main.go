package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/hilsim/internal/config"
	"github.com/san-kum/hilsim/internal/control"
	"github.com/san-kum/hilsim/internal/delay"
	"github.com/san-kum/hilsim/internal/physics"
	"github.com/san-kum/hilsim/internal/record"
	"github.com/san-kum/hilsim/internal/report"
	"github.com/san-kum/hilsim/internal/session"
	"github.com/san-kum/hilsim/internal/transport"
	"github.com/san-kum/hilsim/internal/tui"
)

var (
	configFile string
	endpoint   string
	seed       uint64
	logDir     string
	runID      string

	// step loop
	stepDt      float64
	maxSteps    int
	stepTimeout float64
	syncTimeout float64
	live        bool

	// delay injection
	delayEnabled bool
	processingMs float64
	responseMs   float64
	variationMs  float64
	distribution string

	// plant
	mass     float64
	gravity  float64
	initPos  float64
	initVel  float64
	noiseStd float64

	// controller
	kp       float64
	ki       float64
	kd       float64
	setpoint float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hilsim",
		Short: "lock-step plant / controller co-simulation over UDP",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", config.DefaultEndpoint, "plant UDP endpoint")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "random seed (0 = nondeterministic)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "logs", "tick log base directory")
	rootCmd.PersistentFlags().StringVar(&runID, "run-id", "", "run directory name (empty = timestamp)")

	plantCmd := &cobra.Command{
		Use:   "plant",
		Short: "run the plant side: answer step requests with simulated state",
		RunE:  runPlant,
	}
	plantCmd.Flags().Float64Var(&stepDt, "dt", config.DefaultStepInterval, "integration timestep [s]")
	plantCmd.Flags().Float64Var(&mass, "mass", config.DefaultMass, "vehicle mass [kg]")
	plantCmd.Flags().Float64Var(&gravity, "gravity", config.DefaultGravity, "gravity [m/s^2]")
	plantCmd.Flags().Float64Var(&initPos, "pos", 0, "initial altitude [m]")
	plantCmd.Flags().Float64Var(&initVel, "vel", 0, "initial vertical velocity [m/s]")
	plantCmd.Flags().Float64Var(&noiseStd, "noise", 0, "sensor noise stddev")
	plantCmd.Flags().BoolVar(&delayEnabled, "delay", false, "enable response delay injection")
	plantCmd.Flags().Float64Var(&processingMs, "processing-ms", 0, "simulated processing delay [ms]")
	plantCmd.Flags().Float64Var(&responseMs, "response-ms", 0, "simulated response delay [ms]")
	plantCmd.Flags().Float64Var(&variationMs, "variation-ms", 0, "delay jitter magnitude [ms]")
	plantCmd.Flags().StringVar(&distribution, "distribution", string(delay.Uniform), "jitter distribution (uniform|gaussian)")

	numericCmd := &cobra.Command{
		Use:   "numeric",
		Short: "run the numeric side: drive the lock-step control loop",
		RunE:  runNumeric,
	}
	numericCmd.Flags().Float64Var(&stepDt, "dt", config.DefaultStepInterval, "step interval [s]")
	numericCmd.Flags().IntVar(&maxSteps, "steps", config.DefaultMaxSteps, "number of steps to run")
	numericCmd.Flags().Float64Var(&stepTimeout, "timeout", config.DefaultStepTimeout, "per-step response timeout [s]")
	numericCmd.Flags().Float64Var(&syncTimeout, "sync-timeout", config.DefaultSyncTimeout, "handshake window [s]")
	numericCmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "pid kp")
	numericCmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "pid ki")
	numericCmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "pid kd")
	numericCmd.Flags().Float64Var(&setpoint, "setpoint", config.DefaultSetpoint, "target altitude [m]")
	numericCmd.Flags().Float64Var(&mass, "mass", config.DefaultMass, "vehicle mass for feedforward [kg]")
	numericCmd.Flags().Float64Var(&gravity, "gravity", config.DefaultGravity, "gravity for feedforward [m/s^2]")
	numericCmd.Flags().BoolVar(&live, "live", false, "render the run live in the terminal")

	reportCmd := &cobra.Command{
		Use:   "report [run_dir]",
		Short: "summarize a finished run's tick log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := report.Load(args[0])
			if err != nil {
				return err
			}
			return report.Render(os.Stdout, rows, report.Summarize(rows))
		},
	}

	configCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], config.Default()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(plantCmd, numericCmd, reportCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers the yaml file (if any) under the command-line flags:
// a flag the user set always wins over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	persistent := cmd.InheritedFlags().Changed

	if persistent("endpoint") {
		cfg.Endpoint = endpoint
	}
	if persistent("seed") {
		cfg.Seed = seed
	}
	if persistent("log-dir") {
		cfg.Log.Dir = logDir
	}
	if persistent("run-id") {
		cfg.Log.RunID = runID
	}

	if set("dt") {
		cfg.StepInterval = stepDt
	}
	if set("steps") {
		cfg.MaxSteps = maxSteps
	}
	if set("timeout") {
		cfg.StepTimeout = stepTimeout
	}
	if set("sync-timeout") {
		cfg.SyncTimeout = syncTimeout
	}

	if set("delay") {
		cfg.Delay.Enabled = delayEnabled
	}
	if set("processing-ms") {
		cfg.Delay.ProcessingMs = processingMs
	}
	if set("response-ms") {
		cfg.Delay.ResponseMs = responseMs
	}
	if set("variation-ms") {
		cfg.Delay.VariationMs = variationMs
	}
	if set("distribution") {
		cfg.Delay.Distribution = distribution
	}

	if set("mass") {
		cfg.Plant.Mass = mass
	}
	if set("gravity") {
		cfg.Plant.Gravity = gravity
	}
	if set("pos") {
		cfg.Plant.InitialPosition = initPos
	}
	if set("vel") {
		cfg.Plant.InitialVelocity = initVel
	}
	if set("noise") {
		cfg.Plant.SensorNoiseStd = noiseStd
	}

	if set("kp") {
		cfg.Controller.Kp = kp
	}
	if set("ki") {
		cfg.Controller.Ki = ki
	}
	if set("kd") {
		cfg.Controller.Kd = kd
	}
	if set("setpoint") {
		cfg.Controller.Setpoint = setpoint
	}

	return cfg, cfg.Validate()
}

func effectiveSeed(cfg *config.Config) uint64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return uint64(time.Now().UnixNano())
}

func openRecorder(cfg *config.Config, side string) (*record.Writer, string, error) {
	dir, err := record.RunDir(cfg.Log.Dir, cfg.Log.RunID)
	if err != nil {
		return nil, "", err
	}
	w, err := record.NewWriter(filepath.Join(dir, side+"_"+report.TickFile))
	if err != nil {
		return nil, "", err
	}
	return w, dir, nil
}

func runPlant(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, err := transport.Listen(cfg.Endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()

	s := effectiveSeed(cfg)
	model := physics.NewAltitude(cfg.Plant.Mass, cfg.Plant.Gravity, cfg.Plant.SensorNoiseStd, s)
	model.Reset(cfg.Plant.InitialPosition, cfg.Plant.InitialVelocity)
	sched := delay.NewScheduler(cfg.DelayScheduler(), s)

	plant := session.NewPlant(conn, model, sched, cfg.StepInterval)

	rec, dir, err := openRecorder(cfg, "plant")
	if err != nil {
		return err
	}
	plant.SetRecorder(rec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("plant listening on %s (run dir %s)\n", conn.LocalAddr(), dir)
	sum, err := plant.Run(ctx)
	if cerr := rec.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Printf("served %d steps, %d decode errors, %d invalid states\n",
		sum.Steps, sum.DecodeErrors, sum.Invalid)
	if rec.Dropped() > 0 {
		fmt.Printf("warning: %d tick records dropped under backpressure\n", rec.Dropped())
	}
	return nil
}

func runNumeric(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, err := transport.Dial(cfg.Endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctrl := control.NewPID(cfg.Controller.Kp, cfg.Controller.Ki, cfg.Controller.Kd,
		cfg.Controller.Setpoint, cfg.Plant.Mass, cfg.Plant.Gravity)

	numeric := session.NewNumeric(conn, ctrl, session.NumericConfig{
		StepInterval:    cfg.StepIntervalDur(),
		MaxSteps:        cfg.MaxSteps,
		StepTimeout:     cfg.StepTimeoutDur(),
		SyncTimeout:     cfg.SyncTimeoutDur(),
		AnomalyMultiple: 3,
	})

	rec, dir, err := openRecorder(cfg, "numeric")
	if err != nil {
		return err
	}
	numeric.SetRecorder(rec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if live {
		return runNumericLive(ctx, numeric, rec, cfg, dir)
	}

	fmt.Printf("numeric driving %s, %d steps at %.1f Hz (run dir %s)\n",
		cfg.Endpoint, cfg.MaxSteps, 1/cfg.StepInterval, dir)
	sum, err := numeric.Run(ctx)
	if cerr := rec.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	printSummary(sum)
	return nil
}

// runNumericLive runs the session in a goroutine and hands the terminal
// to the live view until the session ends or the user quits.
func runNumericLive(ctx context.Context, numeric *session.Numeric, rec *record.Writer, cfg *config.Config, dir string) error {
	feed := tui.NewFeed()
	numeric.SetObserver(feed.Observe)

	var (
		sum    session.Summary
		runErr error
	)
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		defer feed.Close()
		sum, runErr = numeric.Run(ctx)
	}()

	prog := tea.NewProgram(tui.NewModel(feed, cfg.Controller.Setpoint, cfg.MaxSteps))
	_, teaErr := prog.Run()
	<-sessionDone

	if cerr := rec.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}
	if runErr != nil {
		return runErr
	}
	if teaErr != nil {
		return teaErr
	}

	fmt.Printf("run dir %s\n", dir)
	printSummary(sum)
	return nil
}

func printSummary(sum session.Summary) {
	fmt.Printf("completed %d steps: %d responses, %d timeouts, %d stale, %d decode errors, %d invalid\n",
		sum.Steps, sum.Responses, sum.Timeouts, sum.SeqMismatches, sum.DecodeErrors, sum.Invalid)
	if sum.RTT.Count > 0 {
		fmt.Printf("rtt: mean %v, stddev %v, p95 %v, p99 %v, max %v\n",
			sum.RTT.Mean.Round(time.Microsecond),
			sum.RTT.StdDev.Round(time.Microsecond),
			sum.RTT.P95.Round(time.Microsecond),
			sum.RTT.P99.Round(time.Microsecond),
			sum.RTT.Max.Round(time.Microsecond))
	}
}
