// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	m "github.com/mkhts/goraim"
	"github.com/mkhts/goraim/internal/config"
	"github.com/mkhts/goraim/internal/logging"
	"github.com/mkhts/goraim/internal/metrics"
	"github.com/mkhts/goraim/internal/sink"
	"github.com/mkhts/goraim/internal/tracing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Structure to hold command line argument information
type cmdOpt struct {
	obsFn        string
	navFn        string
	configFn     string
	posFn        string
	noPosHeader  bool
	dbg          int
	logFormat    string
	sys          m.SysVar
	exSats       m.SatVar
	ts, te       m.TimeStr
	ti           int
	ref          m.PosLLH
	rmsLimit     float64
	noRaim       bool
	fde          string
	trop         string
	elMask       float64
	wghMode      int
	bancroft     bool
	dual         bool
	track        int
	workers      int
	influxURL    string
	influxToken  string
	influxOrg    string
	influxBucket string
	pushURL      string
	trace        bool
}

func newRootCmd() *cobra.Command {
	var a cmdOpt
	cmd := &cobra.Command{
		Use:   "goraim [flags] obs.rnx nav.rnx",
		Short: "Single point positioning with RAIM fault exclusion",
		Long: `goraim computes receiver positions epoch by epoch from a RINEX 3 observation
file and a RINEX 3 navigation file. Pseudoranges are corrected for the
ionosphere with the dual-frequency combination, solved by iterative least
squares, checked by the RMS residual test and, when the test fails, repaired
by excluding satellites one at a time.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.obsFn, a.navFn = args[0], args[1]
			cfg, err := loadConfig(cmd.Flags(), &a)
			if err != nil {
				return err
			}
			return runApplication(cmd.Context(), cmd.OutOrStdout(), a, cfg)
		},
	}
	bindFlags(cmd.Flags(), &a)
	return cmd
}

// Register command line flags on f
func bindFlags(f *pflag.FlagSet, a *cmdOpt) {
	def := config.Default()
	f.StringVar(&a.configFn, "config", "", "YAML configuration file. Flags override its values.")
	f.StringVarP(&a.posFn, "output", "o", "", "Output pos file path. If not specified, output to stdout.")
	f.BoolVar(&a.noPosHeader, "nh", false, "Do not output header section of pos file.")
	f.IntVarP(&a.dbg, "debug", "x", 0, "Debug information display. Specify level value. 0(OFF), 1(display), 2(detailed display), 3(more detailed), 4(most detailed)")
	f.StringVar(&a.logFormat, "log-format", def.LogFormat, "Log format. text or json")
	a.sys = def.Systems
	f.Var(&a.sys, "sys", "Satellite systems to use for calculation. G(GPS), J(QZSS), E(Galileo), R(Glonass), C(Beidou). Comma-separated without spaces.")
	f.Var(&a.exSats, "ex", "List of satellites to exclude. Comma-separated satellite names without spaces like C02,E14.")
	a.ts = *m.NewTimeStr(time.Time{})
	a.te = *m.NewTimeStr(time.Time{})
	f.Var(&a.ts, "ts", "Start epoch specification. Enclose in quotes like --ts \"2023/01/01 00:00:00\"")
	f.Var(&a.te, "te", "End epoch specification. Enclose in quotes like --te \"2023/01/02 00:00:00\". This epoch is also included.")
	f.IntVar(&a.ti, "ti", 0, "Calculation interval. Calculation is executed when the epoch's second value is divisible by the specified value. 0 calculates all epochs.")
	f.Var(&a.ref, "ref", "Reference position latitude/longitude/ellipsoidal height. Adds east/north/up error columns to the pos file. Enclose in quotes like --ref \"35.73101206 139.7396917 80.33\"")
	f.Float64Var(&a.rmsLimit, "rms-limit", def.RMSLimit, fmt.Sprintf("RMS residual limit of the integrity test [m]. %g is the usual RAIM setting.", m.StrictRMSLimit))
	f.BoolVar(&a.noRaim, "no-raim", false, "Do not exclude satellites when the RMS test fails.")
	f.StringVar(&a.fde, "fde", def.Fde.String(), "Exclusion strategy. largest(drop largest residual) or subset(best one-out subset)")
	f.StringVar(&a.trop, "trop", def.Troposphere, "Tropospheric model. none or saastamoinen")
	f.Float64VarP(&a.elMask, "elmask", "m", def.ElMask, "Elevation mask [deg]. Set to 0 for no mask.")
	f.IntVarP(&a.wghMode, "weight", "w", def.Weight, "Weighting method. 0(no weighting),1(RTKLIB method),2(RTK core method),3(GPS practical programming book method)")
	f.BoolVar(&a.bancroft, "bancroft", false, "Seed the first epoch with the Bancroft closed-form solution.")
	f.BoolVar(&a.dual, "dual", false, "Use only satellites with both pseudoranges.")
	f.IntVar(&a.track, "track", 0, "Output N satellite position samples per epoch (#SAT lines).")
	f.IntVar(&a.workers, "workers", def.Workers, "Number of goroutines. More than 1 reads the whole observation file first.")
	f.StringVar(&a.influxURL, "influx-url", "", "InfluxDB server URL. Empty disables the sink.")
	f.StringVar(&a.influxToken, "influx-token", "", "InfluxDB token")
	f.StringVar(&a.influxOrg, "influx-org", "", "InfluxDB organization")
	f.StringVar(&a.influxBucket, "influx-bucket", "", "InfluxDB bucket")
	f.StringVar(&a.pushURL, "push-url", "", "Prometheus Pushgateway URL. Empty disables pushing.")
	f.BoolVar(&a.trace, "trace", false, "Print an OpenTelemetry span per epoch to stderr.")
}

// Reference position in ECEF, nil when --ref is not given
func (a *cmdOpt) refPos() *m.PosXYZ {
	if a.ref == (m.PosLLH{}) {
		return nil
	}
	xyz := a.ref.ToXYZ()
	return &xyz
}

// Read the configuration file and apply the flags given on the command line
func loadConfig(f *pflag.FlagSet, a *cmdOpt) (*config.Config, error) {
	cfg := config.Default()
	if a.configFn != "" {
		var err error
		if cfg, err = config.Load(a.configFn); err != nil {
			return nil, err
		}
	}
	if f.Changed("sys") {
		cfg.Systems = a.sys
	}
	if f.Changed("ex") {
		cfg.Exclude = a.exSats
	}
	if f.Changed("rms-limit") {
		if a.rmsLimit <= 0 {
			return nil, fmt.Errorf("--rms-limit must be positive")
		}
		cfg.RMSLimit = a.rmsLimit
	}
	if f.Changed("no-raim") {
		cfg.Exclusion = !a.noRaim
	}
	if f.Changed("fde") {
		fde, err := m.ParseFdeMode(a.fde)
		if err != nil {
			return nil, err
		}
		cfg.Fde = fde
	}
	if f.Changed("trop") {
		cfg.Troposphere = a.trop
	}
	if f.Changed("elmask") {
		cfg.ElMask = a.elMask
	}
	if f.Changed("weight") {
		cfg.Weight = a.wghMode
	}
	if f.Changed("bancroft") {
		cfg.Bancroft = a.bancroft
	}
	if f.Changed("dual") {
		cfg.DualFreq = a.dual
	}
	if f.Changed("track") {
		cfg.TrackN = a.track
	}
	if f.Changed("workers") {
		cfg.Workers = max(a.workers, 1)
	}
	if f.Changed("debug") {
		cfg.LogLevel = logging.DebugLevel(a.dbg)
	}
	if f.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if a.influxURL != "" {
		cfg.Influx = config.Influx{URL: a.influxURL, Token: a.influxToken, Org: a.influxOrg, Bucket: a.influxBucket}
	}
	if a.pushURL != "" {
		cfg.Push.URL = a.pushURL
	}
	if a.trace {
		cfg.Tracing.Enabled = true
	}
	return cfg, nil
}

// Main application processing
func runApplication(ctx context.Context, stdout io.Writer, a cmdOpt, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stderr)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	log = log.With("run", runID)

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
		RunID:       runID,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer tracing.ShutdownWithTimeout(context.Background(), shutdown, log)

	// Load input files
	store, err := readNav(a.navFn)
	if err != nil {
		return fmt.Errorf("failed to read navigation file: %w", err)
	}
	log.Info("navigation data loaded", "file", filepath.Base(a.navFn), "records", store.Len(), "sats", len(store.Sats()))
	log.Debug("navigation data", "store", store.String())

	obsf, err := os.Open(a.obsFn)
	if err != nil {
		return fmt.Errorf("failed to read observation file: %w", err)
	}
	defer obsf.Close()
	rdr, err := m.NewObsReader(obsf)
	if err != nil {
		return fmt.Errorf("failed to read observation file: %w", err)
	}
	rdr.Logger = log
	src := &m.WindowSource{Src: rdr, Start: time.Time(a.ts), End: time.Time(a.te), Interval: a.ti}

	// Outputs
	var collector *metrics.Collector
	if cfg.Push.URL != "" {
		if collector, err = metrics.New(prometheus.NewRegistry()); err != nil {
			return err
		}
	}
	var snk *sink.Sink
	if cfg.Influx.URL != "" {
		snk = sink.New(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, runID)
		defer snk.Close()
	}
	pos, err := prepareOutput(a.posFn, stdout)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer pos.Close()

	if !a.noPosHeader {
		printPosHeader(pos, os.Args[0], a, cfg, runID)
	}

	if _, err := cfg.RaimOpt(); err != nil {
		return err
	}
	newProcessor := func(src m.EpochSource) *m.Processor {
		opt, _ := cfg.RaimOpt() // checked above
		opt.Logger = log
		p := m.NewProcessor(src, store, opt)
		p.Assembler = cfg.Assembler()
		p.Assembler.Logger = log
		p.Track = cfg.TrackN
		p.TrackStep = cfg.TrackStep
		return p
	}

	ref := a.refPos()
	emit := func(res *m.EpochResult) error {
		printPos(pos, res, ref)
		collector.Observe(res)
		if snk != nil {
			if err := snk.Write(ctx, res); err != nil {
				log.Warn("sink write failed", "err", err)
			}
		}
		return nil
	}

	// Process epochs
	if cfg.Workers > 1 {
		list, err := m.ReadAll(src)
		if err != nil {
			return fmt.Errorf("failed to read observation file: %w", err)
		}
		log.Debug("observation data", "summary", list.String())
		results, err := m.ProcessAll(ctx, list.DatE, func() *m.Processor { return newProcessor(nil) }, cfg.Workers)
		if err != nil {
			return err
		}
		for _, res := range results {
			_ = emit(res)
		}
	} else {
		if err := newProcessor(src).Run(ctx, emit); err != nil {
			return fmt.Errorf("failed to process epochs: %w", err)
		}
	}

	if collector != nil {
		if err := collector.Push(cfg.Push.URL, cfg.Push.Job, runID); err != nil {
			log.Warn("metrics push failed", "err", err)
		}
	}
	return nil
}

// Read navigation file
func readNav(fn string) (*m.EphemerisStore, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	store := m.NewEphemerisStore(nil)
	if err := store.LoadNav(f); err != nil {
		return nil, err
	}
	return store, nil
}

// Prepare output file
func prepareOutput(fn string, stdout io.Writer) (io.WriteCloser, error) {

	// Use stdout if no output file is specified
	if len(fn) == 0 {
		return &nopCloser{stdout}, nil
	}

	posf, err := os.Create(fn)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return posf, nil
}

// nopCloser - WriteCloser that ignores close operations
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Print pos file header
func printPosHeader(pos io.Writer, cmd string, a cmdOpt, cfg *config.Config, runID string) {
	fmt.Fprintf(pos, "%% program   : %s\n", filepath.Base(cmd))
	fmt.Fprintf(pos, "%% run id    : %s\n", runID)
	fmt.Fprintf(pos, "%% inp file  : %s\n", a.obsFn)
	fmt.Fprintf(pos, "%% inp file  : %s\n", a.navFn)
	fmt.Fprintf(pos, "%% systems   : %s\n", cfg.Systems.String())
	fmt.Fprintf(pos, "%% rms limit : %g m (exclusion %s, %s)\n", cfg.RMSLimit, onOff(cfg.Exclusion), cfg.Fde)
	fmt.Fprintf(pos, "%% tropo     : %s  elmask : %g deg\n", cfg.Troposphere, cfg.ElMask)
	if a.refPos() != nil {
		fmt.Fprintf(pos, "%% ref pos   : %s\n", a.ref.String())
	}
	fmt.Fprintf(pos, "%% Q         : 1(converged) 2(excluded) 5(invalid)\n")
	cols := "%  GPST                 latitude(deg) longitude(deg)  height(m)           x-ecef(m)      y-ecef(m)      z-ecef(m)   Q  ns      clk_bias(s)     rms(m)       gdop       pdop"
	if a.refPos() != nil {
		cols += "   e-ref(m)   n-ref(m)   u-ref(m)"
	}
	fmt.Fprintln(pos, cols)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Output POS file. With ref, the east/north/up offsets of the solution from
// ref are appended. Track lines are written whether or not the epoch has a
// solution.
func printPos(pos io.Writer, res *m.EpochResult, ref *m.PosXYZ) {
	if sol := res.Sol; sol != nil {
		rcvt := m.GTime{Week: res.Time.Week, Sec: math.Round(res.Time.Sec*1000) / 1000} // Round time to milliseconds
		rcvtStr := rcvt.ToTime().UTC().Format("2006/01/02 15:04:05.000")
		var lat, lon, hei float64
		if res.LLH != nil {
			lat, lon, hei = m.ToDeg(res.LLH.Lat), m.ToDeg(res.LLH.Lon), res.LLH.Hei
		}
		fmt.Fprintf(pos, "%s %13.9f %14.9f %10.4f %19.4f %14.4f %14.4f %3d %3d %16.9f %10.4f %10.3f %10.3f",
			rcvtStr, lat, lon, hei, sol.Pos.X, sol.Pos.Y, sol.Pos.Z, res.Quality(), len(sol.Sats), sol.ClkSec(), sol.RMS, sol.Dop["gdop"], sol.Dop["pdop"])
		if ref != nil {
			enu := sol.Pos.ToENU(*ref)
			fmt.Fprintf(pos, " %10.4f %10.4f %10.4f", enu.E, enu.N, enu.U)
		}
		fmt.Fprintln(pos)
	}
	for _, st := range res.Track {
		fmt.Fprintf(pos, "#SAT %s %s %14.4f %14.4f %14.4f %16.9f\n",
			st.Time.ToTime().UTC().Format("2006/01/02 15:04:05"), st.Sat, st.Pos.X, st.Pos.Y, st.Pos.Z, st.ClkBias)
	}
}
