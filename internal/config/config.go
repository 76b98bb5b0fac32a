// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Package config reads the YAML processing configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mkhts/goraim"
)

/***** CONSTANT ********************************/

const (
	MIN_WORKERS  = 1
	MAX_WORKERS  = 256
	MIN_MAX_ITER = 1
	MAX_MAX_ITER = 100
	MAX_ELMASK   = 90.0
	MAX_TRACK    = 1000
)

/***** STRUCT **********************************/

type tTrack struct {
	Samples int     `yaml:"samples"`
	Step    float64 `yaml:"step"`
}

type tLog struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Influx holds the InfluxDB sink settings. An empty URL disables the sink.
type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Push holds the Prometheus Pushgateway settings. An empty URL disables it.
type Push struct {
	URL string `yaml:"url"`
	Job string `yaml:"job"`
}

// Tracing holds the OpenTelemetry settings.
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Raw file layout. Pointers tell unset values from zero values.
type tConfig struct {
	Systems     []string `yaml:"systems"`
	Exclude     []string `yaml:"exclude"`
	RMSLimit    *float64 `yaml:"rms_limit"`
	Exclusion   *bool    `yaml:"exclusion"`
	Fde         string   `yaml:"fde"`
	MaxIter     *int     `yaml:"max_iter"`
	ElMask      *float64 `yaml:"elevation_mask"`
	Weight      *int     `yaml:"weight"`
	Troposphere string   `yaml:"troposphere"`
	Bancroft    bool     `yaml:"bancroft"`
	MaxGdop     float64  `yaml:"max_gdop"`
	ChiTest     bool     `yaml:"chi_test"`
	DualFreq    bool     `yaml:"dual_freq"`
	Workers     *int     `yaml:"workers"`
	Track       tTrack   `yaml:"track"`
	Log         tLog     `yaml:"log"`
	Influx      Influx   `yaml:"influx"`
	Push        Push     `yaml:"push"`
	Tracing     Tracing  `yaml:"tracing"`
}

/***********************************************/

// Config is a validated configuration.
type Config struct {
	Systems     goraim.SysVar
	Exclude     goraim.SatVar
	RMSLimit    float64
	Exclusion   bool
	Fde         goraim.FdeMode
	MaxIter     int
	ElMask      float64
	Weight      int
	Troposphere string
	Bancroft    bool
	MaxGdop     float64
	ChiTest     bool
	DualFreq    bool
	Workers     int
	TrackN      int
	TrackStep   float64
	LogLevel    string
	LogFormat   string
	Influx      Influx
	Push        Push
	Tracing     Tracing
}

/***** FUNCTION ********************************/

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Systems:     goraim.SysVar{'G'},
		Exclude:     goraim.SatVar{},
		RMSLimit:    goraim.DefaultRMSLimit,
		Exclusion:   true,
		Fde:         goraim.FdeLargestResidual,
		MaxIter:     goraim.MAX_LOOP_COUNT,
		Troposphere: "saastamoinen",
		Workers:     1,
		TrackStep:   1,
		LogLevel:    "info",
		LogFormat:   "text",
		Push:        Push{Job: "goraim"},
		Tracing:     Tracing{Exporter: "stdout", SampleRatio: 1},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	cfg, err := Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads a configuration from r. Keys not present keep their defaults.
func Parse(r io.Reader) (*Config, error) {
	var raw tConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg := Default()

	// systems and satellites
	if len(raw.Systems) > 0 {
		if err := cfg.Systems.Set(strings.Join(raw.Systems, ",")); err != nil {
			return nil, fmt.Errorf(`invalid "systems": %w`, err)
		}
	}
	if len(raw.Exclude) > 0 {
		if err := cfg.Exclude.Set(strings.Join(raw.Exclude, ",")); err != nil {
			return nil, fmt.Errorf(`invalid "exclude": %w`, err)
		}
	}

	// solver
	if raw.RMSLimit != nil {
		if *raw.RMSLimit <= 0 {
			return nil, errors.New(`value in "rms_limit" must be positive`)
		}
		cfg.RMSLimit = *raw.RMSLimit
	}
	if raw.Exclusion != nil {
		cfg.Exclusion = *raw.Exclusion
	}
	fde, err := goraim.ParseFdeMode(raw.Fde)
	if err != nil {
		return nil, fmt.Errorf(`invalid "fde": %w`, err)
	}
	cfg.Fde = fde
	if raw.MaxIter != nil {
		if *raw.MaxIter < MIN_MAX_ITER || *raw.MaxIter > MAX_MAX_ITER {
			return nil, fmt.Errorf(`value in "max_iter" must be in %d-%d`, MIN_MAX_ITER, MAX_MAX_ITER)
		}
		cfg.MaxIter = *raw.MaxIter
	}
	if raw.ElMask != nil {
		if *raw.ElMask < 0 || *raw.ElMask >= MAX_ELMASK {
			return nil, fmt.Errorf(`value in "elevation_mask" must be in 0-%g`, MAX_ELMASK)
		}
		cfg.ElMask = *raw.ElMask
	}
	if raw.Weight != nil {
		if *raw.Weight < 0 || *raw.Weight > 3 {
			return nil, errors.New(`value in "weight" must be in 0-3`)
		}
		cfg.Weight = *raw.Weight
	}
	if raw.Troposphere != "" {
		if _, err := goraim.NewTropModel(raw.Troposphere); err != nil {
			return nil, fmt.Errorf(`invalid "troposphere": %w`, err)
		}
		cfg.Troposphere = raw.Troposphere
	}
	if raw.MaxGdop < 0 {
		return nil, errors.New(`value in "max_gdop" must not be negative`)
	}
	cfg.MaxGdop = raw.MaxGdop
	cfg.Bancroft = raw.Bancroft
	cfg.ChiTest = raw.ChiTest
	cfg.DualFreq = raw.DualFreq

	// processing
	if raw.Workers != nil {
		if *raw.Workers < MIN_WORKERS || *raw.Workers > MAX_WORKERS {
			return nil, fmt.Errorf(`value in "workers" must be in %d-%d`, MIN_WORKERS, MAX_WORKERS)
		}
		cfg.Workers = *raw.Workers
	}
	if raw.Track.Samples < 0 || raw.Track.Samples > MAX_TRACK {
		return nil, fmt.Errorf(`value in "track.samples" must be in 0-%d`, MAX_TRACK)
	}
	cfg.TrackN = raw.Track.Samples
	if raw.Track.Step < 0 {
		return nil, errors.New(`value in "track.step" must not be negative`)
	}
	if raw.Track.Step > 0 {
		cfg.TrackStep = raw.Track.Step
	}

	// outputs
	if raw.Log.Level != "" {
		cfg.LogLevel = raw.Log.Level
	}
	if raw.Log.Format != "" {
		cfg.LogFormat = raw.Log.Format
	}
	if raw.Influx.URL != "" && raw.Influx.Bucket == "" {
		return nil, errors.New(`no "influx.bucket"`)
	}
	cfg.Influx = raw.Influx
	if raw.Push.URL != "" {
		cfg.Push.URL = raw.Push.URL
	}
	if raw.Push.Job != "" {
		cfg.Push.Job = raw.Push.Job
	}
	cfg.Tracing.Enabled = raw.Tracing.Enabled
	if raw.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = raw.Tracing.Exporter
	}
	cfg.Tracing.Endpoint = raw.Tracing.Endpoint
	if raw.Tracing.SampleRatio < 0 || raw.Tracing.SampleRatio > 1 {
		return nil, errors.New(`value in "tracing.sample_ratio" must be in 0-1`)
	}
	if raw.Tracing.SampleRatio > 0 {
		cfg.Tracing.SampleRatio = raw.Tracing.SampleRatio
	}
	return cfg, nil
}

// RaimOpt returns the solver options of the configuration.
func (c *Config) RaimOpt() (*goraim.RaimOpt, error) {
	trop, err := goraim.NewTropModel(c.Troposphere)
	if err != nil {
		return nil, err
	}
	opt := goraim.NewRaimOpt()
	opt.RMSLimit = c.RMSLimit
	opt.Exclusion = c.Exclusion
	opt.FdeMode = c.Fde
	opt.MaxIter = c.MaxIter
	opt.ElMask = c.ElMask
	opt.WghMode = c.Weight
	opt.Trop = trop
	opt.Bancroft = c.Bancroft
	opt.MaxGdop = c.MaxGdop
	opt.ChiTest = c.ChiTest
	return opt, nil
}

// Assembler returns the epoch assembler of the configuration.
func (c *Config) Assembler() *goraim.Assembler {
	a := goraim.NewAssembler()
	a.Sys = append([]goraim.SysType{}, c.Systems...)
	a.ExSats = append([]goraim.SatType{}, c.Exclude...)
	a.RequireDualFreq = c.DualFreq
	return a
}
