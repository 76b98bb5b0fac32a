// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Package sink writes epoch solutions to InfluxDB.
package sink

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mkhts/goraim"
)

// Measurement name of solution points
const Measurement = "raim"

// PointWriter is the part of the InfluxDB blocking write API used here.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes one point per solved epoch.
type Sink struct {
	w      PointWriter
	runID  string
	client influxdb2.Client
}

// New connects to an InfluxDB 2 server.
func New(url, token, org, bucket, runID string) *Sink {
	client := influxdb2.NewClient(url, token)
	return &Sink{
		w:      client.WriteAPIBlocking(org, bucket),
		runID:  runID,
		client: client,
	}
}

// NewWithWriter builds a sink around an existing writer.
func NewWithWriter(w PointWriter, runID string) *Sink {
	return &Sink{w: w, runID: runID}
}

// Write stores the solution of an epoch. Epochs without a solution are skipped.
func (s *Sink) Write(ctx context.Context, res *goraim.EpochResult) error {
	p := ToPoint(res, s.runID)
	if p == nil {
		return nil
	}
	if err := s.w.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write point at %s: %w", res.Time, err)
	}
	return nil
}

// Close releases the server connection.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// ToPoint converts a result to a point, or nil when it carries no solution.
func ToPoint(res *goraim.EpochResult, runID string) *write.Point {
	sol := res.Sol
	if sol == nil {
		return nil
	}
	p := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("run", runID).
		AddTag("state", sol.State.String()).
		AddTag("quality", strconv.Itoa(res.Quality())).
		AddField("x", sol.Pos.X).
		AddField("y", sol.Pos.Y).
		AddField("z", sol.Pos.Z).
		AddField("clk_bias", sol.ClkSec()).
		AddField("rms", sol.RMS).
		AddField("ns", len(sol.Sats)).
		AddField("excluded", len(sol.Excluded)).
		AddField("iter", sol.Iter).
		AddField("valid", sol.Valid).
		SetTime(res.Time.ToTime())
	if res.LLH != nil {
		p.AddField("latitude", goraim.ToDeg(res.LLH.Lat)).
			AddField("longitude", goraim.ToDeg(res.LLH.Lon)).
			AddField("height", res.LLH.Hei)
	}
	if g, ok := sol.Dop["gdop"]; ok {
		p.AddField("gdop", g)
	}
	return p
}
