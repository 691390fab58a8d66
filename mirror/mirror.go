// Package mirror copies imported readings to a time-series database for external dashboards.
package mirror

import (
	"context"
	"fmt"

	"github.com/Iksvihii/daily-watt-sub000/config"
	"github.com/Iksvihii/daily-watt-sub000/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement name used for mirrored readings
const Measurement = "energy_consumption"

const writeBatchSize = 1000

// Sink receives readings after a successful import
type Sink interface {
	WriteMeasurements(ctx context.Context, items []models.Measurement) error
	Close()
}

// NoOpSink drops everything
type NoOpSink struct{}

func (NoOpSink) WriteMeasurements(context.Context, []models.Measurement) error { return nil }
func (NoOpSink) Close()                                                        {}

// InfluxSink writes points synchronously to an InfluxDB v2 bucket
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink creates the client; connectivity is checked by the first write
func NewInfluxSink(cfg config.InfluxDBConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// Point converts a reading into a line protocol point
func Point(m models.Measurement) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"user_id":  m.UserID,
			"meter_id": m.MeterID,
			"source":   m.Source,
		},
		map[string]interface{}{
			"consumption_kwh": m.Kwh,
		},
		m.Timestamp,
	)
}

func (s *InfluxSink) WriteMeasurements(ctx context.Context, items []models.Measurement) error {
	for start := 0; start < len(items); start += writeBatchSize {
		end := start + writeBatchSize
		if end > len(items) {
			end = len(items)
		}

		points := make([]*write.Point, 0, end-start)
		for _, item := range items[start:end] {
			points = append(points, Point(item))
		}
		if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
			return fmt.Errorf("failed to mirror measurements: %w", err)
		}
	}
	return nil
}

func (s *InfluxSink) Close() {
	s.client.Close()
}
