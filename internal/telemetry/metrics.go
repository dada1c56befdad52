package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// Metrics records pipeline activity. It implements room.Observer and its
// SynthAttempt method plugs into tts.ClientConfig.OnAttempt.
type Metrics struct {
	rooms       metric.Int64UpDownCounter
	transitions metric.Int64Counter
	queued      metric.Int64Counter
	dropped     metric.Int64Counter
	skipped     metric.Int64Counter
	played      metric.Int64Counter
	playLatency metric.Float64Histogram
	attempts    metric.Int64Counter
	attemptTime metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.rooms, err = meter.Int64UpDownCounter("voxroom.rooms.active",
		metric.WithDescription("Rooms with a running session")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("voxroom.room.transitions",
		metric.WithDescription("Worker state transitions by target state")); err != nil {
		return nil, err
	}
	if m.queued, err = meter.Int64Counter("voxroom.utterances.queued"); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("voxroom.utterances.dropped",
		metric.WithDescription("Utterances dropped before playback by reason")); err != nil {
		return nil, err
	}
	if m.skipped, err = meter.Int64Counter("voxroom.utterances.skipped",
		metric.WithDescription("Utterances skipped by the worker by reason")); err != nil {
		return nil, err
	}
	if m.played, err = meter.Int64Counter("voxroom.utterances.played"); err != nil {
		return nil, err
	}
	if m.playLatency, err = meter.Float64Histogram("voxroom.utterance.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time from dequeue to end of playback")); err != nil {
		return nil, err
	}
	if m.attempts, err = meter.Int64Counter("voxroom.tts.attempts",
		metric.WithDescription("Synthesis attempts by provider and outcome")); err != nil {
		return nil, err
	}
	if m.attemptTime, err = meter.Float64Histogram("voxroom.tts.attempt.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

var _ room.Observer = (*Metrics)(nil)

func (m *Metrics) RoomOpened(string) { m.rooms.Add(context.Background(), 1) }

func (m *Metrics) RoomClosed(string) { m.rooms.Add(context.Background(), -1) }

func (m *Metrics) StateChanged(_ string, _, to room.State) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", string(to))))
}

func (m *Metrics) Queued(_ string, u speech.Utterance, _ int) {
	m.queued.Add(context.Background(), 1, metric.WithAttributes(attribute.String("origin", string(u.Origin))))
}

func (m *Metrics) Dropped(_ string, _ speech.Utterance, reason string) {
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Skipped(_ string, _ speech.Utterance, reason string, _ int) {
	m.skipped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Played(_ string, _ speech.Utterance, provider string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.played.Add(context.Background(), 1, attrs)
	m.playLatency.Record(context.Background(), elapsed.Seconds(), attrs)
}

// SynthAttempt records one synthesis attempt.
func (m *Metrics) SynthAttempt(provider, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("provider", provider), attribute.String("outcome", outcome))
	m.attempts.Add(context.Background(), 1, attrs)
	m.attemptTime.Record(context.Background(), elapsed.Seconds(), attrs)
}
