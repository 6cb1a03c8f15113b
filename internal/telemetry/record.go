// Package telemetry carries the per-tick debug record of the guidance loop
// to its consumers (API streams, the telemetry database, debug charts).
package telemetry

import "time"

// Axes holds one value per controlled axis.
type Axes struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

// Record is emitted once per autonomous tick.
type Record struct {
	Time time.Time `json:"time"`

	// Commanded is the shaped command in native units.
	Commanded Axes `json:"commanded"`
	// Output is the clamped PID output before shaping; Z excludes the
	// vertical base.
	Output Axes `json:"output"`
	// Error is the target expressed in the vehicle's body frame, with Z
	// negated to match the vertical channel's sign.
	Error   Axes `json:"error"`
	Target  Axes `json:"target"`
	Current Axes `json:"current"`

	Distance       float64 `json:"distance"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// FieldNames lists the keys returned by Fields in a stable order.
var FieldNames = []string{
	"command_x", "command_y", "command_z", "command_yaw",
	"output_x", "output_y", "output_z", "output_yaw",
	"error_x", "error_y", "error_z", "error_yaw",
	"target_x", "target_y", "target_z", "target_yaw",
	"current_x", "current_y", "current_z", "current_yaw",
	"distance", "elapsed_seconds",
}

// Fields flattens the record into named numeric fields.
func (r Record) Fields() map[string]float64 {
	m := make(map[string]float64, len(FieldNames))
	put := func(prefix string, a Axes) {
		m[prefix+"_x"] = a.X
		m[prefix+"_y"] = a.Y
		m[prefix+"_z"] = a.Z
		m[prefix+"_yaw"] = a.Yaw
	}
	put("command", r.Commanded)
	put("output", r.Output)
	put("error", r.Error)
	put("target", r.Target)
	put("current", r.Current)
	m["distance"] = r.Distance
	m["elapsed_seconds"] = r.ElapsedSeconds
	return m
}

// FromFields rebuilds a record from flattened fields. Missing keys are
// zero.
func FromFields(t time.Time, m map[string]float64) Record {
	get := func(prefix string) Axes {
		return Axes{X: m[prefix+"_x"], Y: m[prefix+"_y"], Z: m[prefix+"_z"], Yaw: m[prefix+"_yaw"]}
	}
	return Record{
		Time:           t,
		Commanded:      get("command"),
		Output:         get("output"),
		Error:          get("error"),
		Target:         get("target"),
		Current:        get("current"),
		Distance:       m["distance"],
		ElapsedSeconds: m["elapsed_seconds"],
	}
}

// Sink accepts telemetry records. Publish must not block the caller for
// long; the guidance loop calls it once per tick.
type Sink interface {
	Publish(Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Record)

// Publish implements Sink.
func (f SinkFunc) Publish(r Record) { f(r) }

// MultiSink publishes to every non-nil sink in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(r Record) {
	for _, s := range m {
		if s != nil {
			s.Publish(r)
		}
	}
}
