package api

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

// TimeField is the Struct key holding a record's timestamp (RFC 3339).
const TimeField = "time"

// UpdateFromStruct converts a control request. Recognised keys are x, y, z,
// yaw (numbers), mode (string) and armed (bool).
func UpdateFromStruct(s *structpb.Struct) (control.Update, error) {
	var u control.Update
	for key, v := range s.GetFields() {
		switch key {
		case "x", "y", "z", "yaw":
			n, ok := v.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return control.Update{}, fmt.Errorf("field %s: want a number", key)
			}
			f := n.NumberValue
			switch key {
			case "x":
				u.X = &f
			case "y":
				u.Y = &f
			case "z":
				u.Z = &f
			default:
				u.Yaw = &f
			}
		case "mode":
			str, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return control.Update{}, fmt.Errorf("field mode: want a string")
			}
			m, err := control.ParseMode(str.StringValue)
			if err != nil {
				return control.Update{}, err
			}
			u.Mode = &m
		case "armed":
			b, ok := v.GetKind().(*structpb.Value_BoolValue)
			if !ok {
				return control.Update{}, fmt.Errorf("field armed: want a bool")
			}
			armed := b.BoolValue
			u.Armed = &armed
		default:
			return control.Update{}, fmt.Errorf("unknown field %q", key)
		}
	}
	return u, nil
}

// UpdateToStruct is the inverse of UpdateFromStruct.
func UpdateToStruct(u control.Update) *structpb.Struct {
	fields := make(map[string]*structpb.Value)
	for key, f := range map[string]*float64{"x": u.X, "y": u.Y, "z": u.Z, "yaw": u.Yaw} {
		if f != nil {
			fields[key] = structpb.NewNumberValue(*f)
		}
	}
	if u.Mode != nil {
		fields["mode"] = structpb.NewStringValue(u.Mode.String())
	}
	if u.Armed != nil {
		fields["armed"] = structpb.NewBoolValue(*u.Armed)
	}
	return &structpb.Struct{Fields: fields}
}

// RecordToStruct flattens a telemetry record into named numeric fields plus
// its timestamp.
func RecordToStruct(r telemetry.Record) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(telemetry.FieldNames)+1)
	for name, v := range r.Fields() {
		fields[name] = structpb.NewNumberValue(v)
	}
	fields[TimeField] = structpb.NewStringValue(r.Time.UTC().Format(time.RFC3339Nano))
	return &structpb.Struct{Fields: fields}
}

// RecordFromStruct is the inverse of RecordToStruct. Unknown numeric keys
// are ignored.
func RecordFromStruct(s *structpb.Struct) (telemetry.Record, error) {
	var t time.Time
	m := make(map[string]float64, len(telemetry.FieldNames))
	for key, v := range s.GetFields() {
		if key == TimeField {
			parsed, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
			if err != nil {
				return telemetry.Record{}, fmt.Errorf("field time: %w", err)
			}
			t = parsed
			continue
		}
		m[key] = v.GetNumberValue()
	}
	return telemetry.FromFields(t, m), nil
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
