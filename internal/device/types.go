package device

import (
	"encoding/json"
	"fmt"
	"time"
)

// Device is the canonical server-reported state of one physical sensor or actuator.
//
// A device belongs to exactly one hub and at most one area. AreaID nil means the
// device is unassigned.
type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       TypeCode   `json:"type"`
	HubID      string     `json:"hub_id"`
	AreaID     *string    `json:"area_id,omitempty"`
	Value      Value      `json:"value"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// Info returns the registry entry for the device's type code.
func (d Device) Info() TypeInfo {
	return LookupType(d.Type)
}

// Category returns the device's category via the type registry.
func (d Device) Category() Category {
	return LookupType(d.Type).Category
}

// Unassigned reports whether the device has no area.
func (d Device) Unassigned() bool {
	return d.AreaID == nil
}

// InArea reports whether the device is assigned to areaID.
func (d Device) InArea(areaID string) bool {
	return d.AreaID != nil && *d.AreaID == areaID
}

// ValueKind says how a reading should be interpreted.
type ValueKind string

// Value kinds.
const (
	KindNone       ValueKind = "none"
	KindContinuous ValueKind = "continuous"
	KindDiscrete   ValueKind = "discrete"
)

// Value is a device's latest reading.
//
// The zero Value is NoData. Construct with Continuous, Discrete or NoData.
type Value struct {
	kind   ValueKind
	number float64
	code   int
}

// Continuous returns a measured reading such as a temperature.
func Continuous(v float64) Value {
	return Value{kind: KindContinuous, number: v}
}

// Discrete returns an enumerated state code such as 0 = off, 1 = on.
func Discrete(code int) Value {
	return Value{kind: KindDiscrete, code: code}
}

// NoData returns the absent reading.
func NoData() Value {
	return Value{}
}

// Kind returns the reading's kind. The zero Value reports KindNone.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindNone
	}
	return v.kind
}

// Present reports whether the device has reported anything.
func (v Value) Present() bool {
	return v.Kind() != KindNone
}

// Float returns the reading as a number. Discrete codes convert exactly.
func (v Value) Float() (float64, bool) {
	switch v.Kind() {
	case KindContinuous:
		return v.number, true
	case KindDiscrete:
		return float64(v.code), true
	default:
		return 0, false
	}
}

// Code returns the discrete state code.
func (v Value) Code() (int, bool) {
	if v.Kind() != KindDiscrete {
		return 0, false
	}
	return v.code, true
}

// Equal reports whether two readings are identical.
func (v Value) Equal(o Value) bool {
	return v.Kind() == o.Kind() && v.number == o.number && v.code == o.code
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.Kind() {
	case KindContinuous:
		return fmt.Sprintf("%g", v.number)
	case KindDiscrete:
		return fmt.Sprintf("#%d", v.code)
	default:
		return "no data"
	}
}

// valueJSON is the wire shape used by the local panel API.
type valueJSON struct {
	Kind  ValueKind `json:"kind"`
	Value *float64  `json:"value,omitempty"`
	Code  *int      `json:"code,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Kind: v.Kind()}
	switch out.Kind {
	case KindContinuous:
		n := v.number
		out.Value = &n
	case KindDiscrete:
		c := v.code
		out.Code = &c
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case KindContinuous:
		if in.Value == nil {
			return fmt.Errorf("%w: continuous value without number", ErrInvalidValue)
		}
		*v = Continuous(*in.Value)
	case KindDiscrete:
		if in.Code == nil {
			return fmt.Errorf("%w: discrete value without code", ErrInvalidValue)
		}
		*v = Discrete(*in.Code)
	case KindNone, "":
		*v = NoData()
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidValue, in.Kind)
	}
	return nil
}
