package device

import (
	"fmt"
	"math"
	"sort"
)

// TypeCode is the backend's numeric device type.
type TypeCode int

// Category groups device types for the dashboard.
type Category string

// Categories. Every type code maps to exactly one of these.
const (
	CategoryEnvironmental Category = "environmental"
	CategorySecurity      Category = "security"
	CategoryControl       Category = "control"
)

// AllCategories returns every category in display order.
func AllCategories() []Category {
	return []Category{CategoryEnvironmental, CategorySecurity, CategoryControl}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range AllCategories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// TypeInfo describes one device type code.
type TypeInfo struct {
	Code        TypeCode  `json:"code"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Kind        ValueKind `json:"kind"`
	Unit        string    `json:"unit,omitempty"`
	// Switchable types accept on/off commands (target value 0 or 1).
	Switchable bool `json:"switchable"`
}

// MaxLevel is the upper bound for continuous (dimmer) targets.
const MaxLevel = 100

// CheckTarget reports whether target is a valid command value for the type.
// Discrete switchable types take 0 or 1; continuous ones take 0 to MaxLevel.
func (t TypeInfo) CheckTarget(target float64) error {
	switch {
	case !t.Switchable:
		return ErrNotSwitchable
	case math.IsNaN(target):
		return fmt.Errorf("%w: not a number", ErrInvalidTarget)
	case t.Kind == KindDiscrete && target != 0 && target != 1:
		return fmt.Errorf("%w: %g is not 0 or 1", ErrInvalidTarget, target)
	case target < 0 || target > MaxLevel:
		return fmt.Errorf("%w: %g is outside 0..%d", ErrInvalidTarget, target, MaxLevel)
	}
	return nil
}

// Known type codes.
const (
	TypeTemperature TypeCode = 1
	TypeHumidity    TypeCode = 2
	TypeMotion      TypeCode = 3
	TypeSmartPlug   TypeCode = 4
	TypeContact     TypeCode = 5
	TypeLightLevel  TypeCode = 6
	TypeDimmer      TypeCode = 7
	TypeSmoke       TypeCode = 8
	TypeCO2         TypeCode = 9
	TypeCamera      TypeCode = 10
	TypeRelay       TypeCode = 11
	TypeWaterLeak   TypeCode = 12
)

var types = map[TypeCode]TypeInfo{
	TypeTemperature: {Description: "Temperature sensor", Category: CategoryEnvironmental, Kind: KindContinuous, Unit: "°C"},
	TypeHumidity:    {Description: "Humidity sensor", Category: CategoryEnvironmental, Kind: KindContinuous, Unit: "%"},
	TypeMotion:      {Description: "Motion sensor", Category: CategorySecurity, Kind: KindDiscrete},
	TypeSmartPlug:   {Description: "Smart plug", Category: CategoryControl, Kind: KindDiscrete, Switchable: true},
	TypeContact:     {Description: "Door/window contact", Category: CategorySecurity, Kind: KindDiscrete},
	TypeLightLevel:  {Description: "Light level sensor", Category: CategoryEnvironmental, Kind: KindContinuous, Unit: "lx"},
	TypeDimmer:      {Description: "Dimmable light", Category: CategoryControl, Kind: KindContinuous, Unit: "%", Switchable: true},
	TypeSmoke:       {Description: "Smoke detector", Category: CategorySecurity, Kind: KindDiscrete},
	TypeCO2:         {Description: "CO2 sensor", Category: CategoryEnvironmental, Kind: KindContinuous, Unit: "ppm"},
	TypeCamera:      {Description: "Camera", Category: CategorySecurity, Kind: KindDiscrete},
	TypeRelay:       {Description: "Relay switch", Category: CategoryControl, Kind: KindDiscrete, Switchable: true},
	TypeWaterLeak:   {Description: "Water leak sensor", Category: CategorySecurity, Kind: KindDiscrete},
}

// unknownType is returned for codes the registry does not know. It is filed
// under environmental so category counts always sum to the device total.
var unknownType = TypeInfo{Description: "Unknown sensor", Category: CategoryEnvironmental, Kind: KindContinuous}

// LookupType returns the registry entry for code. Unknown codes get a generic
// environmental entry rather than an error.
func LookupType(code TypeCode) TypeInfo {
	info, ok := types[code]
	if !ok {
		info = unknownType
	}
	info.Code = code
	return info
}

// KnownType reports whether the registry has an entry for code.
func KnownType(code TypeCode) bool {
	_, ok := types[code]
	return ok
}

// Types returns every registered type ordered by code.
func Types() []TypeInfo {
	out := make([]TypeInfo, 0, len(types))
	for code := range types {
		out = append(out, LookupType(code))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
