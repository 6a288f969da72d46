package ups

import (
	"fmt"
	"strings"
)

// Field names one UPS reading. The set is fixed; anything else is rejected by
// ParseField.
type Field string

const (
	FieldStatus          Field = "status"
	FieldBatteryStatus   Field = "battery_status"
	FieldBatteryCapacity Field = "battery_capacity"
	FieldBatteryRuntime  Field = "battery_runtime"
	FieldInputVoltage    Field = "input_voltage"
	FieldInputFrequency  Field = "input_frequency"
	FieldOutputVoltage   Field = "output_voltage"
	FieldOutputFrequency Field = "output_frequency"
	FieldOutputLoad      Field = "output_load"
	FieldOutputCurrent   Field = "output_current"
	FieldOutputPower     Field = "output_power"
	FieldTemperature     Field = "temperature"
	FieldBypassVoltage   Field = "bypass_voltage"
	FieldAlarms          Field = "alarms"
)

// allFields is the canonical order used for iteration, change messages and
// configuration listings.
var allFields = []Field{
	FieldStatus,
	FieldBatteryStatus,
	FieldBatteryCapacity,
	FieldBatteryRuntime,
	FieldInputVoltage,
	FieldInputFrequency,
	FieldOutputVoltage,
	FieldOutputFrequency,
	FieldOutputLoad,
	FieldOutputCurrent,
	FieldOutputPower,
	FieldTemperature,
	FieldBypassVoltage,
	FieldAlarms,
}

var fieldIndex = func() map[Field]int {
	m := make(map[Field]int, len(allFields))
	for i, f := range allFields {
		m[f] = i
	}
	return m
}()

// AllFields returns every known field in canonical order.
func AllFields() []Field {
	return append([]Field(nil), allFields...)
}

// ParseField validates a field name (case-insensitive, '-' accepted for '_').
func ParseField(s string) (Field, error) {
	f := Field(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if _, ok := fieldIndex[f]; !ok {
		return "", fmt.Errorf("unknown ups field %q", s)
	}
	return f, nil
}

// Valid reports whether f belongs to the known vocabulary.
func (f Field) Valid() bool {
	_, ok := fieldIndex[f]
	return ok
}

func (f Field) String() string { return string(f) }

// Label turns the field name into a display label: separators become spaces
// and every word is capitalized ("output_load" -> "Output Load").
func (f Field) Label() string {
	return DisplayLabel(string(f))
}

// EnvSuffix is the upper-cased name used in environment variables
// (OID_UPS_<SUFFIX>, SCALE_<SUFFIX>).
func (f Field) EnvSuffix() string {
	return strings.ToUpper(string(f))
}

// DisplayLabel capitalizes each '_', '-' or space separated word of s.
func DisplayLabel(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func less(a, b Field) bool {
	ia, oka := fieldIndex[a]
	ib, okb := fieldIndex[b]
	switch {
	case oka && okb:
		return ia < ib
	case oka:
		return true
	case okb:
		return false
	default:
		return a < b
	}
}
