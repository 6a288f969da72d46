package ups

import (
	"strconv"
	"strings"
)

// OutputStatus is the basic output status code reported by the UPS
// (upsBasicOutputStatus in the PowerNet MIB).
type OutputStatus int

const (
	StatusUnknown               OutputStatus = 1
	StatusOnline                OutputStatus = 3
	StatusOnBypass              OutputStatus = 4
	StatusOnBattery             OutputStatus = 5
	StatusOff                   OutputStatus = 6
	StatusRebooting             OutputStatus = 7
	StatusHardwareFailure       OutputStatus = 9
	StatusSoftwareFailure       OutputStatus = 10
	StatusInTest                OutputStatus = 11
	StatusEmergencyStaticBypass OutputStatus = 12
)

var outputStatusLabels = map[OutputStatus]string{
	StatusUnknown:               "Unknown",
	StatusOnline:                "Online",
	StatusOnBypass:              "On Bypass",
	StatusOnBattery:             "On Battery",
	StatusOff:                   "Off",
	StatusRebooting:             "Rebooting",
	StatusHardwareFailure:       "Hardware Failure",
	StatusSoftwareFailure:       "Software Failure",
	StatusInTest:                "In Test",
	StatusEmergencyStaticBypass: "Emergency Static Bypass",
}

func (s OutputStatus) String() string {
	if l, ok := outputStatusLabels[s]; ok {
		return l
	}
	return "Unknown (" + strconv.Itoa(int(s)) + ")"
}

// BatteryStatus is the battery status code (upsBasicBatteryStatus).
type BatteryStatus int

const (
	BatteryUnknown  BatteryStatus = 1
	BatteryNormal   BatteryStatus = 2
	BatteryLow      BatteryStatus = 3
	BatteryDepleted BatteryStatus = 4
)

var batteryStatusLabels = map[BatteryStatus]string{
	BatteryUnknown:  "Unknown",
	BatteryNormal:   "Battery Normal",
	BatteryLow:      "Battery Low",
	BatteryDepleted: "Battery Depleted",
}

func (b BatteryStatus) String() string {
	if l, ok := batteryStatusLabels[b]; ok {
		return l
	}
	return "Unknown (" + strconv.Itoa(int(b)) + ")"
}

// Code is a looked-up coded value. Known is false for codes outside the table,
// in which case Raw carries the device value untouched.
type Code struct {
	Raw   string
	Label string
	Known bool
}

// Text is the label for known codes and "Unknown (<raw>)" otherwise.
func (c Code) Text() string {
	if c.Known {
		return c.Label
	}
	return "Unknown (" + c.Raw + ")"
}

// Short is the label for known codes and the raw value otherwise.
func (c Code) Short() string {
	if c.Known {
		return c.Label
	}
	return c.Raw
}

// LookupStatus maps a raw status value onto the output status table.
func LookupStatus(raw string) Code {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err == nil {
		if l, ok := outputStatusLabels[OutputStatus(n)]; ok {
			return Code{Raw: raw, Label: l, Known: true}
		}
	}
	return Code{Raw: raw}
}

// LookupBatteryStatus maps a raw battery status value onto its table.
func LookupBatteryStatus(raw string) Code {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err == nil {
		if l, ok := batteryStatusLabels[BatteryStatus(n)]; ok {
			return Code{Raw: raw, Label: l, Known: true}
		}
	}
	return Code{Raw: raw}
}

// Lookup resolves coded fields; ok is false for fields without a table.
func Lookup(f Field, raw string) (Code, bool) {
	switch f {
	case FieldStatus:
		return LookupStatus(raw), true
	case FieldBatteryStatus:
		return LookupBatteryStatus(raw), true
	default:
		return Code{}, false
	}
}

// OnBattery reports whether the reading says the load runs from battery.
func (r Reading) OnBattery() bool {
	v, ok := r.Get(FieldStatus)
	if !ok {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return err == nil && OutputStatus(n) == StatusOnBattery
}
