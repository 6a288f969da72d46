// Package report renders UPS readings and changes into Telegram messages
// (legacy Markdown parse mode).
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"upsmon/internal/ups"
)

const (
	// ParseMode is the Telegram parse mode every message here is written for.
	ParseMode = "Markdown"

	// TimeLayout is used for every footer timestamp.
	TimeLayout = "2006-01-02 15:04:05"

	na = "N/A"
)

// value returns the observed value of f or "N/A".
func value(r ups.Reading, f ups.Field) string {
	if v, ok := r.Get(f); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return na
}

// withUnit appends unit to observed values only, so absent values stay "N/A".
func withUnit(r ups.Reading, f ups.Field, unit string) string {
	v := value(r, f)
	if v == na {
		return v
	}
	return v + unit
}

func codeText(r ups.Reading, f ups.Field) string {
	v, ok := r.Get(f)
	if !ok || strings.TrimSpace(v) == "" {
		return na
	}
	c, _ := ups.Lookup(f, v)
	return c.Text()
}

// FormatRuntime converts a runtime in minutes into "Hh Mmin" or "M min".
// Absent values render as "N/A" and non-integer values are echoed.
func FormatRuntime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == na {
		return na
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return raw
	}
	h, m := minutes/60, minutes%60
	if h > 0 {
		return fmt.Sprintf("%dh %dmin", h, m)
	}
	return fmt.Sprintf("%d min", m)
}

// FormatPower converts watts to kilowatts with one decimal. Non-numeric
// values are echoed with a W suffix.
func FormatPower(raw string) string {
	w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw + " W"
	}
	return fmt.Sprintf("%.1f kW", w/1000)
}

// FullState renders every field of r. footer is shown as the last-updated
// time; callers pass either the current time or the stored timestamp.
func FullState(r ups.Reading, footer string) string {
	var b strings.Builder

	b.WriteString("🔋 *UPS Status*\n\n")
	fmt.Fprintf(&b, "📊 *General Status:* %s\n", codeText(r, ups.FieldStatus))
	fmt.Fprintf(&b, "🔋 *Battery:* %s\n", codeText(r, ups.FieldBatteryStatus))
	fmt.Fprintf(&b, "⚡ *Battery Charge:* %s\n", withUnit(r, ups.FieldBatteryCapacity, "%"))
	fmt.Fprintf(&b, "⏱️ *Runtime:* %s\n", FormatRuntime(value(r, ups.FieldBatteryRuntime)))

	b.WriteString("\n📥 *Input:*\n")
	fmt.Fprintf(&b, "   • Voltage: %s", withUnit(r, ups.FieldInputVoltage, " V"))
	if r.Present(ups.FieldInputFrequency) {
		fmt.Fprintf(&b, "\n   • Frequency: %s Hz", value(r, ups.FieldInputFrequency))
	}

	b.WriteString("\n\n📤 *Output:*\n")
	fmt.Fprintf(&b, "   • Voltage: %s", withUnit(r, ups.FieldOutputVoltage, " V"))
	if r.Present(ups.FieldOutputFrequency) {
		fmt.Fprintf(&b, "\n   • Frequency: %s Hz", value(r, ups.FieldOutputFrequency))
	}
	fmt.Fprintf(&b, "\n   • Load: %s", withUnit(r, ups.FieldOutputLoad, "%"))
	if r.Present(ups.FieldOutputCurrent) {
		fmt.Fprintf(&b, "\n   • Current: %s A", value(r, ups.FieldOutputCurrent))
	}
	if r.Present(ups.FieldOutputPower) {
		fmt.Fprintf(&b, "\n   • Power: %s", FormatPower(value(r, ups.FieldOutputPower)))
	}

	if r.Present(ups.FieldBypassVoltage) {
		fmt.Fprintf(&b, "\n\n🔄 *Bypass:* %s V", value(r, ups.FieldBypassVoltage))
	}

	fmt.Fprintf(&b, "\n\n🌡️ *Temperature:* %s", withUnit(r, ups.FieldTemperature, "°C"))

	if r.Present(ups.FieldAlarms) && strings.TrimSpace(value(r, ups.FieldAlarms)) != "0" {
		fmt.Fprintf(&b, "\n⚠️ *Active Alarms:* %s", value(r, ups.FieldAlarms))
	}

	if strings.TrimSpace(footer) == "" {
		footer = na
	}
	fmt.Fprintf(&b, "\n\n🕐 *Last update:* %s", footer)

	return b.String()
}

// FormatTimestamp renders t the way every footer does.
func FormatTimestamp(t time.Time) string { return t.Format(TimeLayout) }

// FullStateAt renders r with at as the footer time.
func FullStateAt(r ups.Reading, at time.Time) string {
	return FullState(r, FormatTimestamp(at))
}

// StoredState renders a persisted state using its own last_update.
func StoredState(st ups.State) string {
	footer, ok := st.LastUpdateText(TimeLayout)
	if !ok {
		footer = na
	}
	return FullState(st.Reading, footer)
}

// DailyReport is the scheduled full-state message.
func DailyReport(r ups.Reading, at time.Time) string {
	return "📅 *Daily Report*\n\n" + FullStateAt(r, at)
}

// ChangeMessage renders d as an alert. ok is false for an empty delta, in
// which case nothing should be sent.
func ChangeMessage(d ups.Delta, at time.Time) (string, bool) {
	if d.Empty() {
		return "", false
	}

	var b strings.Builder
	b.WriteString("⚠️ *ALERT: UPS state change*\n\n")

	for _, f := range d.Fields() {
		c := d[f]
		switch f {
		case ups.FieldStatus:
			fmt.Fprintf(&b, "🔄 *Status:* %s → %s\n", ups.LookupStatus(c.Old).Short(), ups.LookupStatus(c.New).Short())
		case ups.FieldBatteryStatus:
			fmt.Fprintf(&b, "🔋 *Battery Status:* %s → %s\n", ups.LookupBatteryStatus(c.Old).Short(), ups.LookupBatteryStatus(c.New).Short())
		case ups.FieldBatteryCapacity:
			fmt.Fprintf(&b, "⚡ *Battery Charge:* %s%% → %s%%\n", c.Old, c.New)
		case ups.FieldInputVoltage, ups.FieldOutputVoltage:
			fmt.Fprintf(&b, "📊 *%s:* %sV → %sV\n", f.Label(), c.Old, c.New)
		default:
			fmt.Fprintf(&b, "• *%s:* %s → %s\n", f.Label(), c.Old, c.New)
		}
	}

	fmt.Fprintf(&b, "\n🕐 %s", FormatTimestamp(at))
	return b.String(), true
}
