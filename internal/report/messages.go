package report

import "fmt"

const (
	// OutageText is queued when no configured field could be read.
	OutageText = "❌ Error: Cannot connect to the UPS"

	// StartupOutageText is queued when the connectivity probe fails at start.
	StartupOutageText = "❌ Error: Cannot connect to the UPS at startup"

	// AlertNotQueuedText replaces a change alert that could not be queued.
	AlertNotQueuedText = "❌ Error: a UPS state change was detected but its alert could not be queued"

	NoDataText = "⚠️ No status data available yet."

	StartText = "🔋 *UPS Monitoring Bot*\n\n" +
		"Available commands:\n" +
		"/start - Show this message\n" +
		"/status - Current UPS status\n" +
		"/help - Help and information"

	HelpText = `🔋 *UPS Monitoring Bot*

This bot monitors a UPS over SNMP v3 and sends automatic notifications.

*Features:*
• Continuous UPS monitoring
• Automatic alerts on state changes
• Scheduled daily report
• On-demand status query

*Commands:*
/start - Start the bot
/status - Show current UPS status
/help - Show this help

*Automatic alerts:*
You will be notified when:
• The UPS switches to battery
• The battery level is low
• Input/output voltage changes
• Any other state change

*Daily report:*
A full report is sent automatically every day.`
)

// CheckFailedText is queued when a poll fails for a reason other than an
// unreachable device.
func CheckFailedText(err error) string {
	return fmt.Sprintf("❌ Error while checking the UPS: %v", err)
}

// StatusFailedText is the /status reply when the state file cannot be read.
func StatusFailedText(err error) string {
	return fmt.Sprintf("❌ Error reading status: %v", err)
}
