// Package notes tracks a user-maintained list of watched phrases and
// monitors the live transcript for mentions of them, publishing an alert
// event with a short briefing when one is detected.
package notes
