// Package notify renders crash reports into operator notification emails.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/acra-collector/internal/report"
)

// ErrInvalidMessage marks a message that cannot be constructed for sending,
// such as one with a malformed address.
var ErrInvalidMessage = errors.New("invalid notification message")

const lineEnd = "\r\n"

// Message is a rendered notification ready for a mail transport.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Subject returns the notification subject line for r.
func Subject(r report.Report) string {
	return fmt.Sprintf("New crash of %s (%s)", r.PackageName, r.AppVersionName)
}

// Compose renders r into a Message addressed from -> to. It is a pure
// function of its inputs.
func Compose(r report.Report, from, to string) Message {
	return Message{
		From:    from,
		To:      to,
		Subject: Subject(r),
		Body:    Body(r),
	}
}

// Body renders the plain-text notification body for r.
func Body(r report.Report) string {
	var b strings.Builder
	b.WriteString("A new crash happened:" + lineEnd + lineEnd)
	fmt.Fprintf(&b, "- Report ID: %s%s", r.ReportID, lineEnd)
	fmt.Fprintf(&b, "- Version: %s (%d)%s", r.AppVersionName, r.AppVersionCode, lineEnd)
	fmt.Fprintf(&b, "- Android version: %s%s", r.AndroidVersion, lineEnd)
	if len(r.CustomData) > 0 {
		b.WriteString(lineEnd + "Custom data:" + lineEnd + lineEnd)
		keys := make([]string, 0, len(r.CustomData))
		for k := range r.CustomData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s = %s%s", k, renderValue(r.CustomData[k]), lineEnd)
		}
	}
	b.WriteString(lineEnd + "Stack trace:" + lineEnd + lineEnd)
	b.WriteString(r.StackTrace)
	return b.String()
}

// renderValue prints v as compact JSON, falling back to %v for values that
// did not come from a JSON decoder.
func renderValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
