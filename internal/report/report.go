// Package report decodes ACRA crash payloads into structured reports.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidReport is wrapped by every Parse failure.
var ErrInvalidReport = errors.New("invalid report")

// fieldNames lists the wire keys of Report. Keys are matched exactly.
var fieldNames = []string{
	"ANDROID_VERSION",
	"APP_VERSION_CODE",
	"APP_VERSION_NAME",
	"CUSTOM_DATA",
	"PACKAGE_NAME",
	"REPORT_ID",
	"STACK_TRACE",
}

// Report is one crash submission as sent by the ACRA client library.
// Numbers inside CustomData are kept as json.Number.
type Report struct {
	AndroidVersion string         `json:"ANDROID_VERSION"`
	AppVersionCode uint64         `json:"APP_VERSION_CODE"`
	AppVersionName string         `json:"APP_VERSION_NAME"`
	CustomData     map[string]any `json:"CUSTOM_DATA"`
	PackageName    string         `json:"PACKAGE_NAME"`
	ReportID       string         `json:"REPORT_ID"`
	StackTrace     string         `json:"STACK_TRACE"`
}

// wireReport uses pointers so absent fields can be told apart from zero values.
type wireReport struct {
	AndroidVersion *string         `json:"ANDROID_VERSION"`
	AppVersionCode *uint64         `json:"APP_VERSION_CODE"`
	AppVersionName *string         `json:"APP_VERSION_NAME"`
	CustomData     *map[string]any `json:"CUSTOM_DATA"`
	PackageName    *string         `json:"PACKAGE_NAME"`
	ReportID       *string         `json:"REPORT_ID"`
	StackTrace     *string         `json:"STACK_TRACE"`
}

// Parse decodes raw into a Report. Every field is required and must be
// non-null; unknown fields are ignored. Field names are case-sensitive and
// may not repeat.
func Parse(raw []byte) (Report, error) {
	if err := checkKeys(raw); err != nil {
		return Report{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var w wireReport
	if err := dec.Decode(&w); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Report{}, fmt.Errorf("%w: trailing data after report object", ErrInvalidReport)
	}
	if err := w.missing(); err != nil {
		return Report{}, err
	}
	return Report{
		AndroidVersion: *w.AndroidVersion,
		AppVersionCode: *w.AppVersionCode,
		AppVersionName: *w.AppVersionName,
		CustomData:     *w.CustomData,
		PackageName:    *w.PackageName,
		ReportID:       *w.ReportID,
		StackTrace:     *w.StackTrace,
	}, nil
}

// checkKeys walks the top-level object and rejects repeated report fields
// and keys that only match a report field case-insensitively. Anything that
// is not an object is left for Decode to reject.
func checkKeys(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	seen := make(map[string]bool, len(fieldNames))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		for _, name := range fieldNames {
			switch {
			case key == name:
				if seen[name] {
					return fmt.Errorf("%w: duplicate field %s", ErrInvalidReport, name)
				}
				seen[name] = true
			case strings.EqualFold(key, name):
				return fmt.Errorf("%w: unknown field %q, expected %s", ErrInvalidReport, key, name)
			}
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil
		}
	}
	return nil
}

func (w wireReport) missing() error {
	fields := []struct {
		name    string
		present bool
	}{
		{"ANDROID_VERSION", w.AndroidVersion != nil},
		{"APP_VERSION_CODE", w.AppVersionCode != nil},
		{"APP_VERSION_NAME", w.AppVersionName != nil},
		{"CUSTOM_DATA", w.CustomData != nil && *w.CustomData != nil},
		{"PACKAGE_NAME", w.PackageName != nil},
		{"REPORT_ID", w.ReportID != nil},
		{"STACK_TRACE", w.StackTrace != nil},
	}
	for _, f := range fields {
		if !f.present {
			return fmt.Errorf("%w: missing field %s", ErrInvalidReport, f.name)
		}
	}
	return nil
}
