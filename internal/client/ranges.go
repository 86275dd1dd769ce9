package client

import (
	"fmt"
	"time"
)

// TimestampLayout matches the local ISO strings the service expects, millisecond precision
// with the zone offset
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// HistoryRanges lists the ranges offered for history charts, in display order
var HistoryRanges = []string{"5m", "15m", "30m", "1h", "6h", "1d", "3d", "7d", "1month"}

// ReportFrames lists the time frames offered for reports, in display order
var ReportFrames = []string{"5m", "10m", "30m", "1h", "6h", "1d", "3d", "1week", "1month"}

var rangeDurations = map[string]time.Duration{
	"5m":     5 * time.Minute,
	"10m":    10 * time.Minute,
	"15m":    15 * time.Minute,
	"30m":    30 * time.Minute,
	"1h":     time.Hour,
	"6h":     6 * time.Hour,
	"1d":     24 * time.Hour,
	"3d":     3 * 24 * time.Hour,
	"7d":     7 * 24 * time.Hour,
	"1week":  7 * 24 * time.Hour,
	"1month": 30 * 24 * time.Hour,
}

// RangeDuration returns how far back a named range reaches
func RangeDuration(name string) (time.Duration, error) {
	d, ok := rangeDurations[name]
	if !ok {
		return 0, fmt.Errorf("unknown time range %q", name)
	}
	return d, nil
}

// NewHistoryRequest builds a service-metrics query ending at now
func NewHistoryRequest(fields []string, rangeName string, now time.Time) (HistoryRequest, error) {
	d, err := RangeDuration(rangeName)
	if err != nil {
		return HistoryRequest{}, err
	}
	return HistoryRequest{
		FieldNames: fields,
		TimeRange:  rangeName,
		StartTime:  now.Add(-d).Format(TimestampLayout),
		EndTime:    now.Format(TimestampLayout),
	}, nil
}

// NewReportRequest builds a reports query ending at now
func NewReportRequest(topic, frame string, now time.Time) (ReportRequest, error) {
	d, err := RangeDuration(frame)
	if err != nil {
		return ReportRequest{}, err
	}
	return ReportRequest{
		Topic:     topic,
		StartTime: now.Add(-d).Format(TimestampLayout),
		EndTime:   now.Format(TimestampLayout),
		TimeFrame: frame,
	}, nil
}
