package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ServiceInfo is the payload of the service-info endpoint
type ServiceInfo struct {
	ServiceName      string    `json:"service_name"`
	GoVersion        string    `json:"go_version"`
	ServiceStartTime time.Time `json:"service_start_time"`
	ProcessID        int       `json:"process_id"`
}

// GoRoutinesStats is the payload of the go-routines-stats endpoint
type GoRoutinesStats struct {
	NumberOfGoroutines int      `json:"number_of_goroutines"`
	StackView          []string `json:"stack_view"`
}

// HistoryRequest is the body of a service-metrics query
type HistoryRequest struct {
	FieldNames []string `json:"field_name"`
	TimeRange  string   `json:"timerange"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
}

// ReportRequest is the body of a reports query
type ReportRequest struct {
	Topic     string `json:"topic"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	TimeFrame string `json:"time_frame"`
}

// FunctionSummary describes one traced function
type FunctionSummary struct {
	LastRanAt string `json:"function_last_ran_at"`
}

// Functions maps traced function names to their summaries
type Functions map[string]FunctionSummary

// Names returns the function names in sorted order
func (f Functions) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FunctionDetails is the payload of the function-details endpoint
type FunctionDetails struct {
	CodeTrace   string `json:"function_code_trace"`
	CoreProfile struct {
		CPUProfile string `json:"cpu_profile"`
		MemProfile string `json:"mem_profile"`
	} `json:"core_profile"`
}

// Object is a JSON object that remembers the order its keys arrived in
type Object struct {
	Keys   []string
	Values map[string]any
}

// Get returns the value for key
func (o Object) Get(key string) (any, bool) {
	v, ok := o.Values[key]
	return v, ok
}

// UnmarshalJSON decodes an object while keeping key order
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	o.Keys = nil
	o.Values = map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		var value any
		if len(raw) > 0 && raw[0] == '{' {
			var nested Object
			if err := nested.UnmarshalJSON(raw); err != nil {
				return err
			}
			value = nested
		} else {
			inner := json.NewDecoder(bytes.NewReader(raw))
			inner.UseNumber()
			if err := inner.Decode(&value); err != nil {
				return err
			}
		}

		if _, seen := o.Values[key]; !seen {
			o.Keys = append(o.Keys, key)
		}
		o.Values[key] = value
	}

	_, err = dec.Token()
	return err
}

// ReportRow is one row of a reports response: direct fields plus a nested "value" object
type ReportRow struct {
	Object
}

// Direct returns the keys of the row other than "value"
func (r ReportRow) Direct() []string {
	keys := make([]string, 0, len(r.Keys))
	for _, k := range r.Keys {
		if k != "value" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Nested returns the "value" object of the row, if any
func (r ReportRow) Nested() (Object, bool) {
	v, ok := r.Values["value"]
	if !ok {
		return Object{}, false
	}
	obj, ok := v.(Object)
	return obj, ok
}
