// Package hoststatus defines the host status records served by the monitor
// data endpoint and the display fallbacks used when fields are missing.
//
// Records are received, never created or mutated locally. Optional fields are
// pointers so that a missing value can be told apart from a zero value.
package hoststatus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Status is the upstream host state. Only StatusOnline is meaningful to the
// widget; every other value is rendered as offline.
type Status string

const (
	// StatusOnline means the last collection round reached the host.
	StatusOnline Status = "online"
	// StatusOffline is what the data service reports when collection failed.
	StatusOffline Status = "offline"
)

// Display fallbacks for missing monitor fields.
const (
	// DefaultUsage is shown for a missing CPU or memory usage.
	DefaultUsage = 0.0
	// DefaultTimestamp is shown for a missing sample timestamp.
	DefaultTimestamp = "--"
)

// Record is one entry of the /api/monitor/data payload.
type Record struct {
	ID         *int64   `json:"id,omitempty"`
	IPAddress  string   `json:"ip_address"`
	Status     Status   `json:"status"`
	StatusText string   `json:"status_text"`
	Monitor    *Monitor `json:"monitor,omitempty"`
}

// Monitor holds the latest sample collected for a host.
type Monitor struct {
	CPUUsage    *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage *float64 `json:"memory_usage,omitempty"`
	DiskUsage   *float64 `json:"disk_usage,omitempty"`
	Timestamp   *string  `json:"timestamp,omitempty"`
	// Error is set by the data service when the host could not be sampled.
	Error *string `json:"error,omitempty"`
}

// Online reports whether the record should be displayed as online.
func (r Record) Online() bool {
	return r.Status == StatusOnline
}

// CPU returns the reported CPU usage and whether it was present.
func (r Record) CPU() (float64, bool) {
	if r.Monitor == nil || r.Monitor.CPUUsage == nil {
		return 0, false
	}
	return *r.Monitor.CPUUsage, true
}

// Memory returns the reported memory usage and whether it was present.
func (r Record) Memory() (float64, bool) {
	if r.Monitor == nil || r.Monitor.MemoryUsage == nil {
		return 0, false
	}
	return *r.Monitor.MemoryUsage, true
}

// Timestamp returns the sample timestamp and whether it was present.
func (r Record) Timestamp() (string, bool) {
	if r.Monitor == nil || r.Monitor.Timestamp == nil {
		return "", false
	}
	return *r.Monitor.Timestamp, true
}

// DisplayCPU returns the CPU usage to show, falling back to DefaultUsage.
// A present zero and a missing value both display as DefaultUsage; callers
// that need to distinguish them use CPU.
func (r Record) DisplayCPU() float64 {
	if v, ok := r.CPU(); ok && v != 0 {
		return v
	}
	return DefaultUsage
}

// DisplayMemory returns the memory usage to show, falling back to DefaultUsage.
func (r Record) DisplayMemory() float64 {
	if v, ok := r.Memory(); ok && v != 0 {
		return v
	}
	return DefaultUsage
}

// DisplayTimestamp returns the timestamp to show. Missing and empty
// timestamps both fall back to DefaultTimestamp.
func (r Record) DisplayTimestamp() string {
	if v, ok := r.Timestamp(); ok && v != "" {
		return v
	}
	return DefaultTimestamp
}

// Decode reads a JSON list of records. A JSON null decodes to an empty list.
// Any other top-level shape is an error.
func Decode(rd io.Reader) ([]Record, error) {
	body, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("could not read body: %w", err)
	}
	return Parse(body)
}

// Parse is Decode for an in-memory body.
func Parse(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("could not parse JSON: empty body")
	}

	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("could not parse JSON: %w", err)
	}
	return records, nil
}
