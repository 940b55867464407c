package server

import (
	"fmt"
	"net/http"

	"github.com/kylerisse/hostboard/pkg/widget"
)

var widgetStates = []widget.State{
	widget.StateIdle,
	widget.StateLoading,
	widget.StateDisplaying,
	widget.StateError,
}

// handlePrometheus writes Prometheus-formatted metrics for the widget.
func (s *Server) handlePrometheus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	stats := s.widget.Stats()
	state := s.widget.State()

	w.Write([]byte("# HELP hostboard_cycles_total Load cycles by outcome.\n"))
	w.Write([]byte("# TYPE hostboard_cycles_total counter\n"))
	w.Write(fmt.Appendf(nil, "hostboard_cycles_total{result=\"started\"} %d\n", stats.Started))
	w.Write(fmt.Appendf(nil, "hostboard_cycles_total{result=\"succeeded\"} %d\n", stats.Succeeded))
	w.Write(fmt.Appendf(nil, "hostboard_cycles_total{result=\"failed\"} %d\n", stats.Failed))
	w.Write(fmt.Appendf(nil, "hostboard_cycles_total{result=\"skipped\"} %d\n", stats.Skipped))

	w.Write([]byte("# HELP hostboard_cycles_in_flight Load cycles waiting on the endpoint.\n"))
	w.Write([]byte("# TYPE hostboard_cycles_in_flight gauge\n"))
	w.Write(fmt.Appendf(nil, "hostboard_cycles_in_flight %d\n", stats.InFlight))

	w.Write([]byte("# HELP hostboard_hosts Hosts in the last rendered snapshot.\n"))
	w.Write([]byte("# TYPE hostboard_hosts gauge\n"))
	w.Write(fmt.Appendf(nil, "hostboard_hosts %d\n", stats.Hosts))

	w.Write([]byte("# HELP hostboard_last_success_timestamp_seconds Unix time of the last successful load.\n"))
	w.Write([]byte("# TYPE hostboard_last_success_timestamp_seconds gauge\n"))
	var lastSuccess int64
	if !stats.LastSuccess.IsZero() {
		lastSuccess = stats.LastSuccess.Unix()
	}
	w.Write(fmt.Appendf(nil, "hostboard_last_success_timestamp_seconds %d\n", lastSuccess))

	w.Write([]byte("# HELP hostboard_state Current widget state (1 for the active state).\n"))
	w.Write([]byte("# TYPE hostboard_state gauge\n"))
	for _, st := range widgetStates {
		val := 0
		if st == state {
			val = 1
		}
		w.Write(fmt.Appendf(nil, "hostboard_state{state=\"%s\"} %d\n", st, val))
	}

	w.Write([]byte("# HELP hostboard_websocket_clients Connected dashboard websocket clients.\n"))
	w.Write([]byte("# TYPE hostboard_websocket_clients gauge\n"))
	w.Write(fmt.Appendf(nil, "hostboard_websocket_clients %d\n", s.hub.Clients()))
}
