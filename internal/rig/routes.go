package rig

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gantry/internal/executor"
	"github.com/banshee-data/gantry/internal/httputil"
	"github.com/banshee-data/gantry/internal/protocol"
)

// AttachAdminRoutes registers the rig's debug pages on mux under /debug/.
// Like every tsweb debug route they are served to localhost and tailnet
// callers only.
func (r *Rig) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("queue", "Queued encounters and the one being received", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSONOK(w, r.Snapshot().Queue)
	})

	debug.HandleFunc("stats", "Decoder and executor counters", func(w http.ResponseWriter, req *http.Request) {
		s := r.Snapshot()
		httputil.WriteJSONOK(w, struct {
			UpdatedAt         string         `json:"updated_at"`
			Decoder           protocol.Stats `json:"decoder"`
			Executor          executor.Stats `json:"executor"`
			LastFault         string         `json:"last_fault,omitempty"`
			LastActuatorFault string         `json:"last_actuator_fault,omitempty"`
		}{s.UpdatedAt, s.Decoder, s.Executor, s.LastFault, s.LastActuatorFault})
	})

	debug.HandleFunc("rig-time", "Rig clock as set by the startup handshake", func(w http.ResponseWriter, req *http.Request) {
		if r.rtc == nil {
			httputil.Unavailable(w, "no rig clock configured")
			return
		}
		now, ok := r.rtc.Now()
		if !ok {
			httputil.Unavailable(w, "rig clock not set")
			return
		}
		httputil.WriteJSONOK(w, map[string]any{
			"time":        now.Format(time.RFC3339),
			"day_of_week": r.rtc.DayOfWeek(),
		})
	})

	// hex encoded wire bytes posted here are decoded by the loop exactly as
	// if they had arrived on the serial port
	debug.HandleSilentFunc("inject", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		raw := strings.Join(strings.Fields(req.FormValue("frame")), "")
		if raw == "" {
			httputil.BadRequest(w, "missing frame")
			return
		}
		frame, err := hex.DecodeString(raw)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("frame is not hex: %v", err))
			return
		}
		if err := r.Inject(frame); err != nil {
			httputil.Unavailable(w, err.Error())
			return
		}
		fmt.Fprintf(w, "Queued %d bytes for decoding", len(frame))
	})
}
