package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/manager"
	"github.com/autopeer-io/drivermgr/internal/drivermgr/pool"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

type handler struct {
	mgr         *manager.Manager
	operational core.OperationalState
}

type factoryView struct {
	Description string `json:"description"`
}

type vehicleView struct {
	pool.EntryState
	Capability   string                  `json:"capability,omitempty"`
	ProcessModel *core.ProcessModelState `json:"processModel,omitempty"`
}

type itemView struct {
	Vehicle string `json:"vehicle"`
	Error   string `json:"error,omitempty"`
}

type batchView struct {
	Items     []itemView `json:"items"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

type errorView struct {
	Error string `json:"error"`
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.operational.IsOperational() || !h.mgr.Initialized() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(strings.ToLower(h.operational.State())))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// listFactories lists every factory, or only those supporting all vehicles named in ?vehicle=.
func (h *handler) listFactories(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["vehicle"]
	if len(names) == 0 {
		writeJSON(w, http.StatusOK, factoryViews(h.mgr.GetFactories()))
		return
	}
	factories, err := h.mgr.FindFactoriesForAll(names)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, factoryViews(factories))
}

func (h *handler) listPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.mgr.Positions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// counts covers the whole pool, or only the vehicles named in ?vehicle=.
func (h *handler) counts(w http.ResponseWriter, r *http.Request) {
	var (
		counts manager.StateCounts
		err    error
	)
	if names := r.URL.Query()["vehicle"]; len(names) > 0 {
		counts, err = h.mgr.CountsFor(names)
	} else {
		counts, err = h.mgr.CountsAll()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handler) listVehicles(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.mgr.SortedEntries()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]vehicleView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getVehicle(w http.ResponseWriter, r *http.Request) {
	e, err := h.mgr.GetEntryFor(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e, true))
}

func (h *handler) vehicleFactories(w http.ResponseWriter, r *http.Request) {
	factories, err := h.mgr.FindFactoriesFor(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, factoryViews(factories))
}

func (h *handler) attach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Factory string `json:"factory"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Factory == "" {
		writeError(w, fmt.Errorf("%w: factory is required", errBadRequest))
		return
	}

	factory, err := h.mgr.FindFactory(req.Factory)
	if err != nil {
		writeError(w, err)
		return
	}

	name := mux.Vars(r)["name"]
	if err := h.mgr.Attach(r.Context(), name, factory); err != nil {
		writeError(w, err)
		return
	}
	h.writeEntry(w, name)
}

func (h *handler) detach(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.mgr.Detach(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	h.writeEntry(w, name)
}

func (h *handler) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		call := h.mgr.Disable
		if enabled {
			call = h.mgr.Enable
		}
		if err := call(r.Context(), name); err != nil {
			writeError(w, err)
			return
		}
		h.writeEntry(w, name)
	}
}

// batch enables or disables the vehicles listed in the body; an empty list means all.
// Member failures are reported per item with status 200.
func (h *handler) batch(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Vehicles []string `json:"vehicles"`
		}
		if err := readJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		var (
			res manager.BatchResult
			err error
		)
		switch {
		case len(req.Vehicles) == 0 && enabled:
			res, err = h.mgr.EnableAll(r.Context())
		case len(req.Vehicles) == 0:
			res, err = h.mgr.DisableAll(r.Context())
		case enabled:
			res = h.mgr.EnableBatch(r.Context(), req.Vehicles)
		default:
			res = h.mgr.DisableBatch(r.Context(), req.Vehicles)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, batchViewOf(res))
	}
}

func (h *handler) initPosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position string `json:"position"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Position == "" {
		writeError(w, fmt.Errorf("%w: position is required", errBadRequest))
		return
	}

	name := mux.Vars(r)["name"]
	if err := h.mgr.InitPosition(r.Context(), name, req.Position); err != nil {
		writeError(w, err)
		return
	}
	h.writeEntry(w, name)
}

func (h *handler) writeEntry(w http.ResponseWriter, name string) {
	e, err := h.mgr.GetEntryFor(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e, true))
}

func viewOf(e *pool.Entry, detailed bool) vehicleView {
	v := vehicleView{EntryState: e.Snapshot()}
	if a := e.Adapter(); a != nil {
		v.Capability = core.PositionCapability(a).String()
		if detailed {
			pm := a.ProcessModel().Snapshot()
			v.ProcessModel = &pm
		}
	}
	return v
}

func factoryViews(factories []core.AdapterFactory) []factoryView {
	out := make([]factoryView, 0, len(factories))
	for _, f := range factories {
		out = append(out, factoryView{Description: f.Description()})
	}
	return out
}

func batchViewOf(res manager.BatchResult) batchView {
	v := batchView{Items: make([]itemView, 0, len(res.Items))}
	for _, it := range res.Items {
		item := itemView{Vehicle: it.Vehicle}
		if it.Err != nil {
			item.Error = it.Err.Error()
			v.Failed++
		} else {
			v.Succeeded++
		}
		v.Items = append(v.Items, item)
	}
	return v
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrPrecondition):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAttachmentFailed), errors.Is(err, core.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNoAdapter):
		return http.StatusConflict
	case errors.Is(err, core.ErrAdapterOperation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorView{Error: err.Error()})
}
