package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"dex-radar/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local dashboard only.
		return true
	},
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	tracker Tracker
	hub     *Hub
	logger  *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(tracker Tracker, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		tracker: tracker,
		hub:     hub,
		logger:  logger.With("component", "api-handlers"),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// HandleHealth returns a liveness response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleTop returns the top-10 leaderboard for the requested view mode.
func (h *Handlers) HandleTop(w http.ResponseWriter, r *http.Request) {
	view := types.ParseViewMode(r.URL.Query().Get("viewMode"))
	h.writeJSON(w, http.StatusOK, h.tracker.Top10(view))
}

// HandleHolder returns the holder list ordered by rank.
func (h *Handlers) HandleHolder(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tracker.HolderList())
}

// HandleHolderAdd adopts an address into the holder list.
func (h *Handlers) HandleHolderAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContractAddress string `json:"contract_address"`
		Rank            int    `json:"rank"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ContractAddress == "" {
		h.writeError(w, http.StatusBadRequest, "contract_address is required")
		return
	}
	if err := h.tracker.AddHolderToken(body.ContractAddress, body.Rank); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "adopted"})
}

// HandleHolderRemove demotes a holder token to ex-holder.
func (h *Handlers) HandleHolderRemove(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("addr")
	if addr == "" {
		h.writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := h.tracker.RemoveHolderToken(addr); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "demoted"})
}

// HandleAll returns every tracked token.
func (h *Handlers) HandleAll(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tracker.All())
}

// HandleCounts returns the tracked-set breakdown.
func (h *Handlers) HandleCounts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tracker.Counts())
}

// HandleMVP returns the current MVP, or 404 when none qualifies.
func (h *Handlers) HandleMVP(w http.ResponseWriter, r *http.Request) {
	mvp := h.tracker.MVP()
	if mvp == nil || mvp.Token == nil {
		h.writeError(w, http.StatusNotFound, "no mvp")
		return
	}
	h.writeJSON(w, http.StatusOK, mvp)
}

// HandleStats returns the pipeline statistics snapshot.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tracker.Stats())
}

// HandleBlacklistGet lists banned addresses.
func (h *Handlers) HandleBlacklistGet(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.Blacklist()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "blacklist unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// HandleBlacklistAdd bans an address and drops it from tracking.
func (h *Handlers) HandleBlacklistAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContractAddress string `json:"contract_address"`
		Name            string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ContractAddress == "" {
		h.writeError(w, http.StatusBadRequest, "contract_address is required")
		return
	}
	if err := h.tracker.BlacklistAdd(body.ContractAddress, body.Name); err != nil {
		h.writeError(w, http.StatusInternalServerError, "blacklist add failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "blacklisted"})
}

// HandleBlacklistRemove lifts a ban.
func (h *Handlers) HandleBlacklistRemove(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("addr")
	if addr == "" {
		h.writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := h.tracker.BlacklistRemove(addr); err != nil {
		h.writeError(w, http.StatusInternalServerError, "blacklist remove failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// HandleModeGet returns the current pipeline mode.
func (h *Handlers) HandleModeGet(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]types.Mode{"mode": h.tracker.Mode()})
}

// HandleModeSet switches between degen and holder modes.
func (h *Handlers) HandleModeSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode types.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Mode != types.ModeDegen && body.Mode != types.ModeHolder {
		h.writeError(w, http.StatusBadRequest, "mode must be degen or holder")
		return
	}
	h.tracker.SetMode(body.Mode)
	h.writeJSON(w, http.StatusOK, map[string]types.Mode{"mode": body.Mode})
}

// HandleViewModeGet returns the current view mode.
func (h *Handlers) HandleViewModeGet(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]types.ViewMode{"view_mode": h.tracker.ViewMode()})
}

// HandleViewModeSet switches the leaderboard time window.
func (h *Handlers) HandleViewModeSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ViewMode string `json:"view_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	view := types.ParseViewMode(body.ViewMode)
	h.tracker.SetViewMode(view)
	h.writeJSON(w, http.StatusOK, map[string]types.ViewMode{"view_mode": view})
}

// HandleTiersGet returns the alert tier thresholds.
func (h *Handlers) HandleTiersGet(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tracker.Tiers())
}

// HandleTiersSet updates and persists the alert tier thresholds.
func (h *Handlers) HandleTiersSet(w http.ResponseWriter, r *http.Request) {
	var tiers types.AlertTiers
	if err := json.NewDecoder(r.Body).Decode(&tiers); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !tiers.Valid() {
		h.writeError(w, http.StatusBadRequest, "tiers must be > 1 and strictly increasing")
		return
	}
	if err := h.tracker.SetTiers(tiers); err != nil {
		h.writeError(w, http.StatusInternalServerError, "tiers update failed")
		return
	}
	h.writeJSON(w, http.StatusOK, tiers)
}

// HandlePurge wipes degen state while preserving holders and the blacklist.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Purge(); err != nil {
		h.writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// HandleMCCheck runs a one-off metrics lookup for an address.
func (h *Handlers) HandleMCCheck(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if addr == "" {
		h.writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	m, err := h.tracker.CheckMC(r.Context(), addr)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "metrics fetch failed")
		return
	}
	if m == nil {
		h.writeError(w, http.StatusNotFound, "no data for address")
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// HandleWebSocket upgrades the connection and attaches it to the event hub.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.hub.attach(conn)
}
