package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/tracks"
	"github.com/gaecom/substrate/types"
)

type (
	infoResponse struct {
		Name   string            `json:"name"`
		Block  types.BlockNumber `json:"block"`
		Tracks int               `json:"tracks"`
	}

	// TrackInfo is the static configuration of a track as served by the API.
	TrackInfo struct {
		ID                  types.TrackID          `json:"id"`
		Name                string                 `json:"name"`
		Origins             []string               `json:"origins"`
		MaxDeciding         uint32                 `json:"maxDeciding"`
		DecisionDeposit     types.Balance          `json:"decisionDeposit"`
		PreparePeriod       uint64                 `json:"preparePeriod"`
		DecisionPeriod      uint64                 `json:"decisionPeriod"`
		ConfirmPeriod       uint64                 `json:"confirmPeriod"`
		MinEnactmentPeriod  uint64                 `json:"minEnactmentPeriod"`
		MinApproval         string                 `json:"minApproval"`
		MinTurnout          string                 `json:"minTurnout"`
		OnRejection         tracks.RejectionPolicy `json:"onRejection"`
		TimeoutOnLowTurnout bool                   `json:"timeoutOnLowTurnout"`
	}
)

func InfoEndpoints(node referendaNode, name string, log *slog.Logger) RegistrarFunc {
	return func(r *mux.Router) {
		r.HandleFunc("/info", infoHandler(node, name, log)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func infoHandler(node referendaNode, name string, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := infoResponse{
			Name:   name,
			Block:  node.CurrentBlock(),
			Tracks: len(node.Tracks()),
		}
		w.Header().Set(headerContentType, applicationJson)
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(i); err != nil {
			log.WarnContext(r.Context(), "failed to write info message", logger.Error(err))
		}
	}
}

func (api *restAPI) listTracks(w http.ResponseWriter, r *http.Request) {
	entries := api.node.Tracks()
	res := make([]TrackInfo, len(entries))
	for i, e := range entries {
		res[i] = trackInfo(e)
	}
	api.rw.writeResponse(w, r, http.StatusOK, res)
}

func trackInfo(e tracks.Entry) TrackInfo {
	origins := e.Origins
	if origins == nil {
		origins = []string{}
	}
	return TrackInfo{
		ID:                  e.ID,
		Name:                e.Track.Name,
		Origins:             origins,
		MaxDeciding:         e.Track.MaxDeciding,
		DecisionDeposit:     e.Track.DecisionDeposit,
		PreparePeriod:       e.Track.PreparePeriod,
		DecisionPeriod:      e.Track.DecisionPeriod,
		ConfirmPeriod:       e.Track.ConfirmPeriod,
		MinEnactmentPeriod:  e.Track.MinEnactmentPeriod,
		MinApproval:         fmt.Sprint(e.Track.MinApproval),
		MinTurnout:          fmt.Sprint(e.Track.MinTurnout),
		OnRejection:         e.Track.OnRejection,
		TimeoutOnLowTurnout: e.Track.TimeoutOnLowTurnout,
	}
}
