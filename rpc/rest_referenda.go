package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gaecom/substrate/ledger"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/tracks"
	"github.com/gaecom/substrate/types"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type (
	referendaNode interface {
		CurrentBlock() types.BlockNumber
		Submit(ctx context.Context, submitter types.AccountID, origin types.Origin, proposal types.Hash, enactment types.Enactment) (types.ReferendumIndex, error)
		PlaceDecisionDeposit(ctx context.Context, index types.ReferendumIndex, depositor types.AccountID) error
		SetTally(ctx context.Context, index types.ReferendumIndex, votes tally.Votes) error
		Cancel(ctx context.Context, origin types.Origin, index types.ReferendumIndex) error
		Kill(ctx context.Context, origin types.Origin, index types.ReferendumIndex) error
		Nudge(ctx context.Context, index types.ReferendumIndex) error
		RefundDeposits(ctx context.Context, index types.ReferendumIndex) error
		Referendum(index types.ReferendumIndex) (*store.Referendum, error)
		Referenda(from types.ReferendumIndex, limit int) ([]*store.Referendum, error)
		TrackState(id types.TrackID) (*store.TrackState, error)
		Tracks() []tracks.Entry
		Account(who types.AccountID) (ledger.Account, error)
		Agenda() ([]scheduler.Wake, []scheduler.Enactment)
		Enacted() []scheduler.Enactment
	}

	SubmitRequest struct {
		Submitter types.AccountID `json:"submitter"`
		Origin    types.Origin    `json:"origin"`
		Proposal  types.Hash      `json:"proposal"`
		Enactment types.Enactment `json:"enactment"`
	}

	SubmitResponse struct {
		Index types.ReferendumIndex `json:"index"`
		Block types.BlockNumber     `json:"block"`
	}

	DepositRequest struct {
		Depositor types.AccountID `json:"depositor"`
	}

	// OriginRequest carries the origin of a privileged call.
	OriginRequest struct {
		Origin types.Origin `json:"origin"`
	}

	AgendaResponse struct {
		Block      types.BlockNumber     `json:"block"`
		Wakes      []scheduler.Wake      `json:"wakes"`
		Enactments []scheduler.Enactment `json:"enactments"`
		Enacted    []scheduler.Enactment `json:"enacted"`
	}

	restAPI struct {
		node referendaNode
		rw   *responseWriter
	}
)

/*
ReferendaEndpoints registers the referendum API: submission, deposits,
tally updates, privileged cancel and kill, and read access to referenda,
tracks, accounts and the agenda.
*/
func ReferendaEndpoints(node referendaNode, log *slog.Logger) RegistrarFunc {
	return func(r *mux.Router) {
		api := &restAPI{node: node, rw: &responseWriter{log: log}}

		r.HandleFunc("/referenda", api.listReferenda).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/referenda", api.submit).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/referenda/{index}", api.getReferendum).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/referenda/{index}/decision-deposit", api.placeDecisionDeposit).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/referenda/{index}/tally", api.setTally).Methods(http.MethodPut, http.MethodOptions)
		r.HandleFunc("/referenda/{index}/cancel", api.privilegedOp(node.Cancel)).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/referenda/{index}/kill", api.privilegedOp(node.Kill)).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/referenda/{index}/nudge", api.indexOp(node.Nudge)).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/referenda/{index}/refund", api.indexOp(node.RefundDeposits)).Methods(http.MethodPost, http.MethodOptions)

		r.HandleFunc("/tracks", api.listTracks).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/tracks/{id}/state", api.getTrackState).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/accounts/{id}", api.getAccount).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/agenda", api.getAgenda).Methods(http.MethodGet, http.MethodOptions)
	}
}

func (api *restAPI) referendumIndex(w http.ResponseWriter, r *http.Request) (types.ReferendumIndex, bool) {
	index, err := pathUint(r, "index", 32)
	if err != nil {
		api.rw.invalidParam(w, r, "index", err)
		return 0, false
	}
	return types.ReferendumIndex(index), true
}

func (api *restAPI) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.rw.errorResponse(w, r, http.StatusBadRequest, fmt.Errorf("failed to decode request body: %w", err))
		return false
	}
	return true
}

func (api *restAPI) submit(w http.ResponseWriter, r *http.Request) {
	req := &SubmitRequest{}
	if !api.decodeBody(w, r, req) {
		return
	}
	if req.Proposal.IsZero() {
		api.rw.invalidParam(w, r, "proposal", errors.New("proposal hash is required"))
		return
	}
	index, err := api.node.Submit(r.Context(), req.Submitter, req.Origin, req.Proposal, req.Enactment)
	if err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	api.rw.writeResponse(w, r, http.StatusCreated, SubmitResponse{Index: index, Block: api.node.CurrentBlock()})
}

func (api *restAPI) getReferendum(w http.ResponseWriter, r *http.Request) {
	index, ok := api.referendumIndex(w, r)
	if !ok {
		return
	}
	ref, err := api.node.Referendum(index)
	if err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	api.rw.writeResponse(w, r, http.StatusOK, ref)
}

func (api *restAPI) listReferenda(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	offset, err := queryUint(qp, "offset", 0, 32)
	if err != nil {
		api.rw.invalidParam(w, r, "offset", err)
		return
	}
	limit, err := queryUint(qp, "limit", defaultPageLimit, 32)
	if err != nil {
		api.rw.invalidParam(w, r, "limit", err)
		return
	}
	limit = min(max(limit, 1), maxPageLimit)

	// one extra record tells whether there is a next page
	refs, err := api.node.Referenda(types.ReferendumIndex(offset), int(limit)+1)
	if err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	next := ""
	if len(refs) > int(limit) {
		next = strconv.FormatUint(uint64(refs[limit].Index), 10)
		refs = refs[:limit]
	}
	if refs == nil {
		refs = []*store.Referendum{}
	}
	setLinkHeader(r.URL, w, next)
	api.rw.writeResponse(w, r, http.StatusOK, refs)
}

func (api *restAPI) placeDecisionDeposit(w http.ResponseWriter, r *http.Request) {
	index, ok := api.referendumIndex(w, r)
	if !ok {
		return
	}
	req := &DepositRequest{}
	if !api.decodeBody(w, r, req) {
		return
	}
	if err := api.node.PlaceDecisionDeposit(r.Context(), index, req.Depositor); err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	api.referendumResponse(w, r, index)
}

func (api *restAPI) setTally(w http.ResponseWriter, r *http.Request) {
	index, ok := api.referendumIndex(w, r)
	if !ok {
		return
	}
	votes := tally.Votes{}
	if !api.decodeBody(w, r, &votes) {
		return
	}
	if err := api.node.SetTally(r.Context(), index, votes); err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	api.referendumResponse(w, r, index)
}

// indexOp returns handler for operations which only take the referendum index.
func (api *restAPI) indexOp(op func(ctx context.Context, index types.ReferendumIndex) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := api.referendumIndex(w, r)
		if !ok {
			return
		}
		if err := op(r.Context(), index); err != nil {
			api.rw.writeError(w, r, err)
			return
		}
		api.referendumResponse(w, r, index)
	}
}

// privilegedOp returns handler for operations which are authorized by the
// origin given in the request body.
func (api *restAPI) privilegedOp(op func(ctx context.Context, origin types.Origin, index types.ReferendumIndex) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := api.referendumIndex(w, r)
		if !ok {
			return
		}
		req := &OriginRequest{}
		if !api.decodeBody(w, r, req) {
			return
		}
		if err := op(r.Context(), req.Origin, index); err != nil {
			api.rw.writeError(w, r, err)
			return
		}
		api.referendumResponse(w, r, index)
	}
}

// referendumResponse responds with the state of the referendum after a
// successful operation.
func (api *restAPI) referendumResponse(w http.ResponseWriter, r *http.Request, index types.ReferendumIndex) {
	ref, err := api.node.Referendum(index)
	if err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	api.rw.writeResponse(w, r, http.StatusOK, ref)
}

func (api *restAPI) getTrackState(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id", 16)
	if err != nil {
		api.rw.invalidParam(w, r, "id", err)
		return
	}
	ts, err := api.node.TrackState(types.TrackID(id))
	if err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	if ts.Queue == nil {
		ts.Queue = []store.QueueEntry{}
	}
	api.rw.writeResponse(w, r, http.StatusOK, ts)
}

func (api *restAPI) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id", 64)
	if err != nil {
		api.rw.invalidParam(w, r, "id", err)
		return
	}
	a, err := api.node.Account(types.AccountID(id))
	if err != nil {
		api.rw.writeError(w, r, err)
		return
	}
	api.rw.writeResponse(w, r, http.StatusOK, a)
}

func (api *restAPI) getAgenda(w http.ResponseWriter, r *http.Request) {
	wakes, enactments := api.node.Agenda()
	rsp := AgendaResponse{
		Block:      api.node.CurrentBlock(),
		Wakes:      wakes,
		Enactments: enactments,
		Enacted:    api.node.Enacted(),
	}
	if rsp.Wakes == nil {
		rsp.Wakes = []scheduler.Wake{}
	}
	if rsp.Enactments == nil {
		rsp.Enactments = []scheduler.Enactment{}
	}
	if rsp.Enacted == nil {
		rsp.Enacted = []scheduler.Enactment{}
	}
	api.rw.writeResponse(w, r, http.StatusOK, rsp)
}
