package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/engine"
)

// apiError is the JSON error body. Class carries the taxonomy bucket so
// callers can branch without parsing messages.
type apiError struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

type configureRequest struct {
	OrderID     string       `json:"order_id"`
	Oracle      string       `json:"oracle"`
	InitialStop string       `json:"initial_stop"`
	DistanceBps int64        `json:"distance_bps"`
	UpdateEvery string       `json:"update_every"`
	Watch       bool         `json:"watch"`
	Exec        *execPayload `json:"exec,omitempty"`
}

// execPayload is the wire form of an execution intent. Amounts are
// decimal strings, addresses are 0x-hex.
type execPayload struct {
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver,omitempty"`
	MakerAsset   string `json:"maker_asset"`
	TakerAsset   string `json:"taker_asset"`
	MakingAmount string `json:"making_amount"`
	MinOutput    string `json:"min_output"`
	Venue        string `json:"venue"`
	Payload      string `json:"payload,omitempty"`
}

type stopResponse struct {
	OrderID      string    `json:"order_id"`
	Oracle       string    `json:"oracle"`
	InitialStop  string    `json:"initial_stop"`
	CurrentStop  string    `json:"current_stop"`
	DistanceBps  int64     `json:"distance_bps"`
	UpdateEvery  string    `json:"update_every"`
	ConfiguredAt time.Time `json:"configured_at"`
	LastUpdateAt time.Time `json:"last_update_at"`
	NextDueAt    time.Time `json:"next_due_at"`
	Watched      bool      `json:"watched"`
}

type triggerRequest struct {
	Observed string `json:"observed"`
}

type snapshotResponse struct {
	OrderID       string    `json:"order_id"`
	Oracle        string    `json:"oracle"`
	StopPrice     string    `json:"stop_price"`
	ObservedPrice string    `json:"observed_price"`
	DistanceBps   int64     `json:"distance_bps"`
	LastUpdateAt  time.Time `json:"last_update_at"`
}

type executeRequest struct {
	Observed string       `json:"observed"`
	Exec     *execPayload `json:"exec,omitempty"`
}

type settlementResponse struct {
	OrderID   string    `json:"order_id"`
	Maker     string    `json:"maker"`
	Receiver  string    `json:"receiver"`
	AssetIn   string    `json:"asset_in"`
	AssetOut  string    `json:"asset_out"`
	AmountIn  string    `json:"amount_in"`
	AmountOut string    `json:"amount_out"`
	Venue     string    `json:"venue"`
	SettledAt time.Time `json:"settled_at"`
}

type executeResponse struct {
	Snapshot   snapshotResponse   `json:"snapshot"`
	Settlement settlementResponse `json:"settlement"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type checkDueResponse struct {
	Due []string `json:"due"`
}

type updateResponse struct {
	OrderID      string    `json:"order_id"`
	MarketPrice  string    `json:"market_price"`
	PreviousStop string    `json:"previous_stop"`
	NewStop      string    `json:"new_stop"`
	Held         bool      `json:"held"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type cycleResult struct {
	OrderID    string              `json:"order_id"`
	Status     string              `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Update     *updateResponse     `json:"update,omitempty"`
	Settlement *settlementResponse `json:"settlement,omitempty"`
}

type statusResponse struct {
	Keeper    string   `json:"keeper"`
	Paused    bool     `json:"paused"`
	Watched   []string `json:"watched"`
	WSClients int      `json:"ws_clients"`
	Uptime    string   `json:"uptime"`
}

// abortError maps a domain error onto an HTTP status via its class.
func (s *Server) abortError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	class := core.Classify(err)

	switch class {
	case core.ClassConfiguration:
		status = http.StatusBadRequest
	case core.ClassState:
		if errors.Is(err, core.ErrNotConfigured) {
			status = http.StatusNotFound
		} else {
			status = http.StatusConflict
		}
	case core.ClassExecution:
		status = http.StatusUnprocessableEntity
	case core.ClassAvailability:
		status = http.StatusServiceUnavailable
	}

	c.AbortWithStatusJSON(status, apiError{Error: err.Error(), Class: class.String()})
}

// abortBadRequest reports a malformed request body or parameter.
func (s *Server) abortBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apiError{
		Error: err.Error(),
		Class: core.ClassConfiguration.String(),
	})
}

// toExecRequest converts the wire form, leaving OrderID for the caller.
func (p *execPayload) toExecRequest() (core.ExecRequest, error) {
	var req core.ExecRequest
	var err error

	if req.Maker, err = core.ParseAddress("maker", p.Maker); err != nil {
		return req, err
	}
	if p.Receiver != "" {
		if req.Receiver, err = core.ParseAddress("receiver", p.Receiver); err != nil {
			return req, err
		}
	}
	if req.MakerAsset, err = core.ParseAddress("maker asset", p.MakerAsset); err != nil {
		return req, err
	}
	if req.TakerAsset, err = core.ParseAddress("taker asset", p.TakerAsset); err != nil {
		return req, err
	}
	if req.MakingAmount, err = core.ParsePrice(p.MakingAmount); err != nil {
		return req, fmt.Errorf("invalid making amount: %w", err)
	}
	if req.MinOutput, err = core.ParsePrice(p.MinOutput); err != nil {
		return req, fmt.Errorf("invalid min output: %w", err)
	}
	if p.Payload != "" {
		if req.Payload, err = hexutil.Decode(p.Payload); err != nil {
			return req, fmt.Errorf("invalid payload: %v", err)
		}
	}
	req.Venue = p.Venue
	return req, nil
}

func toStopResponse(stop *core.TrailingStop, watched bool) stopResponse {
	return stopResponse{
		OrderID:      stop.OrderID.Hex(),
		Oracle:       stop.Oracle.String(),
		InitialStop:  core.FormatPrice(stop.InitialStop),
		CurrentStop:  core.FormatPrice(stop.CurrentStop),
		DistanceBps:  stop.DistanceBps,
		UpdateEvery:  stop.UpdateEvery.String(),
		ConfiguredAt: stop.ConfiguredAt,
		LastUpdateAt: stop.LastUpdateAt,
		NextDueAt:    stop.NextDue(),
		Watched:      watched,
	}
}

func toSnapshotResponse(snapshot *core.StopSnapshot) snapshotResponse {
	return snapshotResponse{
		OrderID:       snapshot.OrderID.Hex(),
		Oracle:        snapshot.Oracle.String(),
		StopPrice:     core.FormatPrice(snapshot.StopPrice),
		ObservedPrice: core.FormatPrice(snapshot.ObservedPrice),
		DistanceBps:   snapshot.DistanceBps,
		LastUpdateAt:  snapshot.LastUpdateAt,
	}
}

func toUpdateResponse(update *core.StopUpdate) *updateResponse {
	if update == nil {
		return nil
	}
	return &updateResponse{
		OrderID:      update.OrderID.Hex(),
		MarketPrice:  core.FormatPrice(update.MarketPrice),
		PreviousStop: core.FormatPrice(update.PreviousStop),
		NewStop:      core.FormatPrice(update.NewStop),
		Held:         update.Held,
		UpdatedAt:    update.UpdatedAt,
	}
}

func toSettlementResponse(settlement *core.Settlement) *settlementResponse {
	if settlement == nil {
		return nil
	}
	return &settlementResponse{
		OrderID:   settlement.OrderID.Hex(),
		Maker:     settlement.Maker.Hex(),
		Receiver:  settlement.Receiver.Hex(),
		AssetIn:   settlement.AssetIn.Hex(),
		AssetOut:  settlement.AssetOut.Hex(),
		AmountIn:  core.FormatPrice(settlement.AmountIn),
		AmountOut: core.FormatPrice(settlement.AmountOut),
		Venue:     settlement.Venue,
		SettledAt: settlement.SettledAt,
	}
}

func (s *Server) handleConfigure(c *gin.Context) {
	var req configureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortBadRequest(c, fmt.Errorf("invalid request body: %v", err))
		return
	}

	id, err := core.ParseOrderID(req.OrderID)
	if err != nil {
		s.abortBadRequest(c, err)
		return
	}

	initialStop, err := core.ParsePrice(req.InitialStop)
	if err != nil {
		s.abortBadRequest(c, fmt.Errorf("invalid initial stop: %w", err))
		return
	}

	params := engine.ConfigureParams{
		OrderID:     id,
		Oracle:      core.OracleRef(req.Oracle),
		InitialStop: initialStop,
		DistanceBps: req.DistanceBps,
	}
	if req.UpdateEvery != "" {
		every, err := core.ParseDuration(req.UpdateEvery)
		if err != nil {
			s.abortBadRequest(c, fmt.Errorf("invalid update interval: %w", err))
			return
		}
		params.UpdateEvery = every.Std()
	}

	var intent *core.ExecRequest
	if req.Exec != nil {
		parsed, err := req.Exec.toExecRequest()
		if err != nil {
			s.abortBadRequest(c, err)
			return
		}
		intent = &parsed
	}

	stop, err := s.engine.Configure(c.Request.Context(), params)
	if err != nil {
		s.abortError(c, err)
		return
	}

	watched := false
	if intent != nil || req.Watch {
		s.keeper.Watch(id, intent)
		watched = true
	}

	c.JSON(http.StatusCreated, toStopResponse(stop, watched))
}

func (s *Server) handleList(c *gin.Context) {
	var filters []core.StopFilter
	if oracle := c.Query("oracle"); oracle != "" {
		filters = append(filters, core.WithOracle(core.OracleRef(oracle)))
	}

	stops, err := s.engine.Stops(c.Request.Context(), filters...)
	if err != nil {
		s.abortError(c, err)
		return
	}

	watched := s.keeper.Watched()
	out := make([]stopResponse, 0, len(stops))
	for _, stop := range stops {
		out = append(out, toStopResponse(stop, lo.Contains(watched, stop.OrderID)))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGet(c *gin.Context) {
	id, err := core.ParseOrderID(c.Param("id"))
	if err != nil {
		s.abortBadRequest(c, err)
		return
	}

	stop, err := s.engine.Stop(c.Request.Context(), id)
	if err != nil {
		s.abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStopResponse(stop, lo.Contains(s.keeper.Watched(), id)))
}

func (s *Server) handleDelete(c *gin.Context) {
	id, err := core.ParseOrderID(c.Param("id"))
	if err != nil {
		s.abortBadRequest(c, err)
		return
	}

	if err := s.engine.Delete(c.Request.Context(), id); err != nil {
		s.abortError(c, err)
		return
	}

	s.keeper.Unwatch(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTrigger(c *gin.Context) {
	id, err := core.ParseOrderID(c.Param("id"))
	if err != nil {
		s.abortBadRequest(c, err)
		return
	}

	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortBadRequest(c, fmt.Errorf("invalid request body: %v", err))
		return
	}

	observed, err := core.ParsePrice(req.Observed)
	if err != nil {
		s.abortBadRequest(c, fmt.Errorf("invalid observed price: %w", err))
		return
	}

	snapshot, err := s.engine.ValidateTrigger(c.Request.Context(), id, observed)
	if err != nil {
		s.abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSnapshotResponse(snapshot))
}

// handleExecute validates the trigger and settles the order in one call.
// The execution intent comes from the body, falling back to the one
// registered with the keeper.
func (s *Server) handleExecute(c *gin.Context) {
	id, err := core.ParseOrderID(c.Param("id"))
	if err != nil {
		s.abortBadRequest(c, err)
		return
	}

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortBadRequest(c, fmt.Errorf("invalid request body: %v", err))
		return
	}

	observed, err := core.ParsePrice(req.Observed)
	if err != nil {
		s.abortBadRequest(c, fmt.Errorf("invalid observed price: %w", err))
		return
	}

	var intent core.ExecRequest
	switch {
	case req.Exec != nil:
		if intent, err = req.Exec.toExecRequest(); err != nil {
			s.abortBadRequest(c, err)
			return
		}
	default:
		registered, ok := s.keeper.Intent(id)
		if !ok {
			s.abortBadRequest(c, fmt.Errorf("no execution intent for order %s", id.Hex()))
			return
		}
		intent = registered
	}
	intent.OrderID = id

	snapshot, err := s.engine.ValidateTrigger(c.Request.Context(), id, observed)
	if err != nil {
		s.abortError(c, err)
		return
	}

	settlement, err := s.gateway.Execute(c.Request.Context(), intent)
	if err != nil {
		s.abortError(c, err)
		return
	}

	s.keeper.Unwatch(id)
	c.JSON(http.StatusOK, executeResponse{
		Snapshot:   toSnapshotResponse(snapshot),
		Settlement: *toSettlementResponse(settlement),
	})
}

func (s *Server) parseIDs(c *gin.Context) ([]common.Hash, bool) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortBadRequest(c, fmt.Errorf("invalid request body: %v", err))
		return nil, false
	}

	ids := make([]common.Hash, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := core.ParseOrderID(raw)
		if err != nil {
			s.abortBadRequest(c, err)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (s *Server) handleCheckDue(c *gin.Context) {
	ids, ok := s.parseIDs(c)
	if !ok {
		return
	}
	if len(ids) == 0 {
		ids = s.keeper.Watched()
	}

	due, err := s.keeper.CheckDue(c.Request.Context(), ids)
	if err != nil {
		s.abortError(c, err)
		return
	}

	out := checkDueResponse{Due: make([]string, 0, len(due))}
	for _, id := range due {
		out.Due = append(out.Due, id.Hex())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRunCycle(c *gin.Context) {
	ids, ok := s.parseIDs(c)
	if !ok {
		return
	}
	if len(ids) == 0 {
		ids = s.keeper.Watched()
	}

	results, err := s.keeper.RunCycle(c.Request.Context(), ids)
	if err != nil {
		s.abortError(c, err)
		return
	}

	out := make([]cycleResult, 0, len(results))
	for _, result := range results {
		out = append(out, cycleResult{
			OrderID:    result.OrderID.Hex(),
			Status:     string(result.Status),
			Reason:     result.Reason,
			Update:     toUpdateResponse(result.Update),
			Settlement: toSettlementResponse(result.Settlement),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePause(c *gin.Context) {
	s.engine.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleUnpause(c *gin.Context) {
	s.engine.Unpause()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleStatus(c *gin.Context) {
	watched := s.keeper.Watched()
	out := statusResponse{
		Keeper:    string(s.keeper.Status()),
		Paused:    s.engine.Paused(),
		Watched:   make([]string, 0, len(watched)),
		WSClients: s.hub.Clients(),
		Uptime:    s.clock.Now().Sub(s.startedAt).Round(time.Second).String(),
	}
	for _, id := range watched {
		out.Watched = append(out.Watched, id.Hex())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.journal == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, apiError{
			Error: "audit journal not enabled",
			Class: core.ClassAvailability.String(),
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		s.abortBadRequest(c, fmt.Errorf("invalid limit %q", c.Query("limit")))
		return
	}

	events, err := s.journal.Recent(limit)
	if err != nil {
		s.abortError(c, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	c.JSON(http.StatusOK, events)
}
