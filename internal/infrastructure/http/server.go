package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/breaker"
	"pricecheck-service/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxLookbackDays = 14

type Server struct {
	prices   *application.PriceResolver
	verify   *application.VerificationService
	idem     application.IdempotencyStore
	ping     func(ctx context.Context) error
	metrics  http.Handler
	breakers []*breaker.Breaker
}

func NewServer(prices *application.PriceResolver, verify *application.VerificationService, idem application.IdempotencyStore) *Server {
	if idem == nil {
		idem = application.NoopIdempotency{}
	}
	return &Server{prices: prices, verify: verify, idem: idem}
}

func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }
func (s *Server) SetMetricsHandler(h http.Handler)                 { s.metrics = h }
func (s *Server) SetBreakers(bs ...*breaker.Breaker)               { s.breakers = bs }

type priceResponse struct {
	Asset        string  `json:"asset"`
	Date         string  `json:"date"`
	ResolvedDate string  `json:"resolved_date"`
	Price        float64 `json:"price"`
	LookbackUsed bool    `json:"lookback_used"`
}

// GetPrice handles GET /prices/{asset}?date=&type=&lookback=.
func (s *Server) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	date, err := parseDateParam(r, "date")
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	lookback := 0
	if v := r.URL.Query().Get("lookback"); v != "" {
		lookback, err = strconv.Atoi(v)
		if err != nil || lookback < 0 || lookback > maxLookbackDays {
			badRequest(w, "lookback must be between 0 and 14")
			return
		}
	}
	assetType := r.URL.Query().Get("type")

	price, day, ok, err := s.prices.GetPriceWithFallback(r.Context(), asset, date, assetType, lookback)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "price not found")
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		Asset:        asset,
		Date:         domain.DayKey(date),
		ResolvedDate: domain.DayKey(day),
		Price:        price,
		LookbackUsed: !domain.Day(day).Equal(domain.Day(date)),
	})
}

type windowResponse struct {
	Start            string `json:"start"`
	End              string `json:"end"`
	Days             int    `json:"days"`
	Version          int    `json:"version,omitempty"`
	Corrected        bool   `json:"corrected,omitempty"`
	CorrectionReason string `json:"correction_reason,omitempty"`
}

func toWindow(hw domain.HorizonWindow) windowResponse {
	return windowResponse{
		Start:            domain.DayKey(hw.Start),
		End:              domain.DayKey(hw.End),
		Days:             hw.Days(),
		Version:          hw.Version,
		Corrected:        hw.Corrected,
		CorrectionReason: hw.CorrectionReason,
	}
}

// CalculateHorizon handles GET /horizons?post_date=&value=&type=.
func (s *Server) CalculateHorizon(w http.ResponseWriter, r *http.Request) {
	post, err := domain.ParseDay(r.URL.Query().Get("post_date"))
	if err != nil {
		badRequest(w, "post_date must be YYYY-MM-DD")
		return
	}
	hw, err := application.CalculateHorizonDateRange(post, r.URL.Query().Get("value"), r.URL.Query().Get("type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindow(hw))
}

type verifyRangeRequest struct {
	Asset        string   `json:"asset"`
	AssetType    string   `json:"asset_type"`
	EntryPrice   float64  `json:"entry_price"`
	TargetPrice  *float64 `json:"target_price"`
	Sentiment    string   `json:"sentiment"`
	HorizonStart string   `json:"horizon_start"`
	HorizonEnd   string   `json:"horizon_end"`
}

type outcomeResponse struct {
	Status      string   `json:"status"`
	MetDate     string   `json:"met_date,omitempty"`
	ActualPrice *float64 `json:"actual_price,omitempty"`
}

func toOutcome(o domain.VerificationOutcome) outcomeResponse {
	out := outcomeResponse{Status: string(o.Status), ActualPrice: o.ActualPrice}
	if o.MetDate != nil {
		out.MetDate = domain.DayKey(*o.MetDate)
	}
	return out
}

// VerifyRange handles POST /verifications: an ad-hoc check of one window
// that persists nothing.
func (s *Server) VerifyRange(w http.ResponseWriter, r *http.Request) {
	var body verifyRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Asset) == "" {
		badRequest(w, "asset is required")
		return
	}
	start, err1 := domain.ParseDay(body.HorizonStart)
	end, err2 := domain.ParseDay(body.HorizonEnd)
	if err1 != nil || err2 != nil {
		badRequest(w, "horizon_start and horizon_end must be YYYY-MM-DD")
		return
	}
	out, err := s.verify.Engine().VerifyPredictionWithRange(r.Context(), application.VerifyRequest{
		Asset:        body.Asset,
		EntryPrice:   body.EntryPrice,
		TargetPrice:  body.TargetPrice,
		Sentiment:    domain.ParseSentiment(body.Sentiment),
		HorizonStart: start,
		HorizonEnd:   end,
		AssetType:    body.AssetType,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcome(out))
}

type predictionResponse struct {
	ID         string          `json:"id"`
	Asset      string          `json:"asset"`
	EntryPrice *float64        `json:"entry_price,omitempty"`
	Horizon    *windowResponse `json:"horizon,omitempty"`
	Outcome    outcomeResponse `json:"outcome"`
	VerifiedAt *time.Time      `json:"verified_at,omitempty"`
}

// VerifyPrediction handles POST /predictions/{id}/verify.
func (s *Server) VerifyPrediction(w http.ResponseWriter, r *http.Request) {
	p, err := s.verify.VerifyPrediction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := predictionResponse{
		ID:         p.ID,
		Asset:      p.Asset,
		EntryPrice: p.EntryPrice,
		Outcome:    toOutcome(p.Outcome),
		VerifiedAt: p.VerifiedAt,
	}
	if !p.Horizon.IsZero() {
		hw := toWindow(p.Horizon)
		resp.Horizon = &hw
	}
	writeJSON(w, http.StatusOK, resp)
}

type supersedeRequest struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
}

// SupersedeHorizon handles POST /predictions/{id}/horizon. A repeated
// X-Idempotency-Key within its TTL is rejected with 409.
func (s *Server) SupersedeHorizon(w http.ResponseWriter, r *http.Request) {
	var body supersedeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	start, err1 := domain.ParseDay(body.Start)
	end, err2 := domain.ParseDay(body.End)
	if err1 != nil || err2 != nil {
		badRequest(w, "start and end must be YYYY-MM-DD")
		return
	}
	if strings.TrimSpace(body.Reason) == "" {
		badRequest(w, "reason is required")
		return
	}

	id := chi.URLParam(r, "id")
	key := r.Header.Get("X-Idempotency-Key")
	if key != "" {
		key = application.CorrectionKey(id, key)
		ok, err := s.idem.TryReserve(r.Context(), key)
		if err != nil {
			logx.WithFields(r.Context()).Error("idempotency.reserve_failed", zap.Error(err))
			internalError(w)
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, "duplicate request")
			return
		}
	}

	hw, err := s.verify.SupersedeHorizon(r.Context(), id, start, end, body.Reason)
	if err != nil {
		if key != "" {
			_ = s.idem.Release(context.WithoutCancel(r.Context()), key)
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindow(hw))
}

// HorizonHistory handles GET /predictions/{id}/horizons.
func (s *Server) HorizonHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.verify.HorizonHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]windowResponse, 0, len(hist))
	for _, hw := range hist {
		out = append(out, toWindow(hw))
	}
	writeJSON(w, http.StatusOK, out)
}

type providerState struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	CircuitOpen         bool       `json:"circuit_open"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastOpenedAt        *time.Time `json:"last_opened_at,omitempty"`
	LastRequestAt       *time.Time `json:"last_request_at,omitempty"`
}

// ProviderStates handles GET /providers.
func (s *Server) ProviderStates(w http.ResponseWriter, _ *http.Request) {
	out := make([]providerState, 0, len(s.breakers))
	for _, b := range s.breakers {
		snap := b.Snapshot()
		ps := providerState{
			Name:                snap.Name,
			State:               snap.State.String(),
			CircuitOpen:         snap.CircuitOpen,
			ConsecutiveFailures: snap.ConsecutiveFailures,
		}
		if !snap.LastOpenedAt.IsZero() {
			ps.LastOpenedAt = &snap.LastOpenedAt
		}
		if !snap.LastRequestAt.IsZero() {
			ps.LastRequestAt = &snap.LastRequestAt
		}
		out = append(out, ps)
	}
	writeJSON(w, http.StatusOK, out)
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return domain.Day(time.Now()), nil
	}
	return domain.ParseDay(v)
}

// fail maps service errors onto the JSON error envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		badRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		notFound(w)
	case errors.Is(err, application.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, domain.ErrMissingCredentials):
		writeError(w, http.StatusServiceUnavailable, "provider credentials missing")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		logx.WithFields(r.Context()).Error("http.handler_failed", zap.String("path", r.URL.Path), zap.Error(err))
		internalError(w)
	}
}

type errorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Code: status, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
