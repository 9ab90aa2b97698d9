// Package server exposes the hub over HTTP: scans, stored report recall,
// exports, checkout and the billing return path. Handlers answer JSON by
// default and an HTML fragment when the request asks for text/html.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitemetrics/perfhub/internal/advice"
	"github.com/sitemetrics/perfhub/internal/analyzer"
	"github.com/sitemetrics/perfhub/internal/billing"
	"github.com/sitemetrics/perfhub/internal/export"
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/paywall"
	"github.com/sitemetrics/perfhub/internal/report"
	"github.com/sitemetrics/perfhub/internal/session"
	"github.com/sitemetrics/perfhub/internal/store"
)

const sessionCookie = "hub_session"

// Config holds the server's tuning knobs.
type Config struct {
	ReportsDir     string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server wires the hub's collaborators behind the HTTP routes.
type Server struct {
	analyzer   analyzer.Client
	billing    billing.Client
	gate       *paywall.Gate
	store      store.Store
	sessions   *session.Manager
	catalog    *advice.Catalog
	reportsDir string
	origins    []string
	limiter    *ipLimiter
}

// New creates a Server. A nil catalog falls back to the embedded advice
// defaults.
func New(analyzerClient analyzer.Client, billingClient billing.Client, gate *paywall.Gate, st store.Store, sessions *session.Manager, catalog *advice.Catalog, cfg Config) *Server {
	if catalog == nil {
		catalog = advice.Default()
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "reports"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}

	return &Server{
		analyzer:   analyzerClient,
		billing:    billingClient,
		gate:       gate,
		store:      st,
		sessions:   sessions,
		catalog:    catalog,
		reportsDir: cfg.ReportsDir,
		origins:    cfg.AllowedOrigins,
		limiter:    newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Router builds the chi router with the full middleware chain. No global
// request timeout is set: the analyzer client owns the only scan deadline.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Session-ID"},
		MaxAge:         300,
	}))
	r.Use(s.limiter.middleware)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/hub", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/scan", s.handleScan)
		r.Get("/report/{id}", s.handleReport)
		r.Get("/report/{id}/export", s.handleExport)
		r.Post("/checkout", s.handleCheckout)
		r.Get("/billing/return", s.handleBillingReturn)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

type scanResponse struct {
	Access       paywall.AccessState `json:"access"`
	ReportID     string              `json:"reportId,omitempty"`
	PurchaseType string              `json:"purchaseType,omitempty"`
	Report       *report.View        `json:"report,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		panel(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.URL == "" {
		req.URL = r.URL.Query().Get("url")
	}
	if req.Mode == "" {
		req.Mode = r.URL.Query().Get("mode")
	}

	normURL, err := report.NormalizeURL(req.URL)
	if err != nil {
		panel(w, http.StatusBadRequest, "enter a valid website address", err.Error())
		return
	}

	mode := payload.KindQuick
	if req.Mode != "" {
		mode, err = payload.ParseKind(req.Mode)
		if err != nil {
			panel(w, http.StatusBadRequest, "unknown scan mode", err.Error())
			return
		}
	}

	startedAt := time.Now().UTC()
	reportID := report.MakeID(mode.AnalyzerKey(), normURL, startedAt)

	access := s.gate.CheckCanRunReport(r.Context(), paywall.GateRequest{
		Mode:     mode,
		ReportID: reportID,
		Token:    bearerToken(r),
	})
	if !access.Allows() {
		// Keep the blocked scan so a successful payment return can
		// re-offer it without the user retyping anything.
		s.sessions.SetPending(sid, session.Pending{URL: normURL, Mode: mode})
		purchaseType, _ := paywall.PurchaseTypeFor(mode)
		respondJSON(w, http.StatusPaymentRequired, scanResponse{
			Access:       access,
			ReportID:     reportID,
			PurchaseType: string(purchaseType),
		})
		return
	}

	scan := session.NewScan(normURL, mode, startedAt)
	scan.Access = access
	if err := s.sessions.Begin(sid, scan); err != nil {
		panel(w, http.StatusConflict, "a scan is already running in this session", err.Error())
		return
	}

	raw, err := s.analyzer.Run(r.Context(), mode, analyzer.NewRequest(normURL, mode, startedAt))
	if err != nil {
		s.sessions.Abort(sid)
		s.scanError(w, err)
		return
	}

	parsed := payload.Parse(raw)
	view, err := buildView(parsed, report.Meta{URL: normURL, StartedAt: startedAt}, s.catalog)
	if err != nil {
		s.sessions.Abort(sid)
		panel(w, http.StatusInternalServerError, "the report could not be rendered", err.Error())
		return
	}
	// The id minted before the gate check is the one purchases were keyed
	// to; it stays authoritative even if the payload classified down.
	view.ReportID = reportID

	scan.Raw = raw
	scan.Parsed = &parsed
	scan.View = &view
	s.sessions.Finish(sid, scan)

	if err := s.store.SaveReport(r.Context(), &store.StoredReport{
		ID:        reportID,
		URL:       normURL,
		Kind:      parsed.Kind,
		StartedAt: startedAt,
		Payload:   raw,
	}); err != nil {
		zap.L().Warn("server: save report failed",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
	}

	s.respondView(w, r, access, &view)
}

// scanError maps analyzer failures onto the error panel. The timeout case
// points at the quick scan, which has no deadline.
func (s *Server) scanError(w http.ResponseWriter, err error) {
	if errors.Is(err, analyzer.ErrScanTimeout) {
		panel(w, http.StatusGatewayTimeout,
			"the full analysis timed out; try the quick scan for instant results", err.Error())
		return
	}
	var be *analyzer.BackendError
	if errors.As(err, &be) && be.Message != "" {
		panel(w, http.StatusBadGateway, be.Message, err.Error())
		return
	}
	panel(w, http.StatusBadGateway, "the analysis service is unavailable right now", err.Error())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.loadReport(w, r)
	if !ok {
		return
	}

	view, access, err := s.rebuildView(r, stored)
	if err != nil {
		panel(w, http.StatusInternalServerError, "the report could not be rendered", err.Error())
		return
	}

	s.respondView(w, r, access, view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.loadReport(w, r)
	if !ok {
		return
	}

	view, _, err := s.rebuildView(r, stored)
	if err != nil {
		panel(w, http.StatusInternalServerError, "the report could not be rendered", err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}

	switch format {
	case "pdf":
		path, err := export.WritePDF(view, s.reportsDir)
		if err != nil {
			panel(w, http.StatusInternalServerError, "the PDF could not be generated", err.Error())
			return
		}
		w.Header().Set("Content-Disposition", attachment(filepath.Base(path)))
		http.ServeFile(w, r, path)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", attachment(export.Filename(view, "csv")))
		if err := export.WriteCSV(view, w); err != nil {
			zap.L().Error("server: stream csv failed", zap.String("report_id", view.ReportID), zap.Error(err))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", attachment(export.Filename(view, "xlsx")))
		if err := export.WriteXLSX(view, w); err != nil {
			zap.L().Error("server: stream xlsx failed", zap.String("report_id", view.ReportID), zap.Error(err))
		}
	default:
		panel(w, http.StatusBadRequest, "unknown export format, want pdf, csv or xlsx", "")
	}
}

type checkoutRequest struct {
	PurchaseType string `json:"purchaseType"`
	ReportID     string `json:"reportId"`
	ReturnURL    string `json:"returnUrl"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		panel(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	purchaseType, ok := billing.ParsePurchaseType(req.PurchaseType)
	if !ok {
		panel(w, http.StatusBadRequest, "unknown purchase type, want lighthouse or cwv", "")
		return
	}

	checkoutURL, err := s.billing.CreateCheckout(r.Context(), bearerToken(r), billing.CheckoutRequest{
		PurchaseType: purchaseType,
		ReportID:     req.ReportID,
		ReturnURL:    req.ReturnURL,
	})
	if err != nil {
		panel(w, http.StatusBadGateway, "checkout could not be started, try again", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"checkoutUrl": checkoutURL})
}

type pendingScan struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

type billingReturnResponse struct {
	Access  paywall.AccessState `json:"access"`
	Pending *pendingScan        `json:"pending,omitempty"`
}

func (s *Server) handleBillingReturn(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	q := r.URL.Query()

	if q.Get("payment") == "cancelled" {
		respondJSON(w, http.StatusOK, billingReturnResponse{Access: paywall.AccessLocked})
		return
	}

	sessionParam := firstOf(q.Get("session_id"), q.Get("sessionId"))
	if sessionParam == "" {
		panel(w, http.StatusBadRequest, "session_id is required", "")
		return
	}

	result, err := s.billing.VerifySession(r.Context(), sessionParam)
	if err != nil {
		panel(w, http.StatusBadGateway, "the payment could not be verified, contact support if you were charged", err.Error())
		return
	}

	expected, _ := billing.ParsePurchaseType(q.Get("type"))
	state := s.gate.ApplyPaymentReturn(r.Context(), result, expected)

	resp := billingReturnResponse{Access: state}
	if state.Allows() {
		if p, ok := s.sessions.TakePending(sid); ok {
			resp.Pending = &pendingScan{URL: p.URL, Mode: string(p.Mode)}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

type pageState struct {
	URL      string              `json:"url,omitempty"`
	Mode     string              `json:"mode,omitempty"`
	ReportID string              `json:"reportId,omitempty"`
	AutoScan bool                `json:"autoScan"`
	Access   paywall.AccessState `json:"access,omitempty"`
	Pending  *pendingScan        `json:"pending,omitempty"`
}

// handleState resolves the page-load query params into an initial state for
// the front end: the prefilled URL and mode, a deep-linked report id, and a
// billing redirect carried in the same load.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	q := r.URL.Query()

	var st pageState
	if raw := q.Get("url"); raw != "" {
		if norm, err := report.NormalizeURL(raw); err == nil {
			st.URL = norm
		}
	}
	if modeParam := firstOf(q.Get("mode"), q.Get("report_type")); modeParam != "" {
		if kind, err := payload.ParseKind(modeParam); err == nil {
			st.Mode = string(kind)
		}
	}
	st.ReportID = firstOf(q.Get("report_id"), q.Get("reportId"))
	st.AutoScan = q.Get("auto_scan") == "true" || q.Get("auto_scan") == "1"

	if q.Get("billing_success") == "true" && q.Get("payment") != "cancelled" {
		if sessionParam := firstOf(q.Get("session_id"), q.Get("sessionId")); sessionParam != "" {
			result, err := s.billing.VerifySession(r.Context(), sessionParam)
			if err != nil {
				zap.L().Warn("server: verify session on page load failed", zap.Error(err))
			} else {
				expected, _ := billing.ParsePurchaseType(q.Get("type"))
				st.Access = s.gate.ApplyPaymentReturn(r.Context(), result, expected)
				if st.Access.Allows() {
					if p, ok := s.sessions.TakePending(sid); ok {
						st.Pending = &pendingScan{URL: p.URL, Mode: string(p.Mode)}
						st.AutoScan = true
					}
				}
			}
		}
	}

	respondJSON(w, http.StatusOK, st)
}

// loadReport fetches the stored report named in the route, writing the
// error panel itself when it cannot.
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) (*store.StoredReport, bool) {
	id := chi.URLParam(r, "id")
	stored, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		panel(w, http.StatusInternalServerError, "the report could not be loaded", err.Error())
		return nil, false
	}
	if stored == nil {
		panel(w, http.StatusNotFound, "report not found, it may have been purged", "")
		return nil, false
	}
	return stored, true
}

// rebuildView re-renders a stored report. The view is a pure function of
// the stored payload, and access is re-checked on every recall so a lock
// or unlock since the scan ran is reflected immediately.
func (s *Server) rebuildView(r *http.Request, stored *store.StoredReport) (*report.View, paywall.AccessState, error) {
	parsed := payload.Parse(stored.Payload)
	view, err := buildView(parsed, report.Meta{URL: stored.URL, StartedAt: stored.StartedAt}, s.catalog)
	if err != nil {
		return nil, paywall.AccessLocked, err
	}
	view.ReportID = stored.ID

	access := s.gate.CheckCanRunReport(r.Context(), paywall.GateRequest{
		Mode:     parsed.Kind,
		ReportID: stored.ID,
		Token:    bearerToken(r),
	})
	view.Locked = view.Premium && !access.Allows()
	return &view, access, nil
}

// respondView answers with the HTML fragment when the client asks for
// text/html, and the JSON body otherwise.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, access paywall.AccessState, view *report.View) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		renderFragment(w, view)
		return
	}
	respondJSON(w, http.StatusOK, scanResponse{
		Access:   access,
		ReportID: view.ReportID,
		Report:   view,
	})
}

// sessionID reads the session from the X-Session-ID header or the session
// cookie, minting and setting a new one when neither is present.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
