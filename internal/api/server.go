package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/spam-detection/backend/internal/auth"
	"github.com/spam-detection/backend/internal/engine"
	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/storage"
	"github.com/spam-detection/backend/internal/throttle"
)

const (
	AdminTokenHeader   = "X-Admin-Token"
	maxMessagePreview  = 100
	maxRequestBodySize = 1 << 20
)

type Server struct {
	Engine   *engine.Engine
	Throttle *throttle.Manager
	Logger   *logrus.Entry
	Router   *http.ServeMux
}

// NewServer builds the router. A nil limiter disables per-user throttling.
func NewServer(eng *engine.Engine, limiter *throttle.Manager, logger *logrus.Entry) *Server {
	s := &Server{
		Engine:   eng,
		Throttle: limiter,
		Logger:   logger,
		Router:   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	protected := s.Engine.Tokens.Middleware(func(w http.ResponseWriter, msg string) {
		jsonResponse(w, http.StatusUnauthorized, ErrorResponse{Error: msg})
	})

	s.Router.HandleFunc("/", s.handleHealth)
	s.Router.HandleFunc("/register", s.handleRegister)
	s.Router.HandleFunc("/login", s.handleLogin)
	s.Router.Handle("/user", protected(http.HandlerFunc(s.handleUser)))
	s.Router.Handle("/user/settings", protected(http.HandlerFunc(s.handleSettings)))
	s.Router.Handle("/predict", protected(s.throttled(http.HandlerFunc(s.handlePredict))))
	s.Router.Handle("/history", protected(http.HandlerFunc(s.handleHistory)))
	s.Router.Handle("/history/{id}", protected(http.HandlerFunc(s.handleScan)))
	s.Router.HandleFunc("/word-stats", s.handleWordStats)
	s.Router.Handle("/model/retrain", s.throttled(http.HandlerFunc(s.handleRetrain)))
}

// Handler returns the router wrapped in the logging and CORS middleware.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.Router))
}

// Responses
type ErrorResponse struct {
	Error string `json:"error"`
}

type UserView struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Settings *storage.Settings `json:"settings,omitempty"`
}

type AuthResponse struct {
	Message     string   `json:"message"`
	AccessToken string   `json:"access_token"`
	User        UserView `json:"user"`
}

type SettingsResponse struct {
	Message  string           `json:"message"`
	Settings storage.Settings `json:"settings"`
}

type PredictionView struct {
	Message    string  `json:"message"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

type PredictResponse struct {
	Predictions []PredictionView `json:"predictions"`
}

type HistoryResponse struct {
	History []*storage.Scan `json:"history"`
}

type ScanResponse struct {
	Scan *storage.Scan `json:"scan"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	Uptime          string `json:"uptime"`
	MessagesScanned int64  `json:"messages_scanned"`
	ModelLoaded     bool   `json:"model_loaded"`
}

type RetrainResponse struct {
	Message    string `json:"message"`
	Documents  int    `json:"documents"`
	Vocabulary int    `json:"vocabulary"`
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: "Not found"})
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.Engine.Snapshot()
	_, err := s.Engine.Models.Current()
	jsonResponse(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Message:         "Spam detection server is running",
		Uptime:          time.Since(stats.StartTime).Round(time.Second).String(),
		MessagesScanned: stats.MessagesScanned,
		ModelLoaded:     err == nil,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.Engine.Register(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, AuthResponse{
		Message:     "User registered successfully",
		AccessToken: token,
		User:        toUserView(user, false),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.Engine.Login(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, AuthResponse{
		Message:     "Login successful",
		AccessToken: token,
		User:        toUserView(user, false),
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := auth.UserID(r.Context())
	user, err := s.Engine.GetUser(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toUserView(user, true))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Settings *storage.Settings `json:"settings"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Settings == nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "No settings provided"})
		return
	}

	userID, _ := auth.UserID(r.Context())
	settings, err := s.Engine.UpdateSettings(userID, *req.Settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, SettingsResponse{Message: "Settings updated successfully", Settings: settings})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Messages []string `json:"messages"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil || len(req.Messages) == 0 {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "No messages provided or invalid format"})
		return
	}

	userID, _ := auth.UserID(r.Context())
	scans, err := s.Engine.Predict(r.Context(), userID, req.Messages)
	if err != nil {
		s.writeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, PredictResponse{
		Predictions: lo.Map(scans, func(scan *storage.Scan, _ int) PredictionView {
			return PredictionView{
				Message:    preview(scan.Message),
				Prediction: scan.Prediction,
				Confidence: scan.Confidence,
				Timestamp:  scan.Timestamp.Format(time.RFC3339),
			}
		}),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := auth.UserID(r.Context())
	scans, err := s.Engine.History(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if scans == nil {
		scans = []*storage.Scan{}
	}
	jsonResponse(w, http.StatusOK, HistoryResponse{History: scans})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := auth.UserID(r.Context())
	scan, err := s.Engine.Scan(userID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, ScanResponse{Scan: scan})
}

func (s *Server) handleWordStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.Engine.WordStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	want := s.Engine.Config.Model.AdminToken
	if want == "" {
		jsonResponse(w, http.StatusForbidden, ErrorResponse{Error: "Retraining is disabled"})
		return
	}
	got := r.Header.Get(AdminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		jsonResponse(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid admin token"})
		return
	}

	m, err := s.Engine.Retrain(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, RetrainResponse{
		Message:    "Model retrained",
		Documents:  m.NumDocuments(),
		Vocabulary: m.VocabularySize(),
	})
}

// writeError maps domain errors to status codes. Unknown errors are logged and hidden.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		code = http.StatusInternalServerError
		msg  = err.Error()
	)

	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		code, msg = http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, apperrors.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrUserNotFound):
		code, msg = http.StatusNotFound, "User not found"
	case errors.Is(err, apperrors.ErrScanNotFound):
		code, msg = http.StatusNotFound, "Scan not found"
	case errors.Is(err, apperrors.ErrEmailTaken):
		code, msg = http.StatusConflict, "Email already registered"
	case errors.Is(err, apperrors.ErrUsernameTaken):
		code, msg = http.StatusConflict, "Username already taken"
	case errors.Is(err, apperrors.ErrTrainingInProgress):
		code = http.StatusConflict
	case errors.Is(err, apperrors.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrModelUnavailable), errors.Is(err, apperrors.ErrThrottleClosed),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	default:
		s.Logger.WithError(err).Error("Request failed")
		msg = "Internal server error"
	}

	jsonResponse(w, code, ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(v); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return false
	}
	return true
}

func toUserView(u *storage.User, withSettings bool) UserView {
	v := UserView{ID: u.ID, Username: u.Username, Email: u.Email}
	if withSettings {
		settings := u.Settings
		v.Settings = &settings
	}
	return v
}

func preview(msg string) string {
	runes := []rune(msg)
	if len(runes) > maxMessagePreview {
		return string(runes[:maxMessagePreview]) + "..."
	}
	return msg
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
