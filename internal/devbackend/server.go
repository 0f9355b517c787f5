package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/cors"
)

const (
	maxPromptLength = 32000
	maxNameLength   = 100
	maxBodyBytes    = 1 << 20
)

// Config configures a development Server.
type Config struct {
	Secret         string
	TokenTTL       time.Duration
	BcryptCost     int       // 0 means bcrypt.DefaultCost
	Responder      Responder // nil means EchoResponder
	AllowedOrigins []string  // nil allows any origin
	Logger         *slog.Logger
}

// Server serves the chat API from an in-memory Store.
type Server struct {
	store     *Store
	issuer    *Issuer
	responder Responder
	metrics   *metrics
	logger    *slog.Logger
	handler   http.Handler
}

// NewServer builds the router and its dependencies.
func NewServer(cfg Config) (*Server, error) {
	issuer, err := NewIssuer(cfg.Secret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	if cfg.Responder == nil {
		cfg.Responder = EchoResponder
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"*"}
	}

	store := NewStore(cfg.BcryptCost)
	s := &Server{
		store:     store,
		issuer:    issuer,
		responder: cfg.Responder,
		metrics:   newMetrics(store),
		logger:    cfg.Logger,
	}
	s.handler = s.routes(cfg.AllowedOrigins)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Store exposes the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("dev server stopped")
	return nil
}

func (s *Server) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())
	r.Post("/sign_in", s.handleSignIn)
	r.Post("/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/chats", s.handleListChats)
		r.Get("/chathistory", s.handleHistory)
		r.Post("/send_prompt", s.handleSendPrompt)
		r.Patch("/chats/{chatID}", s.handleRename)
		r.Delete("/chats/{chatID}", s.handleDelete)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	})
	return c.Handler(r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type ctxKey struct{}

// authenticate requires a valid bearer token and stores the user id in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := s.issuer.Verify(strings.TrimSpace(token))
		if err != nil {
			s.logger.Debug("rejected token", "error", err)
			respondDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		if _, ok := s.store.UserByID(claims.Subject); !ok {
			respondDetail(w, http.StatusUnauthorized, "Unknown user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims.Subject)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req signInRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required),
	)
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req registerRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Username, validation.Required, validation.RuneLength(3, 32)),
		validation.Field(&req.Password, validation.Required, validation.Length(8, 128)),
	)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	user, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		respondDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.respondToken(w, user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	user, err := s.store.CreateUser(req.Email, req.Username, req.Password)
	if errors.Is(err, ErrEmailTaken) {
		respondError(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		s.logger.Error("create user", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("user registered", "user_id", user.ID)
	s.respondToken(w, user)
}

func (s *Server) respondToken(w http.ResponseWriter, user *User) {
	token, err := s.issuer.Issue(user)
	if err != nil {
		s.logger.Error("issue token", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

type chatEntry struct {
	ChatID   string `json:"chat_id"`
	ChatName string `json:"chat_name"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats := s.store.ListChats(userID(r))
	entries := make([]chatEntry, 0, len(chats))
	for _, c := range chats {
		entries = append(entries, chatEntry{ChatID: c.ID, ChatName: c.Name})
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": entries})
}

type historyEntry struct {
	MessageID int    `json:"messageID"`
	AU        string `json:"A_U"`
	Content   string `json:"content"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatID")
	if chatID == "" {
		respondError(w, http.StatusUnprocessableEntity, "chatID is required")
		return
	}
	msgs, err := s.store.History(userID(r), chatID)
	if errors.Is(err, ErrNotFound) {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}
	entries := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, historyEntry{MessageID: m.ID, AU: m.AU, Content: m.Content})
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": entries})
}

type sendPromptRequest struct {
	Query       string `json:"query"`
	ChatID      string `json:"chatID"`
	NewChat     bool   `json:"newChat"`
	NewChatName string `json:"newChatName"`
}

func (req sendPromptRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Query, validation.Required, validation.RuneLength(1, maxPromptLength)),
		validation.Field(&req.ChatID,
			validation.When(req.NewChat, validation.Empty.Error("must be empty for a new chat")).
				Else(validation.Required)),
		validation.Field(&req.NewChatName, validation.RuneLength(0, maxNameLength)),
	)
}

func (s *Server) handleSendPrompt(w http.ResponseWriter, r *http.Request) {
	var req sendPromptRequest
	if !decode(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	owner := userID(r)
	var history []Message
	if !req.NewChat {
		h, err := s.store.History(owner, req.ChatID)
		if errors.Is(err, ErrNotFound) {
			respondError(w, http.StatusNotFound, "Chat not found")
			return
		}
		history = h
	}

	reply, err := s.responder.Reply(r.Context(), history, req.Query)
	if err != nil {
		s.logger.Warn("responder failed", "error", err)
		respondError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	chatID := req.ChatID
	if req.NewChat {
		chatID = s.store.CreateChat(owner, strings.TrimSpace(req.NewChatName)).ID
	}
	if err := s.store.Append(owner, chatID, "U", req.Query); err != nil {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}
	if err := s.store.Append(owner, chatID, "A", reply); err != nil {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}
	s.metrics.prompts.Inc()

	respondJSON(w, http.StatusOK, map[string]string{"message": reply, "chatId": chatID})
}

type renameRequest struct {
	ChatName string `json:"chat_name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.ChatName)
	if err := validation.Validate(name, validation.Required, validation.RuneLength(1, maxNameLength)); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "chat_name: "+err.Error())
		return
	}
	chat, err := s.store.Rename(userID(r), chi.URLParam(r, "chatID"), name)
	if errors.Is(err, ErrNotFound) {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": chatEntry{ChatID: chat.ID, ChatName: chat.Name}})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(userID(r), chi.URLParam(r, "chatID")); errors.Is(err, ErrNotFound) {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondDetail uses the "detail" key auth failures have always used.
func respondDetail(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}
