package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kbamnote/elite-cards-backend/internal/auth"
	"github.com/kbamnote/elite-cards-backend/internal/config"
	"github.com/kbamnote/elite-cards-backend/internal/crypto"
	"github.com/kbamnote/elite-cards-backend/internal/logger"
	"github.com/kbamnote/elite-cards-backend/internal/model"
	"github.com/kbamnote/elite-cards-backend/internal/repository"
	"github.com/kbamnote/elite-cards-backend/internal/storage"
	"github.com/kbamnote/elite-cards-backend/internal/validate"
)

const (
	maxJSONBytes      = 1 << 20
	maxUploadBytes    = 5 << 20
	recentScanLimit   = 50
	maxCardIDAttempts = 5
)

var scansLogged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "card_scans_logged_total",
	Help: "Number of scan events recorded.",
})

// MediaRelay is the object-storage boundary; *storage.Client implements it.
type MediaRelay interface {
	Upload(ctx context.Context, folder, ext, contentType string, data []byte) (storage.UploadResult, error)
	Delete(ctx context.Context, key string) error
}

type Server struct {
	cfg   config.Config
	store repository.Store
	media MediaRelay
	redis *redis.Client
	log   *logger.Logger
}

func NewServer(cfg config.Config, store repository.Store, media MediaRelay, redisClient *redis.Client, log *logger.Logger) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		media: media,
		redis: redisClient,
		log:   log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)
		r.With(s.authMiddleware).Put("/auth/profile", s.handleUpdateProfile)

		r.With(s.authMiddleware).Post("/cards", s.handleCreateCard)
		r.With(s.authMiddleware).Get("/cards", s.handleListCards)
		r.Get("/cards/{cardId}", s.handleGetCard)
		r.With(s.authMiddleware).Put("/cards/{cardId}", s.handleUpdateCard)
		r.With(s.authMiddleware).Delete("/cards/{cardId}", s.handleDeleteCard)
		r.With(s.optionalAuthMiddleware).Post("/cards/{cardId}/scan", s.handleLogScan)
		r.With(s.authMiddleware).Get("/cards/{cardId}/analytics", s.handleGetAnalytics)

		r.With(s.authMiddleware).Post("/upload/image", s.handleUploadImage)
		r.With(s.authMiddleware).Delete("/upload/image", s.handleDeleteImage)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, response{Success: false, Message: "Route not found"})
	})

	return r
}

// Response envelope

type response struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Data    any                  `json:"data,omitempty"`
	Errors  []validate.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, response{Success: true, Message: message, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.logFailure(r, status, message)
	writeJSON(w, status, response{Success: false, Message: message})
}

func (s *Server) failValidation(w http.ResponseWriter, r *http.Request, errs validate.Errors) {
	s.logFailure(r, http.StatusBadRequest, "Validation failed")
	writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "Validation failed", Errors: errs})
}

// Server-side failures are always logged; client failures only outside
// production.
func (s *Server) logFailure(r *http.Request, status int, message string) {
	if s.log == nil {
		return
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "message", message)
		return
	}
	if !s.cfg.Production() {
		s.log.Info("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "message", message)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// Middleware

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.log != nil {
					if s.cfg.Production() {
						s.log.Error("panic recovered", "method", r.Method, "path", r.URL.Path)
					} else {
						s.log.Error("panic recovered", "method", r.Method, "path", r.URL.Path,
							"panic", rec, "stack", string(debug.Stack()))
					}
				}
				writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: "Internal Server Error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func userFromContext(ctx context.Context) *model.User {
	value := ctx.Value(userKey{})
	user, _ := value.(*model.User)
	return user
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.JWT.Secret == "" {
			s.fail(w, r, http.StatusInternalServerError, "JWT secret not configured")
			return
		}

		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.fail(w, r, http.StatusUnauthorized, "Not authorized, token missing")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWT.Secret, s.cfg.JWT.Issuer, token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				s.fail(w, r, http.StatusUnauthorized, "Token expired")
				return
			}
			s.fail(w, r, http.StatusUnauthorized, "Not authorized, invalid token")
			return
		}

		// Load the current profile rather than trusting a token-time
		// snapshot; the credential hash never rides the context.
		user, err := s.store.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.fail(w, r, http.StatusUnauthorized, "Not authorized, user not found")
				return
			}
			s.fail(w, r, http.StatusInternalServerError, "Server error")
			return
		}
		user.PasswordHash = ""

		ctx := context.WithValue(r.Context(), userKey{}, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuthMiddleware attributes the request to a user when a valid
// token is present and silently continues otherwise.
func (s *Server) optionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" || s.cfg.JWT.Secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWT.Secret, s.cfg.JWT.Issuer, token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.store.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		user.PasswordHash = ""
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, &user)))
	})
}

// Views

type userView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func mapUserView(user model.User) userView {
	return userView{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type cardView struct {
	CardID          string    `json:"cardId"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Company         string    `json:"company"`
	Designation     string    `json:"designation"`
	Website         string    `json:"website"`
	SocialLinks     []string  `json:"socialLinks"`
	ProfileImage    string    `json:"profileImage"`
	BackgroundColor string    `json:"backgroundColor"`
	TextColor       string    `json:"textColor"`
	IsActive        bool      `json:"isActive"`
	ScanCount       int64     `json:"scanCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func mapCardView(card model.Card) cardView {
	links := card.SocialLinks
	if links == nil {
		links = []string{}
	}
	return cardView{
		CardID:          card.CardID,
		Name:            card.Name,
		Email:           card.Email,
		Phone:           card.Phone,
		Company:         card.Company,
		Designation:     card.Designation,
		Website:         card.Website,
		SocialLinks:     links,
		ProfileImage:    card.ProfileImage,
		BackgroundColor: card.BackgroundColor,
		TextColor:       card.TextColor,
		IsActive:        card.IsActive,
		ScanCount:       card.ScanCount,
		CreatedAt:       card.CreatedAt,
		UpdatedAt:       card.UpdatedAt,
	}
}

type locationView struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type scanView struct {
	ID        string        `json:"id"`
	CardID    string        `json:"cardId"`
	ScannedBy *string       `json:"scannedBy,omitempty"`
	Location  *locationView `json:"location,omitempty"`
	Device    *string       `json:"device,omitempty"`
	IPAddress *string       `json:"ipAddress,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func mapScanView(scan model.ScanLog, publicCardID string) scanView {
	view := scanView{
		ID:        scan.ID,
		CardID:    publicCardID,
		ScannedBy: scan.ScannedBy,
		Device:    scan.Device,
		IPAddress: scan.IPAddress,
		Timestamp: scan.Timestamp,
	}
	if scan.Latitude != nil || scan.Longitude != nil {
		view.Location = &locationView{Latitude: scan.Latitude, Longitude: scan.Longitude}
	}
	return view
}

// Auth handlers

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	var errs validate.Errors
	switch {
	case strings.TrimSpace(req.Name) == "":
		errs.Add("name", "Name is required")
	case !validate.Name(req.Name):
		errs.Add("name", "Name too long")
	}
	if !validate.Email(req.Email) {
		errs.Add("email", "Valid email is required")
	}
	if !validate.Password(req.Password) {
		errs.Add("password", "Password must be at least 6 characters")
	}
	if req.Phone != "" && !validate.Phone(req.Phone) {
		errs.Add("phone", "Invalid phone number")
	}
	if errs.Any() {
		s.failValidation(w, r, errs)
		return
	}

	email := validate.NormalizeEmail(req.Email)
	if _, err := s.store.GetUserByEmail(r.Context(), email); err == nil {
		s.fail(w, r, http.StatusConflict, "Email already in use")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(req.Phone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			s.fail(w, r, http.StatusConflict, "Email already in use")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	ok(w, http.StatusCreated, "User registered successfully", map[string]any{"user": mapUserView(user)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	var errs validate.Errors
	if !validate.Email(req.Email) {
		errs.Add("email", "Valid email is required")
	}
	if req.Password == "" {
		errs.Add("password", "Password is required")
	}
	if errs.Any() {
		s.failValidation(w, r, errs)
		return
	}

	// An unknown email and a wrong password must be indistinguishable.
	user, err := s.store.GetUserByEmail(r.Context(), validate.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.fail(w, r, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.fail(w, r, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWT.Secret, s.cfg.JWT.Issuer, s.cfg.JWT.TTL, user.ID)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Authentication token error")
		return
	}

	ok(w, http.StatusOK, "Login successful", map[string]any{
		"token": token,
		"user":  mapUserView(user),
	})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		s.fail(w, r, http.StatusUnauthorized, "Not authorized")
		return
	}
	ok(w, http.StatusOK, "User profile fetched", map[string]any{"user": mapUserView(*user)})
}

type updateProfileRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		s.fail(w, r, http.StatusUnauthorized, "Not authorized")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	var errs validate.Errors
	update := repository.UserUpdate{}
	if req.Name != nil {
		if !validate.Name(*req.Name) {
			errs.Add("name", "Name must be a non-empty string")
		} else {
			name := strings.TrimSpace(*req.Name)
			update.Name = &name
		}
	}
	if req.Email != nil {
		if !validate.Email(*req.Email) {
			errs.Add("email", "Email is invalid")
		} else {
			email := validate.NormalizeEmail(*req.Email)
			update.Email = &email
		}
	}
	if req.Phone != nil {
		if *req.Phone != "" && !validate.Phone(*req.Phone) {
			errs.Add("phone", "Invalid phone number")
		} else {
			phone := strings.TrimSpace(*req.Phone)
			update.Phone = &phone
		}
	}
	if req.Password != nil {
		if !validate.Password(*req.Password) {
			errs.Add("password", "Password must be at least 6 characters")
		} else {
			hash, err := crypto.HashPassword(*req.Password)
			if err != nil {
				s.fail(w, r, http.StatusInternalServerError, "Server error")
				return
			}
			update.PasswordHash = &hash
		}
	}
	if errs.Any() {
		s.failValidation(w, r, errs)
		return
	}

	updated, err := s.store.UpdateUser(r.Context(), user.ID, update)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			s.fail(w, r, http.StatusConflict, "Email already in use")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	ok(w, http.StatusOK, "Profile updated successfully", map[string]any{"user": mapUserView(updated)})
}

// Card handlers

type cardRequest struct {
	Name            *string   `json:"name,omitempty"`
	Email           *string   `json:"email,omitempty"`
	Phone           *string   `json:"phone,omitempty"`
	Company         *string   `json:"company,omitempty"`
	Designation     *string   `json:"designation,omitempty"`
	Website         *string   `json:"website,omitempty"`
	SocialLinks     *[]string `json:"socialLinks,omitempty"`
	ProfileImage    *string   `json:"profileImage,omitempty"`
	BackgroundColor *string   `json:"backgroundColor,omitempty"`
	TextColor       *string   `json:"textColor,omitempty"`
	IsActive        *bool     `json:"isActive,omitempty"`
}

// validateCardRequest checks only the fields present in the request and
// returns them normalized; absent fields stay nil (leave unchanged).
func validateCardRequest(req cardRequest) (repository.CardUpdate, validate.Errors) {
	var errs validate.Errors
	update := repository.CardUpdate{}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if len(trimmed) > validate.NameMaxLen {
			errs.Add("name", "Name too long")
		} else {
			update.Name = &trimmed
		}
	}
	if req.Email != nil {
		if *req.Email != "" && !validate.Email(*req.Email) {
			errs.Add("email", "Invalid email")
		} else {
			email := validate.NormalizeEmail(*req.Email)
			update.Email = &email
		}
	}
	if req.Phone != nil {
		if *req.Phone != "" && !validate.Phone(*req.Phone) {
			errs.Add("phone", "Invalid phone number")
		} else {
			phone := strings.TrimSpace(*req.Phone)
			update.Phone = &phone
		}
	}
	if req.Company != nil {
		company := strings.TrimSpace(*req.Company)
		update.Company = &company
	}
	if req.Designation != nil {
		designation := strings.TrimSpace(*req.Designation)
		update.Designation = &designation
	}
	if req.Website != nil {
		if *req.Website != "" && !validate.URL(*req.Website) {
			errs.Add("website", "Website must be a valid URL")
		} else {
			website := strings.TrimSpace(*req.Website)
			update.Website = &website
		}
	}
	if req.SocialLinks != nil {
		links := make([]string, 0, len(*req.SocialLinks))
		valid := true
		for _, link := range *req.SocialLinks {
			trimmed := strings.TrimSpace(link)
			if !validate.URL(trimmed) {
				errs.Add("socialLinks", "Invalid social link URL")
				valid = false
				break
			}
			links = append(links, trimmed)
		}
		if valid {
			update.SocialLinks = &links
		}
	}
	if req.ProfileImage != nil {
		if *req.ProfileImage != "" && !validate.URL(*req.ProfileImage) {
			errs.Add("profileImage", "Invalid profile image URL")
		} else {
			image := strings.TrimSpace(*req.ProfileImage)
			update.ProfileImage = &image
		}
	}
	if req.BackgroundColor != nil {
		if *req.BackgroundColor == "" {
			update.BackgroundColor = req.BackgroundColor
		} else if normalized, valid := validate.HexColor(*req.BackgroundColor); valid {
			update.BackgroundColor = &normalized
		} else {
			errs.Add("backgroundColor", "Invalid hex color")
		}
	}
	if req.TextColor != nil {
		if *req.TextColor == "" {
			update.TextColor = req.TextColor
		} else if normalized, valid := validate.HexColor(*req.TextColor); valid {
			update.TextColor = &normalized
		} else {
			errs.Add("textColor", "Invalid hex color")
		}
	}
	update.IsActive = req.IsActive

	return update, errs
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		s.fail(w, r, http.StatusUnauthorized, "Not authorized")
		return
	}

	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	fields, errs := validateCardRequest(req)
	if errs.Any() {
		s.failValidation(w, r, errs)
		return
	}

	now := time.Now().UTC()
	card := model.Card{
		UserID:      user.ID,
		SocialLinks: []string{},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyCardFields(&card, fields)

	// The 12-hex public identifier is random; retry the insert on the
	// rare collision instead of surfacing it.
	var err error
	for attempt := 0; attempt < maxCardIDAttempts; attempt++ {
		card.ID = uuid.NewString()
		card.CardID, err = newCardID()
		if err != nil {
			s.fail(w, r, http.StatusInternalServerError, "Server error")
			return
		}
		err = s.store.CreateCard(r.Context(), card)
		if !errors.Is(err, repository.ErrCardIDTaken) {
			break
		}
	}
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	ok(w, http.StatusCreated, "Card created successfully", map[string]any{"card": mapCardView(card)})
}

func applyCardFields(card *model.Card, fields repository.CardUpdate) {
	if fields.Name != nil {
		card.Name = *fields.Name
	}
	if fields.Email != nil {
		card.Email = *fields.Email
	}
	if fields.Phone != nil {
		card.Phone = *fields.Phone
	}
	if fields.Company != nil {
		card.Company = *fields.Company
	}
	if fields.Designation != nil {
		card.Designation = *fields.Designation
	}
	if fields.Website != nil {
		card.Website = *fields.Website
	}
	if fields.SocialLinks != nil {
		card.SocialLinks = *fields.SocialLinks
	}
	if fields.ProfileImage != nil {
		card.ProfileImage = *fields.ProfileImage
	}
	if fields.BackgroundColor != nil {
		card.BackgroundColor = *fields.BackgroundColor
	}
	if fields.TextColor != nil {
		card.TextColor = *fields.TextColor
	}
	if fields.IsActive != nil {
		card.IsActive = *fields.IsActive
	}
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		s.fail(w, r, http.StatusUnauthorized, "Not authorized")
		return
	}

	cards, err := s.store.ListCardsByOwner(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	views := make([]cardView, 0, len(cards))
	for _, card := range cards {
		views = append(views, mapCardView(card))
	}
	ok(w, http.StatusOK, "Cards fetched", map[string]any{"cards": views})
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")
	if cardID == "" {
		s.fail(w, r, http.StatusBadRequest, "cardId is required")
		return
	}

	if cached := s.cachedCard(r.Context(), cardID); cached != nil {
		ok(w, http.StatusOK, "Card fetched", map[string]any{"card": cached})
		return
	}

	card, err := s.store.GetCardByPublicID(r.Context(), cardID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.fail(w, r, http.StatusNotFound, "Card not found")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	view := mapCardView(card)
	s.cacheCard(r.Context(), cardID, view)
	ok(w, http.StatusOK, "Card fetched", map[string]any{"card": view})
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		s.fail(w, r, http.StatusUnauthorized, "Not authorized")
		return
	}
	cardID := chi.URLParam(r, "cardId")
	if cardID == "" {
		s.fail(w, r, http.StatusBadRequest, "cardId is required")
		return
	}

	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	update, errs := validateCardRequest(req)
	if errs.Any() {
		s.failValidation(w, r, errs)
		return
	}

	card, err := s.store.UpdateCard(r.Context(), cardID, user.ID, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.fail(w, r, http.StatusNotFound, "Card not found or not owned by user")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	s.dropCachedCard(r.Context(), cardID)
	ok(w, http.StatusOK, "Card updated successfully", map[string]any{"card": mapCardView(card)})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		s.fail(w, r, http.StatusUnauthorized, "Not authorized")
		return
	}
	cardID := chi.URLParam(r, "cardId")
	if cardID == "" {
		s.fail(w, r, http.StatusBadRequest, "cardId is required")
		return
	}

	if err := s.store.DeleteCard(r.Context(), cardID, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.fail(w, r, http.StatusNotFound, "Card not found or not owned by user")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	s.dropCachedCard(r.Context(), cardID)
	ok(w, http.StatusOK, "Card deleted successfully", nil)
}

// Scan handlers

type scanRequest struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Device    *string  `json:"device,omitempty"`
}

func (s *Server) handleLogScan(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")
	if cardID == "" {
		s.fail(w, r, http.StatusBadRequest, "cardId is required")
		return
	}

	// The body is optional; a bare POST is a valid scan.
	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	card, err := s.store.GetCardByPublicID(r.Context(), cardID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.fail(w, r, http.StatusNotFound, "Card not found")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	scan := model.ScanLog{
		ID:        uuid.NewString(),
		CardID:    card.ID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Device:    req.Device,
		Timestamp: time.Now().UTC(),
	}
	if user := userFromContext(r.Context()); user != nil {
		scan.ScannedBy = &user.ID
	}
	if ip := clientIP(r); ip != "" {
		scan.IPAddress = &ip
	}

	logged, err := s.store.LogScan(r.Context(), scan)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}
	scansLogged.Inc()
	s.dropCachedCard(r.Context(), cardID)

	ok(w, http.StatusCreated, "Scan logged", map[string]any{"log": mapScanView(logged, card.CardID)})
}

type analyticsView struct {
	TotalScans     int64       `json:"totalScans"`
	DailyBreakdown []dailyView `json:"dailyBreakdown"`
	RecentScans    []scanView  `json:"recentScans"`
	ScanCountField int64       `json:"scanCountField"`
}

type dailyView struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")
	if cardID == "" {
		s.fail(w, r, http.StatusBadRequest, "cardId is required")
		return
	}

	card, err := s.store.GetCardByPublicID(r.Context(), cardID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.fail(w, r, http.StatusNotFound, "Card not found")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	total, err := s.store.CountScans(r.Context(), card.ID)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}
	daily, err := s.store.DailyScanCounts(r.Context(), card.ID)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}
	recent, err := s.store.RecentScans(r.Context(), card.ID, recentScanLimit)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Server error")
		return
	}

	view := analyticsView{
		TotalScans:     total,
		DailyBreakdown: make([]dailyView, 0, len(daily)),
		RecentScans:    make([]scanView, 0, len(recent)),
		ScanCountField: card.ScanCount,
	}
	for _, day := range daily {
		view.DailyBreakdown = append(view.DailyBreakdown, dailyView{Date: day.Date, Count: day.Count})
	}
	for _, scan := range recent {
		view.RecentScans = append(view.RecentScans, mapScanView(scan, card.CardID))
	}

	ok(w, http.StatusOK, "Analytics fetched", view)
}

// Upload handlers

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		s.fail(w, r, http.StatusInternalServerError, "Upload storage not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxJSONBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid file upload")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > maxUploadBytes {
		s.fail(w, r, http.StatusBadRequest, "File too large. Max 5MB.")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid file upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	ext, allowed := imageExt(contentType)
	if !allowed {
		s.fail(w, r, http.StatusBadRequest, "Only image files (jpg, jpeg, png) are allowed")
		return
	}

	folder := r.FormValue("folder")
	if folder == "" {
		folder = r.URL.Query().Get("folder")
	}
	if folder == "" {
		folder = "images"
	}

	result, err := s.media.Upload(r.Context(), folder, ext, contentType, data)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Failed to upload image")
		return
	}

	ok(w, http.StatusCreated, "Image uploaded", map[string]any{
		"key": result.Key,
		"url": result.URL,
	})
}

type deleteImageRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		s.fail(w, r, http.StatusInternalServerError, "Upload storage not configured")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		var req deleteImageRequest
		if err := decodeJSON(w, r, &req); err == nil {
			key = req.Key
		}
	}
	if key == "" {
		s.fail(w, r, http.StatusBadRequest, "S3 key is required")
		return
	}

	if err := s.media.Delete(r.Context(), key); err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Failed to delete image")
		return
	}

	ok(w, http.StatusOK, "Image deleted", map[string]any{"key": key})
}

// Public-card cache, nil-checked so redis stays optional.

func cardCacheKey(cardID string) string {
	return "card:" + cardID
}

func (s *Server) cachedCard(ctx context.Context, cardID string) json.RawMessage {
	if s.redis == nil {
		return nil
	}
	payload, err := s.redis.Get(ctx, cardCacheKey(cardID)).Bytes()
	if err != nil {
		return nil
	}
	return payload
}

func (s *Server) cacheCard(ctx context.Context, cardID string, view cardView) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, cardCacheKey(cardID), payload, s.cfg.Redis.CardTTL).Err()
}

func (s *Server) dropCachedCard(ctx context.Context, cardID string) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, cardCacheKey(cardID)).Err()
}

// Helpers

func imageExt(contentType string) (string, bool) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	default:
		return "", false
	}
}

// newCardID generates the 12-character hex public card identifier.
func newCardID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// bearerToken accepts both "Bearer <token>" and a raw token value.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
