package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"github.com/yourastro/backend/internal/models"
)

// AstrologerService serves the public astrologer directory and lets
// astrologers manage their own consultation profile.
type AstrologerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// StatusRequest updates an astrologer's availability and rate
type StatusRequest struct {
	IsOnline    bool  `json:"isOnline"`
	PricePerMin int64 `json:"pricePerMin" validate:"omitempty,gt=0,lte=10000"`
}

func NewAstrologerService(db *sql.DB) *AstrologerService {
	return &AstrologerService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

const astrologerSelect = `
	SELECT p.id, p.full_name, COALESCE(p.avatar_url, ''),
	       a.experience_years, a.specialties, a.languages, COALESCE(a.bio, ''),
	       a.price_per_min, a.is_verified, a.is_online, a.rating, a.total_consultations
	FROM astrologer_profiles a
	JOIN profiles p ON p.id = a.id`

func scanAstrologer(row interface{ Scan(...any) error }) (models.AstrologerProfile, error) {
	var v models.AstrologerProfile
	err := row.Scan(&v.ID, &v.FullName, &v.AvatarURL,
		&v.Experience, pq.Array(&v.Specialties), pq.Array(&v.Languages), &v.Bio,
		&v.PricePerMin, &v.IsVerified, &v.IsOnline, &v.Rating, &v.TotalConsultations)
	return v, err
}

// List returns the astrologer directory
// @Summary List astrologers
// @Description List astrologers, optionally filtered to those online, ordered by rating
// @Tags astrologers
// @Produce json
// @Param online query bool false "Only online astrologers"
// @Param limit query int false "Number of astrologers to return (default: 20, max: 100)"
// @Success 200 {object} object{astrologers=[]models.AstrologerProfile,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /astrologers [get]
func (as *AstrologerService) List(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r, 20, 100)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	query := astrologerSelect
	if r.URL.Query().Get("online") == "true" {
		query += ` WHERE a.is_online = TRUE`
	}
	query += ` ORDER BY a.rating DESC, a.total_consultations DESC LIMIT $1`

	rows, err := as.db.QueryContext(r.Context(), query, limit)
	if err != nil {
		log.Printf("[ASTRO] Directory query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch astrologers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	astrologers := []models.AstrologerProfile{}
	for rows.Next() {
		v, err := scanAstrologer(rows)
		if err != nil {
			log.Printf("[ASTRO] Directory scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch astrologers", http.StatusInternalServerError, nil)
			return
		}
		astrologers = append(astrologers, v)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[ASTRO] Directory iteration failed: %v", err)
		SendErrorResponse(w, "Failed to fetch astrologers", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"astrologers": astrologers,
		"count":       len(astrologers),
	})
}

// Get returns one astrologer's public profile
// @Summary Get astrologer
// @Description Retrieve a single astrologer's public profile
// @Tags astrologers
// @Produce json
// @Param astrologerId path string true "Astrologer ID"
// @Success 200 {object} models.AstrologerProfile
// @Failure 404 {object} ErrorResponse
// @Router /astrologers/{astrologerId} [get]
func (as *AstrologerService) Get(w http.ResponseWriter, r *http.Request) {
	astrologerID := chi.URLParam(r, "astrologerId")

	row := as.db.QueryRowContext(r.Context(), astrologerSelect+` WHERE p.id = $1`, astrologerID)
	v, err := scanAstrologer(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Astrologer not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[ASTRO] Profile fetch failed for %s: %v", astrologerID, err)
		SendErrorResponse(w, "Failed to fetch astrologer", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// UpdateStatus updates the caller's availability and rate
// @Summary Update astrologer status
// @Description Set the authenticated astrologer's online flag and per-minute rate
// @Tags astrologers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param astrologerId path string true "Astrologer ID"
// @Param request body StatusRequest true "Status update"
// @Success 200 {object} object{success=bool,isOnline=bool}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /astrologers/{astrologerId}/status [put]
func (as *AstrologerService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	astrologerID := chi.URLParam(r, "astrologerId")
	// Astrologers only manage their own availability.
	if astrologerID != userID {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req StatusRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Going online requires a positive rate, either already set or
	// supplied in this request.
	var result sql.Result
	var err error
	if req.PricePerMin > 0 {
		result, err = as.db.ExecContext(r.Context(), `
			UPDATE astrologer_profiles SET is_online = $1, price_per_min = $2 WHERE id = $3
		`, req.IsOnline, req.PricePerMin, astrologerID)
	} else if req.IsOnline {
		result, err = as.db.ExecContext(r.Context(), `
			UPDATE astrologer_profiles SET is_online = TRUE WHERE id = $1 AND price_per_min > 0
		`, astrologerID)
	} else {
		result, err = as.db.ExecContext(r.Context(), `
			UPDATE astrologer_profiles SET is_online = FALSE WHERE id = $1
		`, astrologerID)
	}
	if err != nil {
		log.Printf("[ASTRO] Status update failed for %s: %v", astrologerID, err)
		SendErrorResponse(w, "Failed to update status", http.StatusInternalServerError, nil)
		return
	}

	if n, _ := result.RowsAffected(); n == 0 {
		if req.IsOnline && req.PricePerMin == 0 {
			SendErrorResponse(w, "Set a per-minute rate before going online", http.StatusBadRequest, nil)
		} else {
			SendErrorResponse(w, "Astrologer not found", http.StatusNotFound, nil)
		}
		return
	}

	log.Printf("[ASTRO] Astrologer %s online=%t", astrologerID, req.IsOnline)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"isOnline": req.IsOnline,
	})
}

// UpdateProfile updates the caller's consultation profile
// @Summary Update astrologer profile
// @Description Update the authenticated astrologer's experience, specialties, languages and bio
// @Tags astrologers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param astrologerId path string true "Astrologer ID"
// @Param request body object{experienceYears=int,specialties=[]string,languages=[]string,bio=string} true "Profile update"
// @Success 200 {object} models.AstrologerProfile
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /astrologers/{astrologerId}/profile [put]
func (as *AstrologerService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	astrologerID := chi.URLParam(r, "astrologerId")
	if astrologerID != userID {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	var req struct {
		Experience  int      `json:"experienceYears" validate:"gte=0,lte=80"`
		Specialties []string `json:"specialties" validate:"max=10,dive,min=2,max=40"`
		Languages   []string `json:"languages" validate:"max=10,dive,min=2,max=30"`
		Bio         string   `json:"bio" validate:"max=1000"`
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	_, err := as.db.ExecContext(r.Context(), `
		UPDATE astrologer_profiles
		SET experience_years = $1, specialties = $2, languages = $3, bio = $4
		WHERE id = $5
	`, req.Experience, pq.Array(req.Specialties), pq.Array(req.Languages), req.Bio, astrologerID)
	if err != nil {
		log.Printf("[ASTRO] Profile update failed for %s: %v", astrologerID, err)
		SendErrorResponse(w, "Failed to update profile", http.StatusInternalServerError, nil)
		return
	}

	row := as.db.QueryRowContext(r.Context(), astrologerSelect+` WHERE p.id = $1`, astrologerID)
	v, err := scanAstrologer(row)
	if err != nil {
		log.Printf("[ASTRO] Profile reload failed for %s: %v", astrologerID, err)
		SendErrorResponse(w, "Failed to fetch astrologer", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
