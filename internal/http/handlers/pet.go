package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

type PetHandler struct {
	log  *logger.Logger
	pets services.PetService
}

func NewPetHandler(log *logger.Logger, pets services.PetService) *PetHandler {
	return &PetHandler{
		log:  log.With("handler", "PetHandler"),
		pets: pets,
	}
}

type petPayload struct {
	Name     string   `json:"name"`
	Species  string   `json:"species"`
	Breed    string   `json:"breed"`
	Gender   string   `json:"gender"`
	BirthAt  *string  `json:"birth_at"`
	WeightKg *float64 `json:"weight_kg"`
}

func parseBirthAt(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// POST /api/pets
// body: { "name": "...", "species": "dog", "breed": "...", "gender": "...", "birth_at": "2021-04-01T00:00:00Z", "weight_kg": 12.5 }
func (h *PetHandler) CreatePet(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	var req petPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	birthAt, err := parseBirthAt(req.BirthAt)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_birth_at", err)
		return
	}

	pet, err := h.pets.Create(c.Request.Context(), userID, services.PetCreate{
		Name:     strings.TrimSpace(req.Name),
		Species:  strings.TrimSpace(req.Species),
		Breed:    strings.TrimSpace(req.Breed),
		Gender:   strings.TrimSpace(req.Gender),
		BirthAt:  birthAt,
		WeightKg: req.WeightKg,
	})
	if err != nil {
		response.RespondFromError(c, "create_pet_failed", err)
		return
	}

	response.RespondCreated(c, gin.H{"pet": pet})
}

// GET /api/pets
func (h *PetHandler) ListPets(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	pets, err := h.pets.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondFromError(c, "list_pets_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"pets": pets})
}

// GET /api/pets/:id
func (h *PetHandler) GetPet(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	petID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pet_id", err)
		return
	}

	pet, err := h.pets.Get(c.Request.Context(), userID, petID)
	if err != nil {
		response.RespondFromError(c, "load_pet_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"pet": pet})
}

// PATCH /api/pets/:id
// body: any subset of the create fields; absent fields stay unchanged
func (h *PetHandler) UpdatePet(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	petID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pet_id", err)
		return
	}

	var req struct {
		Name     *string  `json:"name"`
		Species  *string  `json:"species"`
		Breed    *string  `json:"breed"`
		Gender   *string  `json:"gender"`
		BirthAt  *string  `json:"birth_at"`
		WeightKg *float64 `json:"weight_kg"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	birthAt, err := parseBirthAt(req.BirthAt)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_birth_at", err)
		return
	}

	pet, err := h.pets.Update(c.Request.Context(), userID, petID, services.PetUpdate{
		Name:     req.Name,
		Species:  req.Species,
		Breed:    req.Breed,
		Gender:   req.Gender,
		BirthAt:  birthAt,
		WeightKg: req.WeightKg,
	})
	if err != nil {
		response.RespondFromError(c, "update_pet_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"pet": pet})
}

// DELETE /api/pets/:id
func (h *PetHandler) DeletePet(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	petID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pet_id", err)
		return
	}

	if err := h.pets.Delete(c.Request.Context(), userID, petID); err != nil {
		response.RespondFromError(c, "delete_pet_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/pets/:id/avatar/upload (multipart/form-data)
// field: "file"
func (h *PetHandler) UploadPetAvatar(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	petID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pet_id", err)
		return
	}

	raw, ok := formImage(c)
	if !ok {
		return
	}

	pet, err := h.pets.SetAvatarFromImage(c.Request.Context(), userID, petID, raw)
	if err != nil {
		response.RespondFromError(c, "upload_pet_avatar_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"pet": pet})
}
