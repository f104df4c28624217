package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/campus-eats/internal/domain/catalog"
)

type mealResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Price      int64  `json:"price"`
	Available  bool   `json:"available"`
	Restaurant string `json:"restaurant,omitempty"`
	Category   string `json:"category,omitempty"`
}

func (h *Handler) toMealResponse(m catalog.Meal) mealResponse {
	m = m.WithImageBase(h.imageBaseURL)
	return mealResponse{
		ID:         m.ID,
		Name:       m.DisplayName,
		ImageURL:   m.ImageURL,
		Price:      m.UnitPrice(h.exponent),
		Available:  m.Available,
		Restaurant: m.Restaurant,
		Category:   m.Category,
	}
}

// ListMeals returns the catalog. Optional query filters: category and
// restaurant (case-insensitive), available=true, and q for a text search.
func (h *Handler) ListMeals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meals, err := h.meals.List(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	q := r.URL.Query()
	category, restaurant := q.Get("category"), q.Get("restaurant")
	onlyAvailable := q.Get("available") == "true"
	search := q.Get("q")

	resp := make([]mealResponse, 0, len(meals))
	for _, m := range meals {
		if category != "" && !strings.EqualFold(m.Category, category) {
			continue
		}
		if restaurant != "" && !strings.EqualFold(m.Restaurant, restaurant) {
			continue
		}
		if onlyAvailable && !m.Available {
			continue
		}
		if !m.Matches(search) {
			continue
		}
		resp = append(resp, h.toMealResponse(m))
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// GetMeal returns one meal.
func (h *Handler) GetMeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.meals.GetByID(ctx, r.PathValue("mealId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, h.toMealResponse(*m))
}
