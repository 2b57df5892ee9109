package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dryclean/internal/catalog"
	"dryclean/internal/errs"
	"dryclean/internal/models"
	"dryclean/internal/pricing"
	"dryclean/internal/utils"
)

type Handler struct {
	Catalog *catalog.CatalogService
	Pricing *pricing.Engine
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/categories", h.ListCategories)
	r.Get("/categories/services", h.CategoriesWithServices)
	r.Get("/services", h.ListServices)
	r.Get("/services/{serviceId}", h.GetService)
	r.Get("/services/{serviceId}/variants", h.ListVariants)
	r.Get("/services/{serviceId}/pricing-rules", h.ListRules)
	r.Post("/estimate", h.Estimate)
	r.Post("/estimate/bulk", h.EstimateBulk)
}

// RegisterAdminRoutes mounts the write endpoints; callers wrap them in the
// staff-only middleware.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/categories", h.CreateCategory)
	r.Put("/categories/{categoryId}", h.UpdateCategory)
	r.Post("/services", h.CreateService)
	r.Put("/services/{serviceId}", h.UpdateService)
	r.Post("/services/{serviceId}/variants", h.CreateVariant)
	r.Put("/variants/{variantId}", h.UpdateVariant)
	r.Post("/services/{serviceId}/pricing-rules", h.CreateRule)
	r.Put("/pricing-rules/{ruleId}", h.UpdateRule)
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, errs.HTTPStatus(err), utils.ErrorResponse(message, err.Error()))
}

// ---------------- BROWSE ----------------

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, "Could not list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Categories retrieved", categories))
}

func (h *Handler) CategoriesWithServices(w http.ResponseWriter, r *http.Request) {
	result, err := h.Catalog.CategoriesWithServices(r.Context())
	if err != nil {
		writeError(w, "Could not list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Categories retrieved", result))
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	filter := models.ServiceFilter{
		CategoryID: r.URL.Query().Get("category_id"),
		Search:     r.URL.Query().Get("search"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		filter.Offset = offset
	}

	services, err := h.Catalog.ListServices(r.Context(), filter)
	if err != nil {
		writeError(w, "Could not list services", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Services retrieved", services))
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.Catalog.GetService(r.Context(), chi.URLParam(r, "serviceId"))
	if err != nil {
		writeError(w, "Service not found", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Service retrieved", svc))
}

func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.Catalog.ServiceVariants(r.Context(), chi.URLParam(r, "serviceId"))
	if err != nil {
		writeError(w, "Could not list variants", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Variants retrieved", variants))
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Catalog.ServiceRules(r.Context(), chi.URLParam(r, "serviceId"))
	if err != nil {
		writeError(w, "Could not list pricing rules", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Pricing rules retrieved", rules))
}

// ---------------- ESTIMATES ----------------

func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var item models.EstimateItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := h.Pricing.Quote(r.Context(), item.ServiceID, item.VariantID, item.Quantity)
	if err != nil {
		writeError(w, "Could not price item", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Estimate calculated", quote))
}

func (h *Handler) EstimateBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []models.EstimateItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	estimate, err := h.Pricing.EstimateBulk(r.Context(), req.Items)
	if err != nil {
		writeError(w, "Could not calculate estimate", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Estimate calculated", estimate))
}

// ---------------- ADMIN ----------------

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var category models.ServiceCategory
	if err := json.NewDecoder(r.Body).Decode(&category); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Catalog.CreateCategory(r.Context(), &category); err != nil {
		writeError(w, "Could not create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Category created", category))
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var category models.ServiceCategory
	if err := json.NewDecoder(r.Body).Decode(&category); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	category.ID = chi.URLParam(r, "categoryId")
	if err := h.Catalog.UpdateCategory(r.Context(), &category); err != nil {
		writeError(w, "Could not update category", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Category updated", category))
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var svc models.Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Catalog.CreateService(r.Context(), &svc); err != nil {
		writeError(w, "Could not create service", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Service created", svc))
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var svc models.Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	svc.ID = chi.URLParam(r, "serviceId")
	if err := h.Catalog.UpdateService(r.Context(), &svc); err != nil {
		writeError(w, "Could not update service", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Service updated", svc))
}

func (h *Handler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var variant models.ServiceVariant
	if err := json.NewDecoder(r.Body).Decode(&variant); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	variant.ServiceID = chi.URLParam(r, "serviceId")
	if err := h.Catalog.CreateVariant(r.Context(), &variant); err != nil {
		writeError(w, "Could not create variant", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Variant created", variant))
}

func (h *Handler) UpdateVariant(w http.ResponseWriter, r *http.Request) {
	var variant models.ServiceVariant
	if err := json.NewDecoder(r.Body).Decode(&variant); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	variant.ID = chi.URLParam(r, "variantId")
	if err := h.Catalog.UpdateVariant(r.Context(), &variant); err != nil {
		writeError(w, "Could not update variant", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Variant updated", variant))
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.PricingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	rule.ServiceID = chi.URLParam(r, "serviceId")
	if err := h.Catalog.CreatePricingRule(r.Context(), &rule); err != nil {
		writeError(w, "Could not create pricing rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Pricing rule created", rule))
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.PricingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	rule.ID = chi.URLParam(r, "ruleId")
	if err := h.Catalog.UpdatePricingRule(r.Context(), &rule); err != nil {
		writeError(w, "Could not update pricing rule", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Pricing rule updated", rule))
}
