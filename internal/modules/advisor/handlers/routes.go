package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all advisor routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	// Questionnaire and scoring
	r.Get("/questionnaire", h.HandleGetQuestionnaire)
	r.Get("/questionnaire/{id}", h.HandleGetQuestionnaireByID)
	r.Get("/profiles", h.HandleGetProfiles)
	r.Post("/assess", h.HandleAssess)

	// Portfolios
	r.Post("/recommend", h.HandleRecommend)
	r.Post("/complete", h.HandleComplete)
	r.Get("/efficient-frontier", h.HandleGetEfficientFrontier)

	// Funds
	r.Route("/funds", func(r chi.Router) {
		r.Get("/", h.HandleGetFunds)
		r.Get("/metrics", h.HandleGetFundMetrics)
	})
}
