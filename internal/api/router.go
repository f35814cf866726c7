package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Public widget endpoint; anonymous end-user conversations
		r.Post("/widget/{accountID}/messages", apiHandler.WidgetMessageHandler)

		// Operator-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Training materials
			r.Post("/materials", apiHandler.CreateMaterialHandler)
			r.Get("/materials", apiHandler.ListMaterialsHandler)
			r.Get("/materials/{materialID}", apiHandler.GetMaterialHandler)
			r.Delete("/materials/{materialID}", apiHandler.DeleteMaterialHandler)
			r.Post("/materials/{materialID}/train", apiHandler.TrainMaterialHandler)

			// Bot personality
			r.Get("/personality", apiHandler.GetPersonalityHandler)
			r.Put("/personality", apiHandler.UpdatePersonalityHandler)

			// Conversations
			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Post("/conversations/{conversationID}/read", apiHandler.MarkConversationReadHandler)
			r.Delete("/conversations/{conversationID}", apiHandler.DeleteConversationHandler)
			r.Post("/messages/{messageID}/feedback", apiHandler.MessageFeedbackHandler)

			// Usage
			r.Get("/usage", apiHandler.GetUsageHandler)
		})
	})

	return r
}
