package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/KhrulSergey/league-core/handlers"
	"github.com/KhrulSergey/league-core/middleware"
)

const roleOrganizer = "organizer"

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	tournamentHandler *handlers.TournamentHandler,
	proposalHandler *handlers.ProposalHandler,
	matchHandler *handlers.MatchHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Route("/tournaments", func(r chi.Router) {
		// Публичные маршруты просмотра
		r.Get("/", tournamentHandler.List)
		r.Get("/{id}", tournamentHandler.Get)
		r.Get("/{id}/proposals", proposalHandler.List)

		// Заявки участников
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{id}/proposals", proposalHandler.Add)
			r.Post("/{id}/proposals/{proposalID}/check-in", proposalHandler.CheckIn)
			r.Delete("/{id}/proposals/{proposalID}", proposalHandler.Quit)
		})

		// Управление турниром — только организаторам
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(roleOrganizer))

			r.Post("/", tournamentHandler.Create)
			r.Put("/{id}", tournamentHandler.Update)
			r.Delete("/{id}", tournamentHandler.Delete)
			r.Post("/{id}/status", tournamentHandler.ChangeStatus)
			r.Post("/{id}/brackets", tournamentHandler.InitiateBrackets)
			r.Post("/{id}/proposals/{proposalID}/cancel", proposalHandler.Cancel)
			r.Post("/{id}/proposals/{proposalID}/reject", proposalHandler.Reject)
		})
	})

	router.Route("/proposals", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/{proposalID}", proposalHandler.Get)
	})

	router.Route("/series", func(r chi.Router) {
		r.Get("/{id}", matchHandler.GetSeries)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(roleOrganizer))
			r.Post("/{id}/status", matchHandler.ChangeSeriesStatus)
			r.Post("/{id}/omt", matchHandler.GenerateOmt)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{id}", matchHandler.Get)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{id}/lineup", matchHandler.EditLineup)
		})
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(roleOrganizer))
			r.Post("/{id}/result", matchHandler.SetResult)
			r.Post("/{id}/status", matchHandler.ChangeStatus)
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)
}
