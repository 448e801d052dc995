package routes

import (
	"github.com/arenagrid/match-engine/handlers"
	"github.com/arenagrid/match-engine/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes assembles the HTTP surface. Reads are public; everything that
// mutates a bracket or a room requires an organizer token.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	bracketHandler *handlers.BracketHandler,
	matchHandler *handlers.MatchHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		r.Get("/bracket", bracketHandler.GetBracketHandler)
		r.Get("/matches", matchHandler.ListMatchesHandler)
		r.Get("/ws", webSocketHandler.SubscribeHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate([]byte(jwtSecret)))
			r.Use(middleware.Authorize("organizer"))

			r.Post("/bracket", bracketHandler.GenerateBracketHandler)
			r.Post("/bracket/results", bracketHandler.RecordResultHandler)
			r.Post("/matches", matchHandler.ScheduleRoundHandler)
		})
	})

	router.Route("/matches/{matchID}", func(r chi.Router) {
		r.Get("/room", matchHandler.GetRoomHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate([]byte(jwtSecret)))
			r.Use(middleware.Authorize("organizer"))

			r.Post("/complete", matchHandler.CompleteMatchHandler)
			r.Post("/room", matchHandler.PrepareRoomHandler)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate([]byte(jwtSecret)))
		r.Use(middleware.Authorize("organizer"))

		r.Post("/admin/rooms/sweep", matchHandler.SweepExpiredRoomsHandler)
	})
}
