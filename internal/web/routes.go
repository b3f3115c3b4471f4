package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/ledger"
	"github.com/facegate/facegate/internal/pipeline"
	"github.com/facegate/facegate/internal/vision"
	"github.com/facegate/facegate/internal/web/handlers"
)

func (s *Server) setupRoutes(controller *pipeline.Controller, store *identity.Store, lg *ledger.Ledger, detector vision.Detector) {
	controlHandler := handlers.NewControlHandler(controller)
	attendanceHandler := handlers.NewAttendanceHandler(lg)
	peopleHandler := handlers.NewPeopleHandler(store, detector)
	videoHandler := handlers.NewVideoHandler(controller)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Session control
		r.Get("/status", controlHandler.Status)
		r.Post("/start", controlHandler.Start)
		r.Post("/stop", controlHandler.Stop)

		// Attendance ledger
		r.Get("/attendance", attendanceHandler.Get)
		r.Get("/attendance/export", attendanceHandler.Export)

		// Enrollment
		r.Post("/add_person", peopleHandler.Add)
		r.Get("/people", peopleHandler.List)

		// Live annotated stream
		r.Get("/video", videoHandler.Stream)
	})
}
