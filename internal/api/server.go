package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/limbo/cadence/internal/service"
)

type Server struct {
	mx              *chi.Mux
	userService     service.UserServiceI
	eventsService   service.EventsServiceI
	snapshotManager service.SnapshotManagerI
	routineService  service.RoutineServiceI
	jwtService      JWTServiceI
}

type ServicesList struct {
	UserService     service.UserServiceI
	EventsService   service.EventsServiceI
	SnapshotManager service.SnapshotManagerI
	RoutineService  service.RoutineServiceI
	JwtService      JWTServiceI
}

func New(servicesOptions *ServicesList) *Server {
	return &Server{
		mx:              chi.NewMux(),
		userService:     servicesOptions.UserService,
		eventsService:   servicesOptions.EventsService,
		snapshotManager: servicesOptions.SnapshotManager,
		routineService:  servicesOptions.RoutineService,
		jwtService:      servicesOptions.JwtService,
	}
}

func (s *Server) Run(address string) error {
	s.mx.Route("/api/v1", func(r chi.Router) {
		r.Use(s.RequestIDMiddleware, s.SettingUpLoggerMiddleware)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.Register)
			r.Post("/login", s.Login)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware, s.LoggerExtensionMiddleware)
			r.Route("/events", func(r chi.Router) {
				r.Post("/", s.CreateEvent)
				r.Get("/", s.GetEvents)
				r.Post("/conflicts", s.CheckConflicts)
				r.Get("/{id}", s.GetEvent)
				r.Patch("/{id}", s.UpdateEvent)
				r.Delete("/{id}", s.DeleteEvent)
				r.Post("/{id}/complete", s.CompleteEvent)
			})
			r.Route("/snapshots", func(r chi.Router) {
				r.Get("/", s.GetSnapshots)
				r.Post("/undo", s.UndoLast)
				r.Post("/{id}/revert", s.RevertSnapshot)
			})
			r.Route("/routines", func(r chi.Router) {
				r.Post("/", s.CreateTemplate)
				r.Get("/", s.GetTemplates)
				r.Get("/instances", s.GetInstances)
				r.Post("/instances/{id}/complete", s.CompleteInstance)
				r.Post("/instances/{id}/skip", s.SkipInstance)
				r.Get("/{id}/stats", s.GetTemplateStats)
			})
		})
	})
	return http.ListenAndServe(address, s.mx)
}
