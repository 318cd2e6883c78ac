// @title Cadence API
// @description API for the personal scheduling engine "Cadence"
// @BasePath /api/v1
// @schemes http
package main

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq"
	"github.com/limbo/cadence/internal/api"
	"github.com/limbo/cadence/internal/repository"
	"github.com/limbo/cadence/internal/service"
	"github.com/limbo/cadence/pkg/cleanup"
	"github.com/limbo/cadence/pkg/config"
	jwtservice "github.com/limbo/cadence/pkg/jwt_service"
	"github.com/limbo/cadence/pkg/timeparse"
	"github.com/pressly/goose"
)

func init() {
	service.InitValidator()
}

func main() {
	cfg := config.New()
	dbCfg := repository.PGCfg{
		Address:  cfg.GetString("POSTGRES_DB_ADDRESS"),
		Username: cfg.GetString("POSTGRES_USER"),
		Password: cfg.GetString("POSTGRES_PASSWORD"),
		DB:       cfg.GetString("POSTGRES_DB"),
	}
	migrate(&dbCfg)
	eventsRepo := repository.NewEventsRepo(&dbCfg)
	routinesRepo := repository.NewRoutinesRepo(&dbCfg)
	userService := service.NewUserService(repository.NewUsersRepo(&dbCfg))
	locks := service.NewUserLocks()
	snapshotManager := service.NewSnapshotManager(repository.NewSnapshotsRepo(&dbCfg), eventsRepo, locks)
	eventsService := service.NewEventsService(eventsRepo, snapshotManager, timeparse.New(), locks)
	routineService := service.NewRoutineService(routinesRepo, eventsService)

	replenisher := service.NewReplenisher(routineService, routinesRepo, nil)
	err := replenisher.Start(cfg.GetString("REPLENISH_CRON"))
	if err != nil {
		log.Fatal("starting replenisher error: " + err.Error())
	}
	cleanup.Register(&cleanup.Job{
		Name: "stopping replenisher",
		F:    replenisher.Stop,
	})
	defer cleanup.CleanUp()

	serv := api.New(&api.ServicesList{
		UserService:     userService,
		EventsService:   eventsService,
		SnapshotManager: snapshotManager,
		RoutineService:  routineService,
		JwtService:      jwtservice.New(cfg.GetString("JWT_SECRET")),
	})
	err = serv.Run(cfg.GetString("API_ADDRESS"))
	if err != nil {
		log.Println("Server error: " + err.Error())
	}
}

func migrate(dbCfg *repository.PGCfg) {
	conn, err := sql.Open("postgres", dbCfg.ConnString())
	if err != nil {
		log.Fatal("opening migration connection error: " + err.Error())
	}
	defer conn.Close()
	if err := goose.Up(conn, "./migrations"); err != nil {
		log.Fatal("applying migrations error: " + err.Error())
	}
}
