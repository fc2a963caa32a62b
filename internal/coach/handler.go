package coach

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2beens/runcoach/internal/plans"
	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

// SetupRoutes registers the API on router. syncMiddleware wraps only the routes
// that may reach the remote source.
func (handler *Handler) SetupRoutes(router *mux.Router, syncMiddleware ...mux.MiddlewareFunc) {
	syncRouter := router.NewRoute().Subrouter()
	syncRouter.HandleFunc("/sync", handler.HandleSync).Methods("POST")
	syncRouter.HandleFunc("/report", handler.HandleReport).Methods("GET").Queries("refresh", "{refresh:true|1}")
	syncRouter.HandleFunc("/activities", handler.HandleActivities).Methods("GET")
	syncRouter.HandleFunc("/activities/recent", handler.HandleRecentActivities).Methods("GET")
	syncRouter.HandleFunc("/activities/{id:[0-9]+}", handler.HandleRemoteActivity).Methods("GET")
	syncRouter.HandleFunc("/activities/{id:[0-9]+}/streams", handler.HandleActivityStreams).Methods("GET")
	syncRouter.Use(syncMiddleware...)

	router.HandleFunc("/report", handler.HandleReport).Methods("GET")
	router.HandleFunc("/runs", handler.HandleRuns).Methods("GET")
	router.HandleFunc("/runs/{id}", handler.HandleGetRun).Methods("GET")
	router.HandleFunc("/runs/{id}", handler.HandleDeleteRun).Methods("DELETE")
	router.HandleFunc("/plans", handler.HandleListPlans).Methods("GET")
	router.HandleFunc("/plans", handler.HandleSavePlan).Methods("POST")
	router.HandleFunc("/plans/{id}", handler.HandleGetPlan).Methods("GET")
	router.HandleFunc("/plans/{id}", handler.HandleUpdatePlan).Methods("PATCH")
	router.HandleFunc("/plans/{id}", handler.HandleDeletePlan).Methods("DELETE")
	router.HandleFunc("/plans/{id}/adherence", handler.HandleAdherence).Methods("GET")
	router.HandleFunc("/adherence", handler.HandleAdherence).Methods("GET")
}

// writeError maps domain errors to status codes; anything unknown is a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runs.ErrActivityNotFound), errors.Is(err, plans.ErrPlanNotFound):
		pkg.WriteJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, plans.ErrInvalidPlan), errors.Is(err, plans.ErrInvalidPlanID), errors.Is(err, ErrInvalidRange):
		pkg.WriteJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSyncInProgress):
		pkg.WriteJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSourceNotConfigured):
		pkg.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Errorf("coach handler: %s", err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func runID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (handler *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	stored, err := handler.service.Sync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	log.Debugf("sync via api stored %d new runs", stored)
	pkg.WriteJSONResponseOK(w, map[string]int{"new_runs_fetched": stored})
}

func (handler *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	rep, err := handler.service.TrainingReport(r.Context(), refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, rep)
}

func (handler *Handler) HandleRecentActivities(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultRecentDays)
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid days")
		return
	}
	limit, err := intParam(r, "limit", defaultRecentLimit)
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	activities, err := handler.service.RecentActivities(r.Context(), days, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{"data": activities})
}

// HandleActivities lists remote activities, limited to a date range when
// start_date or end_date is given.
func (handler *Handler) HandleActivities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	startDate, endDate := query.Get("start_date"), query.Get("end_date")
	rangeQuery := startDate != "" || endDate != ""

	defaultLimit := defaultRecentLimit
	if rangeQuery {
		defaultLimit = defaultRangeLimit
	}
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	var activities []runs.Activity
	if rangeQuery {
		activities, err = handler.service.ActivitiesBetween(r.Context(), startDate, endDate, limit)
	} else {
		activities, err = handler.service.Activities(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{"data": activities})
}

func (handler *Handler) HandleRemoteActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid activity id")
		return
	}

	activity, err := handler.service.RemoteActivity(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{"data": activity})
}

func (handler *Handler) HandleActivityStreams(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid activity id")
		return
	}

	var streamTypes []string
	if types := r.URL.Query().Get("types"); types != "" {
		streamTypes = strings.Split(types, ",")
	}
	streams, err := handler.service.ActivityStreams(r.Context(), id, streamTypes)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{"data": streams})
}

func (handler *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	details, err := handler.service.CachedRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{
		"runs":  details,
		"count": len(details),
	})
}

func (handler *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	activity, err := handler.service.Run(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, activity)
}

func (handler *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	if err := handler.service.DeleteRun(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("cached run %d deleted", id)
	pkg.WriteJSONResponseOK(w, map[string]any{"id": id, "deleted": true})
}

func (handler *Handler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	summaries, err := handler.service.ListPlans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{
		"plans": summaries,
		"count": len(summaries),
	})
}

func (handler *Handler) HandleSavePlan(w http.ResponseWriter, r *http.Request) {
	plan := &plans.Plan{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(plan); err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	planID, err := handler.service.SavePlan(r.Context(), plan, r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("training plan saved: [%s]", planID)
	pkg.WriteJSONResponse(w, http.StatusCreated, map[string]any{
		"plan_id":   planID,
		"saved":     true,
		"plan_name": plan.Summary().PlanName,
	})
}

func (handler *Handler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := handler.service.GetPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	pkg.WriteJSONResponseOK(w, plan)
}

func (handler *Handler) HandleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]

	var partial map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&partial); err != nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if partial == nil {
		pkg.WriteJSONError(w, http.StatusBadRequest, "updates must be a JSON object")
		return
	}

	plan, err := handler.service.UpdatePlan(r.Context(), planID, partial)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("training plan updated: [%s]", planID)
	pkg.WriteJSONResponseOK(w, map[string]any{
		"plan_id": planID,
		"updated": true,
		"plan":    plan,
	})
}

func (handler *Handler) HandleDeletePlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]
	if err := handler.service.DeletePlan(r.Context(), planID); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("training plan deleted: [%s]", planID)
	pkg.WriteJSONResponseOK(w, map[string]any{"plan_id": planID, "deleted": true})
}

func (handler *Handler) HandleAdherence(w http.ResponseWriter, r *http.Request) {
	result, err := handler.service.Adherence(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("full") == "" {
		result = result.Latest()
	}
	pkg.WriteJSONResponseOK(w, result)
}
