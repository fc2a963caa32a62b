package mcp

import (
	"net/http"

	"github.com/2beens/runcoach/internal/telemetry/metrics"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds the MCP server with the running coach tools. The same server
// runs over stdio (cmd/runcoach_mcp) and over HTTP at /mcp (see NewHTTPHandler).
func NewServer(service coachService, metricsManager *metrics.Manager, version string) *mcp.Server {
	h := NewHandler(service, metricsManager)
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "runcoach",
		Version: version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_training_report",
		Description: "Returns a training report over all cached runs: overall summary (total runs, distance, time, elevation, avg pace, avg HR), per-week summaries and individual runs with lap splits. Fetches new runs from Strava first unless refresh is false.",
	}, h.GetTrainingReportTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sync_activities",
		Description: "Fetches running activities from the last weeks that are not cached yet, with laps and streams, and stores them locally. Returns how many new runs were stored.",
	}, h.SyncActivitiesTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_cached_runs",
		Description: "Returns locally cached runs, most recent first, with date, distance, time, pace, elevation, avg HR and laps. Optional arg: limit.",
	}, h.GetCachedRunsTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_recent_activities",
		Description: "Returns activities of any sport from the past days straight from Strava, without caching them. Args: days (default 7), limit (default 10).",
	}, h.GetRecentActivitiesTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_activities",
		Description: "Returns the athlete's latest activities of any sport straight from Strava. Optional arg: limit (default 10).",
	}, h.GetActivitiesTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_activities_by_date_range",
		Description: "Returns Strava activities started between start_date and end_date (YYYY-MM-DD, both inclusive). Optional arg: limit (default 30).",
	}, h.GetActivitiesByDateRangeTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_activity_by_id",
		Description: "Returns one Strava activity by activity_id, whether or not it is cached.",
	}, h.GetActivityByIDTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_activity_streams",
		Description: "Returns time series of a Strava activity keyed by type, e.g. heartrate, pace, altitude, cadence. Args: activity_id, stream_types (comma separated, default heartrate,pace).",
	}, h.GetActivityStreamsTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "save_training_plan",
		Description: "Saves a training plan given as a JSON string (plan_name, goal_race, weeks with dated runs of type easy, workout, long_run, tuneup_race, gym, cross_training or rest). Optional plan_id; one is generated when empty.",
	}, h.SaveTrainingPlanTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_training_plans",
		Description: "Lists saved training plans (id, name, race date, race name, is_active), ordered by race date.",
	}, h.ListTrainingPlansTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_training_plan",
		Description: "Returns the full training plan with the given plan_id.",
	}, h.GetTrainingPlanTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "update_training_plan",
		Description: "Updates a training plan with a partial JSON object. Nested objects are merged key by key, arrays and scalars are replaced.",
	}, h.UpdateTrainingPlanTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "delete_training_plan",
		Description: "Deletes the training plan with the given plan_id.",
	}, h.DeleteTrainingPlanTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "analyze_plan_adherence",
		Description: "Compares planned workouts with cached runs (a run within one day of the planned date counts): completion rate, recent completed workouts with planned vs actual, recent missed workouts and upcoming workouts for the next days. Defaults to the active plan.",
	}, h.AnalyzePlanAdherenceTool())

	return s
}

// NewHTTPHandler serves server over the streamable HTTP transport.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}
