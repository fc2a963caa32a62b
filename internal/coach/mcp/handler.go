package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/2beens/runcoach/internal/adherence"
	"github.com/2beens/runcoach/internal/coach"
	"github.com/2beens/runcoach/internal/plans"
	"github.com/2beens/runcoach/internal/report"
	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/internal/telemetry/metrics"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	log "github.com/sirupsen/logrus"
)

// coachService is the part of coach.Service the tools call.
type coachService interface {
	Sync(ctx context.Context) (int, error)
	TrainingReport(ctx context.Context, refresh bool) (*coach.TrainingReport, error)
	CachedRuns(ctx context.Context, limit int) ([]report.RunDetail, error)
	RecentActivities(ctx context.Context, days, limit int) ([]runs.Activity, error)
	Activities(ctx context.Context, limit int) ([]runs.Activity, error)
	ActivitiesBetween(ctx context.Context, startDate, endDate string, limit int) ([]runs.Activity, error)
	RemoteActivity(ctx context.Context, id int64) (*runs.Activity, error)
	ActivityStreams(ctx context.Context, id int64, streamTypes []string) (map[string]json.RawMessage, error)
	SavePlan(ctx context.Context, plan *plans.Plan, id string) (string, error)
	ListPlans(ctx context.Context) ([]plans.Summary, error)
	GetPlan(ctx context.Context, id string) (*plans.Plan, error)
	UpdatePlan(ctx context.Context, id string, partial map[string]any) (*plans.Plan, error)
	DeletePlan(ctx context.Context, id string) error
	Adherence(ctx context.Context, planID string) (*adherence.Result, error)
}

// Handler turns tool calls into service calls. Failures come back as IsError
// results so the model sees the message; the Go error is always nil.
type Handler struct {
	service        coachService
	metricsManager *metrics.Manager
}

func NewHandler(service coachService, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		service:        service,
		metricsManager: metricsManager,
	}
}

func (h *Handler) errorResult(tool, text string) *mcp.CallToolResult {
	h.metricsManager.CounterToolCalls.WithLabelValues(tool, "error").Inc()
	log.Warnf("mcp tool %s: %s", tool, text)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func (h *Handler) jsonResult(tool string, v any) *mcp.CallToolResult {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return h.errorResult(tool, "Error encoding response: "+err.Error())
	}
	h.metricsManager.CounterToolCalls.WithLabelValues(tool, "ok").Inc()
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}
}

func planErrorText(planID string, err error) string {
	if errors.Is(err, plans.ErrPlanNotFound) {
		return "Plan not found: " + planID
	}
	return "Error: " + err.Error()
}

type TrainingReportInput struct {
	Refresh *bool `json:"refresh,omitempty" jsonschema:"Fetch the latest runs from Strava first (default true). Set to false to only use locally cached data."`
}

func (h *Handler) GetTrainingReportTool() func(context.Context, *mcp.CallToolRequest, TrainingReportInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_training_report"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in TrainingReportInput) (*mcp.CallToolResult, any, error) {
		refresh := in.Refresh == nil || *in.Refresh
		rep, err := h.service.TrainingReport(ctx, refresh)
		if err != nil {
			return h.errorResult(tool, "Error building training report: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, rep), nil, nil
	}
}

func (h *Handler) SyncActivitiesTool() func(context.Context, *mcp.CallToolRequest, any) (*mcp.CallToolResult, any, error) {
	const tool = "sync_activities"
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
		stored, err := h.service.Sync(ctx)
		if err != nil {
			return h.errorResult(tool, "Error syncing activities: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]int{"new_runs_fetched": stored}), nil, nil
	}
}

type CachedRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, most recent first (default: all)"`
}

func (h *Handler) GetCachedRunsTool() func(context.Context, *mcp.CallToolRequest, CachedRunsInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_cached_runs"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in CachedRunsInput) (*mcp.CallToolResult, any, error) {
		details, err := h.service.CachedRuns(ctx, in.Limit)
		if err != nil {
			return h.errorResult(tool, "Error loading cached runs: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"runs": details, "count": len(details)}), nil, nil
	}
}

type RecentActivitiesInput struct {
	Days  int `json:"days,omitempty" jsonschema:"Number of days to look back (default: 7)"`
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of activities to return (default: 10)"`
}

func (h *Handler) GetRecentActivitiesTool() func(context.Context, *mcp.CallToolRequest, RecentActivitiesInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_recent_activities"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in RecentActivitiesInput) (*mcp.CallToolResult, any, error) {
		activities, err := h.service.RecentActivities(ctx, in.Days, in.Limit)
		if err != nil {
			return h.errorResult(tool, "Error fetching activities: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"data": activities}), nil, nil
	}
}

type ActivitiesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of activities to return (default: 10)"`
}

func (h *Handler) GetActivitiesTool() func(context.Context, *mcp.CallToolRequest, ActivitiesInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_activities"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ActivitiesInput) (*mcp.CallToolResult, any, error) {
		activities, err := h.service.Activities(ctx, in.Limit)
		if err != nil {
			return h.errorResult(tool, "Error fetching activities: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"data": activities}), nil, nil
	}
}

type DateRangeInput struct {
	StartDate string `json:"start_date" jsonschema:"Start date in ISO format (YYYY-MM-DD)"`
	EndDate   string `json:"end_date" jsonschema:"End date in ISO format (YYYY-MM-DD), inclusive"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of activities to return (default: 30)"`
}

func (h *Handler) GetActivitiesByDateRangeTool() func(context.Context, *mcp.CallToolRequest, DateRangeInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_activities_by_date_range"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in DateRangeInput) (*mcp.CallToolResult, any, error) {
		activities, err := h.service.ActivitiesBetween(ctx, in.StartDate, in.EndDate, in.Limit)
		if err != nil {
			return h.errorResult(tool, "Error fetching activities: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"data": activities}), nil, nil
	}
}

type ActivityIDInput struct {
	ActivityID int64 `json:"activity_id" jsonschema:"ID of the Strava activity"`
}

func (h *Handler) GetActivityByIDTool() func(context.Context, *mcp.CallToolRequest, ActivityIDInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_activity_by_id"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ActivityIDInput) (*mcp.CallToolResult, any, error) {
		activity, err := h.service.RemoteActivity(ctx, in.ActivityID)
		if err != nil {
			if errors.Is(err, runs.ErrActivityNotFound) {
				return h.errorResult(tool, fmt.Sprintf("Activity not found: %d", in.ActivityID)), nil, nil
			}
			return h.errorResult(tool, "Error fetching activity: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"data": activity}), nil, nil
	}
}

type ActivityStreamsInput struct {
	ActivityID  int64  `json:"activity_id" jsonschema:"ID of the Strava activity"`
	StreamTypes string `json:"stream_types,omitempty" jsonschema:"Comma-separated stream types: heartrate, pace, altitude, cadence, distance, moving, temperature, time, watts (default: heartrate,pace)"`
}

func (h *Handler) GetActivityStreamsTool() func(context.Context, *mcp.CallToolRequest, ActivityStreamsInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_activity_streams"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ActivityStreamsInput) (*mcp.CallToolResult, any, error) {
		var streamTypes []string
		if in.StreamTypes != "" {
			streamTypes = strings.Split(in.StreamTypes, ",")
		}
		streams, err := h.service.ActivityStreams(ctx, in.ActivityID, streamTypes)
		if err != nil {
			return h.errorResult(tool, "Error fetching streams: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"data": streams}), nil, nil
	}
}

type SavePlanInput struct {
	PlanJSON string `json:"plan_json" jsonschema:"JSON string containing the training plan"`
	PlanID   string `json:"plan_id,omitempty" jsonschema:"Optional plan ID. Generated when empty."`
}

func (h *Handler) SaveTrainingPlanTool() func(context.Context, *mcp.CallToolRequest, SavePlanInput) (*mcp.CallToolResult, any, error) {
	const tool = "save_training_plan"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SavePlanInput) (*mcp.CallToolResult, any, error) {
		plan := &plans.Plan{}
		if err := json.Unmarshal([]byte(in.PlanJSON), plan); err != nil {
			return h.errorResult(tool, "Invalid JSON: "+err.Error()), nil, nil
		}
		planID, err := h.service.SavePlan(ctx, plan, in.PlanID)
		if err != nil {
			return h.errorResult(tool, "Error: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{
			"plan_id":   planID,
			"saved":     true,
			"plan_name": plan.Summary().PlanName,
		}), nil, nil
	}
}

func (h *Handler) ListTrainingPlansTool() func(context.Context, *mcp.CallToolRequest, any) (*mcp.CallToolResult, any, error) {
	const tool = "list_training_plans"
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
		summaries, err := h.service.ListPlans(ctx)
		if err != nil {
			return h.errorResult(tool, "Error: "+err.Error()), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"plans": summaries, "count": len(summaries)}), nil, nil
	}
}

type PlanIDInput struct {
	PlanID string `json:"plan_id" jsonschema:"The training plan ID"`
}

func (h *Handler) GetTrainingPlanTool() func(context.Context, *mcp.CallToolRequest, PlanIDInput) (*mcp.CallToolResult, any, error) {
	const tool = "get_training_plan"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PlanIDInput) (*mcp.CallToolResult, any, error) {
		plan, err := h.service.GetPlan(ctx, in.PlanID)
		if err != nil {
			return h.errorResult(tool, planErrorText(in.PlanID, err)), nil, nil
		}
		return h.jsonResult(tool, plan), nil, nil
	}
}

type UpdatePlanInput struct {
	PlanID      string `json:"plan_id" jsonschema:"The plan ID to update"`
	UpdatesJSON string `json:"updates_json" jsonschema:"JSON object with the fields to change. Nested objects are merged, arrays are replaced."`
}

func (h *Handler) UpdateTrainingPlanTool() func(context.Context, *mcp.CallToolRequest, UpdatePlanInput) (*mcp.CallToolResult, any, error) {
	const tool = "update_training_plan"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in UpdatePlanInput) (*mcp.CallToolResult, any, error) {
		var partial map[string]any
		if err := json.Unmarshal([]byte(in.UpdatesJSON), &partial); err != nil {
			return h.errorResult(tool, "Invalid JSON: "+err.Error()), nil, nil
		}
		if partial == nil {
			return h.errorResult(tool, "Invalid JSON: updates must be an object"), nil, nil
		}
		plan, err := h.service.UpdatePlan(ctx, in.PlanID, partial)
		if err != nil {
			return h.errorResult(tool, planErrorText(in.PlanID, err)), nil, nil
		}
		return h.jsonResult(tool, map[string]any{
			"plan_id": in.PlanID,
			"updated": true,
			"plan":    plan,
		}), nil, nil
	}
}

func (h *Handler) DeleteTrainingPlanTool() func(context.Context, *mcp.CallToolRequest, PlanIDInput) (*mcp.CallToolResult, any, error) {
	const tool = "delete_training_plan"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PlanIDInput) (*mcp.CallToolResult, any, error) {
		if err := h.service.DeletePlan(ctx, in.PlanID); err != nil {
			return h.errorResult(tool, planErrorText(in.PlanID, err)), nil, nil
		}
		return h.jsonResult(tool, map[string]any{"plan_id": in.PlanID, "deleted": true}), nil, nil
	}
}

type AdherenceInput struct {
	PlanID string `json:"plan_id,omitempty" jsonschema:"The plan ID to analyze (default: the active plan)"`
}

func (h *Handler) AnalyzePlanAdherenceTool() func(context.Context, *mcp.CallToolRequest, AdherenceInput) (*mcp.CallToolResult, any, error) {
	const tool = "analyze_plan_adherence"
	return func(ctx context.Context, _ *mcp.CallToolRequest, in AdherenceInput) (*mcp.CallToolResult, any, error) {
		result, err := h.service.Adherence(ctx, in.PlanID)
		if err != nil {
			if in.PlanID == "" && errors.Is(err, plans.ErrPlanNotFound) {
				return h.errorResult(tool, "No active training plan found"), nil, nil
			}
			return h.errorResult(tool, planErrorText(in.PlanID, err)), nil, nil
		}
		return h.jsonResult(tool, result.Latest()), nil, nil
	}
}
