package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/weatherhub/weatherhub/internal/analysis"
	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/service"
)

// maxToolRows caps the rows a data tool returns in one call.
const maxToolRows = 2000

func metricParam() mcp.ToolOption {
	return mcp.WithString("metric",
		mcp.Required(),
		mcp.Enum(model.MetricTempMin, model.MetricTempMax),
		mcp.Description("Temperature metric to analyse"),
	)
}

func cityParam(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{
		mcp.Description("City name in Chinese (北京) or pinyin (beijing)"),
	}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("city", opts...)
}

func dateParam(name string, required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{
		mcp.Description("Date in YYYY-MM-DD format, inclusive"),
	}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString(name, opts...)
}

// serverTools returns every tool paired with its handler. Tool definitions do
// not touch s, so the catalogue can be built from a zero MCPServer.
func (s *MCPServer) serverTools() []server.ServerTool {
	return []server.ServerTool{

		// ----- Data tools -----

		{
			Tool: mcp.NewTool("data_get_range",
				mcp.WithDescription(
					"Fetch stored daily weather records, newest first. All filters are "+
						"optional; without a limit up to 500 rows are returned.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				cityParam(false),
				dateParam("start_date", false),
				dateParam("end_date", false),
				mcp.WithNumber("limit",
					mcp.Description("Maximum rows to return (1-2000, default 500)"),
				),
			),
			Handler: s.handleGetRange,
		},
		{
			Tool: mcp.NewTool("data_get_dataset_overview",
				mcp.WithDescription(
					"Summarise the stored data set: total records, cities and the "+
						"earliest and latest dates. Use this first to see what is available.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
			),
			Handler: s.handleOverview,
		},
		{
			Tool: mcp.NewTool("data_check_coverage",
				mcp.WithDescription(
					"List the days between start_date and end_date for which a city has "+
						"no stored record.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				cityParam(true),
				dateParam("start_date", true),
				dateParam("end_date", true),
			),
			Handler: s.handleCoverage,
		},
		{
			Tool: mcp.NewTool("data_custom_query",
				mcp.WithDescription(
					"Return selected columns of stored records, oldest first. Allowed "+
						"fields: city, date, weather_condition, temp_min, temp_max, wind_info. "+
						"Unknown fields are ignored; with none left every field is returned.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				mcp.WithArray("fields",
					mcp.Description("Columns to return"),
					mcp.WithStringItems(),
				),
				cityParam(false),
				dateParam("start_date", false),
				dateParam("end_date", false),
				mcp.WithNumber("limit",
					mcp.Description("Maximum rows to return (1-2000, default 200)"),
				),
			),
			Handler: s.handleCustomQuery,
		},
		{
			Tool: mcp.NewTool("data_update_city_range",
				mcp.WithDescription(
					"Crawl the history site for a city over a date range and replace the "+
						"stored records for that span. Existing data is kept when the crawl "+
						"returns nothing.",
				),
				mcp.WithToolAnnotation(mutatingAnnotation()),
				cityParam(true),
				dateParam("start_date", true),
				dateParam("end_date", true),
			),
			Handler: s.handleUpdateCityRange,
		},

		// ----- Analysis tools -----

		{
			Tool: mcp.NewTool("analysis_describe_timeseries",
				mcp.WithDescription(
					"Descriptive statistics (count, min, max, mean, sample standard "+
						"deviation) of a temperature metric for one city.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				cityParam(true),
				metricParam(),
				dateParam("start_date", true),
				dateParam("end_date", true),
			),
			Handler: s.handleDescribe,
		},
		{
			Tool: mcp.NewTool("analysis_group_by_period",
				mcp.WithDescription(
					"Aggregate a temperature metric for one city by month, season "+
						"(YYYY-Qn) or year.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				cityParam(true),
				metricParam(),
				mcp.WithString("period",
					mcp.Required(),
					mcp.Enum(analysis.PeriodMonth, analysis.PeriodSeason, analysis.PeriodYear),
					mcp.Description("Aggregation period"),
				),
				dateParam("start_date", true),
				dateParam("end_date", true),
			),
			Handler: s.handleGroupByPeriod,
		},
		{
			Tool: mcp.NewTool("analysis_compare_cities",
				mcp.WithDescription(
					"Compare a temperature metric across cities over the same date range.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				mcp.WithArray("cities",
					mcp.Required(),
					mcp.Description("Cities to compare"),
					mcp.WithStringItems(),
				),
				metricParam(),
				dateParam("start_date", true),
				dateParam("end_date", true),
			),
			Handler: s.handleCompareCities,
		},
		{
			Tool: mcp.NewTool("analysis_extreme_event_stats",
				mcp.WithDescription(
					"Count the days on which a temperature metric compares to a threshold, "+
						"e.g. days with temp_max > 35. Comparisons: >, <, >=, <= and the "+
						"aliases gt, lt, gte, lte.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				cityParam(true),
				metricParam(),
				mcp.WithString("comparison",
					mcp.Required(),
					mcp.Description("Comparison operator"),
				),
				mcp.WithNumber("threshold",
					mcp.Required(),
					mcp.Description("Threshold in degrees Celsius"),
				),
				dateParam("start_date", true),
				dateParam("end_date", true),
			),
			Handler: s.handleExtremeEvents,
		},
		{
			Tool: mcp.NewTool("analysis_build_chart_series",
				mcp.WithDescription(
					"Build ECharts-ready series. Either pass cities + metric + dates to "+
						"chart stored data, or pass series as [{name, points: [{x, y}]}] to "+
						"align arbitrary data on a shared x axis.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				mcp.WithString("chart_type",
					mcp.Enum(analysis.ChartLine, analysis.ChartBar, analysis.ChartStack),
					mcp.Description("Chart type (default line)"),
				),
				mcp.WithArray("cities",
					mcp.Description("Cities to chart from stored data"),
					mcp.WithStringItems(),
				),
				mcp.WithString("metric",
					mcp.Enum(model.MetricTempMin, model.MetricTempMax),
					mcp.Description("Temperature metric, required with cities"),
				),
				dateParam("start_date", false),
				dateParam("end_date", false),
				mcp.WithArray("series",
					mcp.Description("Explicit series to align instead of stored data"),
				),
			),
			Handler: s.handleBuildChart,
		},
		{
			Tool: mcp.NewTool("analysis_simple_forecast",
				mcp.WithDescription(
					"Extrapolate a linear trend fitted to the latest 120 days of a metric. "+
						"This is a naive projection, not a weather model.",
				),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				cityParam(true),
				metricParam(),
				mcp.WithNumber("horizon",
					mcp.Description("Days to forecast (1-30, default 7)"),
				),
			),
			Handler: s.handleForecast,
		},
	}
}

// Tool handlers. Every failure is returned via toolError.

func (s *MCPServer) handleGetRange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end := dateArgs(request)
	res, err := s.weather.GetRange(ctx, optionalString(request, "city"), start, end,
		rowLimit(request, service.DefaultRangeLimit))
	if err != nil {
		return toolError("Failed to load records: %v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleOverview(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.weather.Overview(ctx)
	if err != nil {
		return toolError("Failed to load overview: %v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleCoverage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	city, err := requireString(request, "city")
	if err != nil {
		return toolError("%v", err)
	}
	start, end := dateArgs(request)
	res, err := s.weather.Coverage(ctx, city, start, end)
	if err != nil {
		return toolError("Coverage check failed: %v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleCustomQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end := dateArgs(request)
	res, err := s.weather.CustomQuery(ctx, optionalStringSlice(request, "fields"),
		optionalString(request, "city"), start, end,
		rowLimit(request, service.DefaultCustomLimit))
	if err != nil {
		return toolError("Query failed: %v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleUpdateCityRange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	city, err := requireString(request, "city")
	if err != nil {
		return toolError("%v", err)
	}
	start, end := dateArgs(request)
	res, err := s.weather.UpdateCityRange(ctx, city, start, end)
	if err != nil {
		return toolError("Update failed: %v", err)
	}
	s.logger.Info("mcp: city range updated", "city", res.City, "saved", res.Saved)
	return successJSON(res)
}

func (s *MCPServer) handleDescribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end := dateArgs(request)
	res, err := s.weather.Describe(ctx, optionalString(request, "city"), optionalString(request, "metric"), start, end)
	if err != nil {
		return toolError("%v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleGroupByPeriod(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end := dateArgs(request)
	res, err := s.weather.GroupByPeriod(ctx,
		optionalString(request, "city"),
		optionalString(request, "metric"),
		optionalString(request, "period"),
		start, end)
	if err != nil {
		return toolError("%v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleCompareCities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end := dateArgs(request)
	res, err := s.weather.CompareCities(ctx, optionalStringSlice(request, "cities"), optionalString(request, "metric"), start, end)
	if err != nil {
		return toolError("%v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleExtremeEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threshold, err := request.RequireFloat("threshold")
	if err != nil {
		return toolError("missing required parameter %q", "threshold")
	}
	start, end := dateArgs(request)
	res, err := s.weather.ExtremeEvents(ctx,
		optionalString(request, "city"),
		optionalString(request, "metric"),
		optionalString(request, "comparison"),
		threshold, start, end)
	if err != nil {
		return toolError("%v", err)
	}
	return successJSON(res)
}

func (s *MCPServer) handleBuildChart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chartType := optionalString(request, "chart_type")

	series, err := getSeriesArg(request, "series")
	if err != nil {
		return toolError("%v", err)
	}
	if len(series) > 0 {
		chart, err := service.BuildChart(chartType, series)
		if err != nil {
			return toolError("%v", err)
		}
		return successJSON(chart)
	}

	start, end := dateArgs(request)
	chart, err := s.weather.CityChart(ctx, chartType, optionalStringSlice(request, "cities"),
		optionalString(request, "metric"), start, end)
	if err != nil {
		return toolError("%v", err)
	}
	return successJSON(chart)
}

func (s *MCPServer) handleForecast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.weather.Forecast(ctx,
		optionalString(request, "city"),
		optionalString(request, "metric"),
		request.GetInt("horizon", analysis.DefaultHorizon),
	)
	if err != nil {
		return toolError("%v", err)
	}
	return successJSON(res)
}
