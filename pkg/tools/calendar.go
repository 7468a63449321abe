// Package tools registers the MCP tools exposed behind bearer-token
// verification. Each tool resolves the target account, builds an
// authenticated Google service through the calendar registry, and returns
// results as JSON text.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/calendar/v3"

	"github.com/veslink/calendar-mcp/pkg/accounts"
	"github.com/veslink/calendar-mcp/pkg/gcal"
)

func accountFromArgs(args map[string]interface{}) string {
	if account, ok := args["account"].(string); ok && account != "" {
		return account
	}
	return accounts.DefaultAccount
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// RegisterCalendarTools registers the Google Calendar tools.
func RegisterCalendarTools(s *mcpserver.MCPServer, registry *gcal.Registry) {
	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List the calendars visible to the account"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
	)

	s.AddTool(listCalendarsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		entries, err := registry.Calendars(ctx, accountFromArgs(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		summary := make([]map[string]string, 0, len(entries))
		for _, e := range entries {
			summary = append(summary, map[string]string{
				"id":       e.Id,
				"summary":  e.Summary,
				"timeZone": e.TimeZone,
			})
		}
		return jsonResult(summary)
	})

	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List calendar events within a time range"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: 'primary')"),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start of the range (RFC3339, e.g. '2026-01-01T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End of the range (RFC3339)"),
		),
		mcp.WithString("query",
			mcp.Description("Free-text filter applied by Google"),
		),
	)

	s.AddTool(listEventsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account := accountFromArgs(args)

		calendarID, err := registry.Resolve(ctx, account, stringArg(args, "calendar"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		svc, err := registry.Service(ctx, account)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		call := svc.Events.List(calendarID).
			TimeMin(stringArg(args, "timeMin")).
			TimeMax(stringArg(args, "timeMax")).
			SingleEvents(true).
			OrderBy("startTime")
		if q := stringArg(args, "query"); q != "" {
			call = call.Q(q)
		}
		events, err := call.Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
		}
		return jsonResult(events.Items)
	})

	getEventTool := mcp.NewTool("calendar_get_event",
		mcp.WithDescription("Get a single calendar event"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: 'primary')"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("ID of the event to fetch"),
		),
	)

	s.AddTool(getEventTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account := accountFromArgs(args)

		calendarID, err := registry.Resolve(ctx, account, stringArg(args, "calendar"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		svc, err := registry.Service(ctx, account)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		event, err := svc.Events.Get(calendarID, stringArg(args, "eventId")).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get event: %v", err)), nil
		}
		return jsonResult(event)
	})

	createEventTool := mcp.NewTool("calendar_create_event",
		mcp.WithDescription("Create a calendar event"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: 'primary')"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time (RFC3339)"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End time (RFC3339)"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone (e.g. 'Europe/Berlin'). Defaults to UTC."),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated attendee email addresses"),
		),
	)

	s.AddTool(createEventTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account := accountFromArgs(args)

		calendarID, err := registry.Resolve(ctx, account, stringArg(args, "calendar"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		svc, err := registry.Service(ctx, account)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		timeZone := stringArg(args, "timeZone")
		if timeZone == "" {
			timeZone = "UTC"
		}
		event := &calendar.Event{
			Summary:     stringArg(args, "summary"),
			Description: stringArg(args, "description"),
			Location:    stringArg(args, "location"),
			Start:       &calendar.EventDateTime{DateTime: stringArg(args, "start"), TimeZone: timeZone},
			End:         &calendar.EventDateTime{DateTime: stringArg(args, "end"), TimeZone: timeZone},
		}
		if attendees := stringArg(args, "attendees"); attendees != "" {
			for _, email := range strings.Split(attendees, ",") {
				event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: strings.TrimSpace(email)})
			}
		}

		created, err := svc.Events.Insert(calendarID, event).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create event: %v", err)), nil
		}
		return jsonResult(created)
	})

	updateEventTool := mcp.NewTool("calendar_update_event",
		mcp.WithDescription("Update fields of an existing calendar event"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: 'primary')"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("ID of the event to update"),
		),
		mcp.WithString("summary",
			mcp.Description("New event title"),
		),
		mcp.WithString("description",
			mcp.Description("New event description"),
		),
		mcp.WithString("location",
			mcp.Description("New event location"),
		),
		mcp.WithString("start",
			mcp.Description("New start time (RFC3339)"),
		),
		mcp.WithString("end",
			mcp.Description("New end time (RFC3339)"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone for start/end"),
		),
	)

	s.AddTool(updateEventTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account := accountFromArgs(args)

		calendarID, err := registry.Resolve(ctx, account, stringArg(args, "calendar"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		svc, err := registry.Service(ctx, account)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		eventID := stringArg(args, "eventId")
		event, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get event: %v", err)), nil
		}

		if summary := stringArg(args, "summary"); summary != "" {
			event.Summary = summary
		}
		if description := stringArg(args, "description"); description != "" {
			event.Description = description
		}
		if location := stringArg(args, "location"); location != "" {
			event.Location = location
		}
		timeZone := stringArg(args, "timeZone")
		if start := stringArg(args, "start"); start != "" {
			event.Start = &calendar.EventDateTime{DateTime: start, TimeZone: timeZone}
		}
		if end := stringArg(args, "end"); end != "" {
			event.End = &calendar.EventDateTime{DateTime: end, TimeZone: timeZone}
		}

		updated, err := svc.Events.Update(calendarID, eventID, event).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to update event: %v", err)), nil
		}
		return jsonResult(updated)
	})

	deleteEventTool := mcp.NewTool("calendar_delete_event",
		mcp.WithDescription("Delete a calendar event"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: 'primary')"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("ID of the event to delete"),
		),
	)

	s.AddTool(deleteEventTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account := accountFromArgs(args)

		calendarID, err := registry.Resolve(ctx, account, stringArg(args, "calendar"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		svc, err := registry.Service(ctx, account)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := svc.Events.Delete(calendarID, stringArg(args, "eventId")).Context(ctx).Do(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to delete event: %v", err)), nil
		}
		return mcp.NewToolResultText("Event deleted"), nil
	})
}
