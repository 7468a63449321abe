package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/tasks/v1"

	"github.com/veslink/calendar-mcp/pkg/gcal"
)

func taskListFromArgs(args map[string]interface{}) string {
	if id, ok := args["taskList"].(string); ok && id != "" {
		return id
	}
	return "@default"
}

// RegisterTaskTools registers the Google Tasks tools.
func RegisterTaskTools(s *mcpserver.MCPServer, registry *gcal.Registry) {
	listTaskListsTool := mcp.NewTool("tasks_list_tasklists",
		mcp.WithDescription("List the account's task lists"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
	)

	s.AddTool(listTaskListsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		svc, err := registry.Tasks(ctx, accountFromArgs(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		lists, err := svc.Tasklists.List().Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list task lists: %v", err)), nil
		}
		return jsonResult(lists.Items)
	})

	listTasksTool := mcp.NewTool("tasks_list_tasks",
		mcp.WithDescription("List tasks in a task list"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("taskList",
			mcp.Description("Task list ID (default: '@default')"),
		),
		mcp.WithBoolean("showCompleted",
			mcp.Description("Include completed tasks"),
		),
	)

	s.AddTool(listTasksTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		svc, err := registry.Tasks(ctx, accountFromArgs(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		showCompleted, _ := args["showCompleted"].(bool)
		list, err := svc.Tasks.List(taskListFromArgs(args)).ShowCompleted(showCompleted).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
		}
		return jsonResult(list.Items)
	})

	createTaskTool := mcp.NewTool("tasks_create_task",
		mcp.WithDescription("Create a task"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("taskList",
			mcp.Description("Task list ID (default: '@default')"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title"),
		),
		mcp.WithString("notes",
			mcp.Description("Task notes"),
		),
		mcp.WithString("due",
			mcp.Description("Due date (RFC3339, e.g. '2026-09-01T00:00:00Z')"),
		),
	)

	s.AddTool(createTaskTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		svc, err := registry.Tasks(ctx, accountFromArgs(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		task := &tasks.Task{
			Title: stringArg(args, "title"),
			Notes: stringArg(args, "notes"),
			Due:   stringArg(args, "due"),
		}
		created, err := svc.Tasks.Insert(taskListFromArgs(args), task).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
		}
		return jsonResult(created)
	})

	completeTaskTool := mcp.NewTool("tasks_complete_task",
		mcp.WithDescription("Mark a task as completed"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("taskList",
			mcp.Description("Task list ID (default: '@default')"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("ID of the task to complete"),
		),
	)

	s.AddTool(completeTaskTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		svc, err := registry.Tasks(ctx, accountFromArgs(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		listID := taskListFromArgs(args)
		taskID := stringArg(args, "taskId")

		task, err := svc.Tasks.Get(listID, taskID).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
		}
		task.Status = "completed"
		updated, err := svc.Tasks.Update(listID, taskID, task).Context(ctx).Do()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to complete task: %v", err)), nil
		}
		return jsonResult(updated)
	})

	deleteTaskTool := mcp.NewTool("tasks_delete_task",
		mcp.WithDescription("Delete a task"),
		mcp.WithString("account",
			mcp.Description("Account email (default: the active account)"),
		),
		mcp.WithString("taskList",
			mcp.Description("Task list ID (default: '@default')"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("ID of the task to delete"),
		),
	)

	s.AddTool(deleteTaskTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		svc, err := registry.Tasks(ctx, accountFromArgs(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := svc.Tasks.Delete(taskListFromArgs(args), stringArg(args, "taskId")).Context(ctx).Do(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
		}
		return mcp.NewToolResultText("Task deleted"), nil
	})
}
