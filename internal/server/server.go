package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

// Config for the HTTP API handler.
type Config struct {
	Engine          engine.Engine
	BasePath        string
	Auth            AuthConfig
	DefaultPageSize int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task 7f2c not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taskdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = engine.DefaultPageSize
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Taskdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTaskQueries(group, cfg)
	registerTasks(group, cfg)
	registerDirectory(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var nf engine.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": nf.Kind, "id": nf.ID})
	}
	var ia engine.InvalidArgumentError
	if errors.As(err, &ia) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// page is zero-based; size 0 means the configured default.
type pageQuery struct {
	Page int `query:"page" minimum:"0" required:"false"`
	Size int `query:"size" minimum:"0" maximum:"100" required:"false"`
}

func (cfg Config) pageRequest(q pageQuery) domain.PageRequest {
	size := q.Size
	if size < 1 {
		size = cfg.DefaultPageSize
	}
	return domain.PageRequest{Page: q.Page, Size: size}
}

type taskBody struct {
	Body TaskResponse `json:"body"`
}

type taskPageBody struct {
	Body TaskPageResponse `json:"body"`
}

type taskListBody struct {
	Body []TaskResponse `json:"body"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// registerTaskQueries adds the fixed-path listings. These are registered
// before the /tasks/{task_id} routes so chi resolves the static segments
// first.
func registerTaskQueries(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID: "list-overdue-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/overdue",
		Summary:     "List overdue tasks",
	}, func(ctx context.Context, input *struct{ pageQuery }) (*taskPageBody, error) {
		page, err := e.OverdueTasks(ctx, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-due-today",
		Method:      http.MethodGet,
		Path:        "/tasks/due-today",
		Summary:     "List tasks due today",
	}, func(ctx context.Context, input *struct{ pageQuery }) (*taskPageBody, error) {
		page, err := e.TasksDueToday(ctx, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-upcoming-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/upcoming",
		Summary:     "List tasks due within a date range",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		pageQuery
		Start string `query:"start" format:"date-time"`
		End   string `query:"end" format:"date-time"`
	}) (*taskPageBody, error) {
		start, err := time.Parse(time.RFC3339, input.Start)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "start must be an RFC3339 timestamp", nil)
		}
		end, err := time.Parse(time.RFC3339, input.End)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "end must be an RFC3339 timestamp", nil)
		}
		page, err := e.UpcomingTasks(ctx, start, end, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-unassigned-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/unassigned",
		Summary:     "List tasks with no assignee",
	}, func(ctx context.Context, input *struct{ pageQuery }) (*taskPageBody, error) {
		page, err := e.UnassignedTasks(ctx, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/search",
		Summary:     "Search tasks by title or description",
	}, func(ctx context.Context, input *struct {
		pageQuery
		Q string `query:"q"`
	}) (*taskPageBody, error) {
		page, err := e.SearchTasks(ctx, input.Q, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-by-assignee",
		Method:      http.MethodGet,
		Path:        "/tasks/assigned/{user_id}",
		Summary:     "List tasks assigned to a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		pageQuery
		UserID string `path:"user_id"`
	}) (*taskPageBody, error) {
		page, err := e.TasksByAssignee(ctx, input.UserID, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-by-team",
		Method:      http.MethodGet,
		Path:        "/tasks/team/{team_id}",
		Summary:     "List tasks assigned to a team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		pageQuery
		TeamID string `path:"team_id"`
	}) (*taskPageBody, error) {
		page, err := e.TasksByTeam(ctx, input.TeamID, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-by-status",
		Method:      http.MethodGet,
		Path:        "/tasks/status/{status}",
		Summary:     "List tasks in a status",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		pageQuery
		Status string `path:"status" enum:"not_started,in_progress,completed,deferred,blocked"`
	}) (*taskPageBody, error) {
		page, err := e.TasksByStatus(ctx, domain.TaskStatus(input.Status), cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-by-module",
		Method:      http.MethodGet,
		Path:        "/tasks/module/{module}",
		Summary:     "List tasks belonging to a module",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		pageQuery
		Module string `path:"module" enum:"crm,accounting,hr,operations,global"`
	}) (*taskPageBody, error) {
		page, err := e.TasksByModule(ctx, domain.TaskModule(input.Module), cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-by-related-object",
		Method:      http.MethodGet,
		Path:        "/tasks/related/{object_type}/{object_id}",
		Summary:     "List tasks linked to a CRM object",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ObjectType string `path:"object_type"`
		ObjectID   int64  `path:"object_id"`
	}) (*taskListBody, error) {
		items, err := e.TasksByRelatedObject(ctx, input.ObjectType, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListBody{Body: mapTasks(items)}, nil
	})
}

func registerTasks(api huma.API, cfg Config) {
	e := cfg.Engine
	type TaskPath struct {
		TaskID string `path:"task_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, createOptions(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct{ pageQuery }) (*taskPageBody, error) {
		page, err := e.ListTasks(ctx, cfg.pageRequest(input.pageQuery))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskPageBody{Body: taskPageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *TaskPath) (*taskBody, error) {
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}",
		Summary:     "Replace task fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := e.UpdateTask(ctx, input.TaskID, updateParams(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task and its subtasks",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *TaskPath) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Set task status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body UpdateStatusRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := e.UpdateTaskStatus(ctx, input.TaskID, domain.TaskStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-completion",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/completion",
		Summary:     "Set task completion percentage",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body UpdateCompletionRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := e.UpdateTaskCompletion(ctx, input.TaskID, input.Body.CompletionPercentage)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task-to-user",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/assignee/{user_id}",
		Summary:     "Assign task to a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskPath
		UserID string `path:"user_id"`
	}) (*taskBody, error) {
		t, err := e.AssignTaskToUser(ctx, input.TaskID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task-to-team",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/team/{team_id}",
		Summary:     "Assign task to a team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskPath
		TeamID string `path:"team_id"`
	}) (*taskBody, error) {
		t, err := e.AssignTaskToTeam(ctx, input.TaskID, input.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-related-object",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/related-objects",
		Summary:       "Link a CRM object to a task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body RelatedObjectRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := e.AddRelatedObjectToTask(ctx, input.TaskID, input.Body.ObjectType, input.Body.ObjectID, deref(input.Body.RelationshipType))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-related-object",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}/related-objects/{related_object_id}",
		Summary:     "Unlink a CRM object from a task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskPath
		RelatedObjectID string `path:"related_object_id"`
	}) (*taskBody, error) {
		t, err := e.RemoveRelatedObjectFromTask(ctx, input.TaskID, input.RelatedObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/subtasks",
		Summary:     "List direct subtasks",
	}, func(ctx context.Context, input *TaskPath) (*taskListBody, error) {
		items, err := e.Subtasks(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListBody{Body: mapTasks(items)}, nil
	})
}

func registerDirectory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		u, err := e.CreateUser(ctx, input.Body.Name, deref(input.Body.Email))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		items, err := e.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]UserResponse, 0, len(items))
		for _, u := range items {
			out = append(out, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Register team",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest `json:"body"`
	}) (*struct {
		Body TeamResponse `json:"body"`
	}, error) {
		tm, err := e.CreateTeam(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TeamResponse `json:"body"`
		}{Body: teamResponse(tm)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List teams",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TeamResponse `json:"body"`
	}, error) {
		items, err := e.ListTeams(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]TeamResponse, 0, len(items))
		for _, tm := range items {
			out = append(out, teamResponse(tm))
		}
		return &struct {
			Body []TeamResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		Limit    int    `query:"limit" minimum:"1" maximum:"500" required:"false"`
		EntityID string `query:"entity_id" required:"false"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.TailEvents(ctx, input.Limit, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			spec, _ = json.Marshal(api.OpenAPI())
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Taskdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}
