package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"teamboard/internal/domain"
	"teamboard/internal/engine"
	"teamboard/internal/engine/authz"
	"teamboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *logrus.Logger
}

type bodyBytesKey struct{}

// apiError is the single error envelope every failure uses.
type apiError struct {
	status  int
	Message string `json:"message" example:"access denied: manage project p1"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func (e *apiError) ContentType(string) string { return "application/json" }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Message: message}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}

// handleError maps engine errors onto the wire. Order matters: a
// missing entity reads as 404 even when the caller also lacks access,
// because the engine checks existence first. Anything untyped is a
// storage or infrastructure failure; the cause goes to the log, never
// to the client.
func handleError(log *logrus.Logger, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var denied authz.AccessDeniedError
	if errors.As(err, &denied) {
		return newAPIError(http.StatusForbidden, err.Error())
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not found")
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, ve.Msg)
	}
	if errors.Is(err, engine.ErrBadCredentials) {
		return newAPIError(http.StatusBadRequest, err.Error())
	}
	log.WithError(err).Error("request failed")
	return newAPIError(http.StatusInternalServerError, "internal error")
}

// New returns the HTTP handler exposing the Teamboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		if len(errs) > 0 {
			msg = msg + ": " + errs[0].Error()
		}
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	// Capture the raw body so update handlers can tell "field absent"
	// from "field set to zero value".
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(raw))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Teamboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerUsers(group, cfg.Engine, cfg.Auth, logger)
	registerProjects(group, cfg.Engine, logger)
	registerLists(group, cfg.Engine, logger)
	registerTemplates(group, cfg.Engine, logger)
	registerTasks(group, cfg.Engine, logger)
	registerSubTasks(group, cfg.Engine, logger)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	raw, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return raw
}

// rawBodyMap returns the JSON keys the request actually carried.
func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	m := map[string]json.RawMessage{}
	json.Unmarshal(bodyBytes(ctx), &m)
	return m
}

func fieldSet(ctx context.Context) map[string]bool {
	fields := map[string]bool{}
	for k := range rawBodyMap(ctx) {
		fields[k] = true
	}
	return fields
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}, error) {
		resp := &struct {
			Body struct {
				Status string `json:"status" example:"ok"`
			}
		}{}
		resp.Body.Status = "ok"
		return resp, nil
	})
}

func registerUsers(api huma.API, e engine.Engine, auth AuthConfig, log *logrus.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-user",
		Method:        http.MethodPost,
		Path:          "/users/register",
		Summary:       "Register account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest
	}) (*struct {
		Body RegisterResponse
	}, error) {
		u, err := e.Register(ctx, engine.RegisterOptions{
			Username: input.Body.Username,
			Email:    input.Body.Email,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body RegisterResponse
		}{Body: RegisterResponse{User: u.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/users/login",
		Summary:     "Log in",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest
	}) (*struct {
		Body LoginResponse
	}, error) {
		u, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(log, err)
		}
		token, err := MintToken(auth, u)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body LoginResponse
		}{Body: LoginResponse{Token: token, User: e.Identity(u)}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine, log *logrus.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest
	}) (*struct {
		Body domain.Project
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		p, err := e.CreateProject(ctx, caller, engine.ProjectCreateOptions{
			Name:           input.Body.Name,
			Description:    input.Body.Description,
			StartDate:      input.Body.StartDate,
			EndDate:        input.Body.EndDate,
			AllocatedHours: input.Body.AllocatedHours,
			TeamMembers:    teamMembers(input.Body.TeamMembers),
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.Project
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List visible projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListProjects(ctx, caller)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.Project
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects-for-user",
		Method:      http.MethodGet,
		Path:        "/projects/user/{userID}",
		Summary:     "List projects for a user",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"userID"`
	}) (*struct {
		Body []domain.Project
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListProjectsForUser(ctx, caller, input.UserID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.Project
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Project
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		p, err := e.GetProject(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.Project
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateProjectRequest
	}) (*struct {
		Body domain.Project
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "body required")
		}
		fields := fieldSet(ctx)
		var status *domain.CreationStatus
		if input.Body.CreationStatus != nil {
			s := domain.CreationStatus(*input.Body.CreationStatus)
			status = &s
		}
		p, err := e.UpdateProject(ctx, caller, input.ID, engine.ProjectUpdateOptions{
			Name:           input.Body.Name,
			Description:    input.Body.Description,
			StartDate:      input.Body.StartDate,
			EndDate:        input.Body.EndDate,
			AllocatedHours: input.Body.AllocatedHours,
			CreationStatus: status,
			TeamMembers:    teamMembers(input.Body.TeamMembers),
			SetTeamMembers: fields["team_members"],
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.Project
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete project and everything under it",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body struct {
			Deleted string `json:"deleted"`
		}
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if err := e.DeleteProject(ctx, caller, input.ID); err != nil {
			return nil, handleError(log, err)
		}
		resp := &struct {
			Body struct {
				Deleted string `json:"deleted"`
			}
		}{}
		resp.Body.Deleted = input.ID
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "apply-template",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/templates/{templateID}",
		Summary:       "Apply a task template to a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		TemplateID string `path:"templateID"`
	}) (*struct {
		Body domain.Project
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		p, err := e.ApplyTemplate(ctx, caller, input.ID, input.TemplateID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.Project
		}{Body: p}, nil
	})
}

func registerLists(api huma.API, e engine.Engine, log *logrus.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-list",
		Method:        http.MethodPost,
		Path:          "/lists",
		Summary:       "Create list",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateListRequest
	}) (*struct {
		Body domain.List
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		l, err := e.CreateList(ctx, caller, input.Body.ProjectID, input.Body.Name)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.List
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-lists",
		Method:      http.MethodGet,
		Path:        "/lists",
		Summary:     "List visible lists",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.List
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListLists(ctx, caller)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.List
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-lists-for-project",
		Method:      http.MethodGet,
		Path:        "/lists/project/{projectID}",
		Summary:     "List lists of a project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body []domain.List
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListListsForProject(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.List
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-list",
		Method:      http.MethodGet,
		Path:        "/lists/{id}",
		Summary:     "Get list",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.List
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		l, err := e.GetList(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.List
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-list",
		Method:      http.MethodPut,
		Path:        "/lists/{id}",
		Summary:     "Rename list",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateListRequest
	}) (*struct {
		Body domain.List
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		l, err := e.UpdateList(ctx, caller, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.List
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-list",
		Method:      http.MethodDelete,
		Path:        "/lists/{id}",
		Summary:     "Delete list and its tasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body struct {
			Deleted string `json:"deleted"`
		}
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if err := e.DeleteList(ctx, caller, input.ID); err != nil {
			return nil, handleError(log, err)
		}
		resp := &struct {
			Body struct {
				Deleted string `json:"deleted"`
			}
		}{}
		resp.Body.Deleted = input.ID
		return resp, nil
	})
}

func registerTasks(api huma.API, e engine.Engine, log *logrus.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest
	}) (*struct {
		Body domain.Task
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		t, err := e.CreateTask(ctx, caller, engine.TaskCreateOptions{
			ListID:         input.Body.ListID,
			Name:           input.Body.Name,
			Description:    input.Body.Description,
			HoursAllocated: input.Body.HoursAllocated,
			Assignments:    assignments(input.Body.AssignedMembers),
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.Task
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assigned-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List the caller's assigned tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListAssignedTasks(ctx, caller)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.Task
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-for-list",
		Method:      http.MethodGet,
		Path:        "/tasks/list/{listID}",
		Summary:     "List tasks of a list",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ListID string `path:"listID"`
	}) (*struct {
		Body []domain.Task
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListTasksForList(ctx, caller, input.ListID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.Task
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks-for-project",
		Method:      http.MethodGet,
		Path:        "/tasks/project/{projectID}",
		Summary:     "List tasks of a project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body []domain.Task
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListTasksForProject(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.Task
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		t, err := e.GetTask(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.Task
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateTaskRequest
	}) (*struct {
		Body domain.Task
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "body required")
		}
		fields := fieldSet(ctx)
		var status *domain.TaskStatus
		if input.Body.Status != nil {
			s := domain.TaskStatus(*input.Body.Status)
			status = &s
		}
		t, err := e.UpdateTask(ctx, caller, input.ID, engine.TaskUpdateOptions{
			Fields:         fields,
			Name:           input.Body.Name,
			Description:    input.Body.Description,
			HoursAllocated: input.Body.HoursAllocated,
			HoursUsed:      input.Body.HoursUsed,
			Status:         status,
			Assignments:    assignments(input.Body.AssignedMembers),
			SetAssignments: fields["assigned_members"],
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.Task
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task and its subtasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body struct {
			Deleted string `json:"deleted"`
		}
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if err := e.DeleteTask(ctx, caller, input.ID); err != nil {
			return nil, handleError(log, err)
		}
		resp := &struct {
			Body struct {
				Deleted string `json:"deleted"`
			}
		}{}
		resp.Body.Deleted = input.ID
		return resp, nil
	})
}

func registerSubTasks(api huma.API, e engine.Engine, log *logrus.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{taskID}/subtasks",
		Summary:       "Create subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"taskID"`
		Body   CreateSubTaskRequest
	}) (*struct {
		Body domain.SubTask
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		st, err := e.CreateSubTask(ctx, caller, input.TaskID, input.Body.Name)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.SubTask
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{taskID}/subtasks",
		Summary:     "List subtasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"taskID"`
	}) (*struct {
		Body []domain.SubTask
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListSubTasks(ctx, caller, input.TaskID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.SubTask
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-subtask",
		Method:      http.MethodPut,
		Path:        "/tasks/{taskID}/subtasks/{subtaskID}",
		Summary:     "Update subtask",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID    string `path:"taskID"`
		SubtaskID string `path:"subtaskID"`
		Body      UpdateSubTaskRequest
	}) (*struct {
		Body domain.SubTask
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "body required")
		}
		st, err := e.UpdateSubTask(ctx, caller, input.TaskID, input.SubtaskID, engine.SubTaskUpdateOptions{
			Name:      input.Body.Name,
			Completed: input.Body.Completed,
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.SubTask
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-subtask",
		Method:      http.MethodDelete,
		Path:        "/tasks/{taskID}/subtasks/{subtaskID}",
		Summary:     "Delete subtask",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID    string `path:"taskID"`
		SubtaskID string `path:"subtaskID"`
	}) (*struct {
		Body struct {
			Deleted string `json:"deleted"`
		}
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if err := e.DeleteSubTask(ctx, caller, input.TaskID, input.SubtaskID); err != nil {
			return nil, handleError(log, err)
		}
		resp := &struct {
			Body struct {
				Deleted string `json:"deleted"`
			}
		}{}
		resp.Body.Deleted = input.SubtaskID
		return resp, nil
	})
}

func registerTemplates(api huma.API, e engine.Engine, log *logrus.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/tasks/templates",
		Summary:       "Create task template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body TemplateRequest
	}) (*struct {
		Body domain.TaskTemplate
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		t, err := e.CreateTemplate(ctx, caller, input.Body.Name, input.Body.Lists)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.TaskTemplate
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/tasks/templates",
		Summary:     "List task templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TaskTemplate
	}, error) {
		if _, err := callerFromContext(ctx); err != nil {
			return nil, handleError(log, err)
		}
		items, err := e.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body []domain.TaskTemplate
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/tasks/templates/{id}",
		Summary:     "Get task template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.TaskTemplate
	}, error) {
		if _, err := callerFromContext(ctx); err != nil {
			return nil, handleError(log, err)
		}
		t, err := e.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.TaskTemplate
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-template",
		Method:      http.MethodPut,
		Path:        "/tasks/templates/{id}",
		Summary:     "Update task template",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateTemplateRequest
	}) (*struct {
		Body domain.TaskTemplate
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "body required")
		}
		fields := fieldSet(ctx)
		t, err := e.UpdateTemplate(ctx, caller, input.ID, engine.TemplateUpdateOptions{
			Name:     input.Body.Name,
			Lists:    input.Body.Lists,
			SetLists: fields["lists"],
		})
		if err != nil {
			return nil, handleError(log, err)
		}
		return &struct {
			Body domain.TaskTemplate
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-template",
		Method:      http.MethodDelete,
		Path:        "/tasks/templates/{id}",
		Summary:     "Delete task template",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body struct {
			Deleted string `json:"deleted"`
		}
	}, error) {
		caller, err := callerFromContext(ctx)
		if err != nil {
			return nil, handleError(log, err)
		}
		if err := e.DeleteTemplate(ctx, caller, input.ID); err != nil {
			return nil, handleError(log, err)
		}
		resp := &struct {
			Body struct {
				Deleted string `json:"deleted"`
			}
		}{}
		resp.Body.Deleted = input.ID
		return resp, nil
	})
}
