package taskdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskdesk HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title"`
	Description          string          `json:"description,omitempty"`
	DueDate              *string         `json:"due_date,omitempty"`
	Priority             string          `json:"priority"`
	Status               string          `json:"status"`
	CompletionPercentage int             `json:"completion_percentage"`
	AssignedToID         *string         `json:"assigned_to_id,omitempty"`
	TeamID               *string         `json:"team_id,omitempty"`
	ParentTaskID         *string         `json:"parent_task_id,omitempty"`
	Module               string          `json:"module"`
	RelatedObjects       []RelatedObject `json:"related_objects,omitempty"`
}

// RelatedObject links a task to a CRM record.
type RelatedObject struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"task_id"`
	ObjectType       string  `json:"object_type"`
	ObjectID         int64   `json:"object_id"`
	RelationshipType *string `json:"relationship_type,omitempty"`
}

// TaskPage is one window of a task listing.
type TaskPage struct {
	Items []Task `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task. Extra fields go in opts.
func (c *Client) CreateTask(ctx context.Context, title string, opts map[string]any) (Task, error) {
	body := map[string]any{"title": title}
	for k, v := range opts {
		body[k] = v
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// DeleteTask removes a task and its subtasks.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// SetStatus changes a task's status.
func (c *Client) SetStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// SetCompletion changes a task's completion percentage.
func (c *Client) SetCompletion(ctx context.Context, id string, percentage int) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id)+"/completion", map[string]any{"completion_percentage": percentage}, &resp)
	return resp, err
}

// AssignToUser assigns a task to a user.
func (c *Client) AssignToUser(ctx context.Context, taskID, userID string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/assignee/%s", url.PathEscape(taskID), url.PathEscape(userID))
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

// LinkObject attaches a CRM object to a task.
func (c *Client) LinkObject(ctx context.Context, taskID, objectType string, objectID int64, relationship string) (Task, error) {
	body := map[string]any{
		"object_type": objectType,
		"object_id":   objectID,
	}
	if relationship != "" {
		body["relationship_type"] = relationship
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/related-objects", body, &resp)
	return resp, err
}

// ListTasks returns one page of tasks.
func (c *Client) ListTasks(ctx context.Context, page, size int) (TaskPage, error) {
	return c.taskPage(ctx, "tasks", page, size)
}

// OverdueTasks returns one page of overdue tasks.
func (c *Client) OverdueTasks(ctx context.Context, page, size int) (TaskPage, error) {
	return c.taskPage(ctx, "tasks/overdue", page, size)
}

// SearchTasks matches the term against titles and descriptions.
func (c *Client) SearchTasks(ctx context.Context, term string, page, size int) (TaskPage, error) {
	endpoint := "tasks/search?q=" + url.QueryEscape(term)
	return c.taskPage(ctx, endpoint, page, size)
}

// Subtasks returns the direct children of a task.
func (c *Client) Subtasks(ctx context.Context, taskID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID)+"/subtasks", nil, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) taskPage(ctx context.Context, endpoint string, page, size int) (TaskPage, error) {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	if page > 0 {
		endpoint = fmt.Sprintf("%s%spage=%d", endpoint, sep, page)
		sep = "&"
	}
	if size > 0 {
		endpoint = fmt.Sprintf("%s%ssize=%d", endpoint, sep, size)
	}
	var resp TaskPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
