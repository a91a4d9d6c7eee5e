package teamlinesdk

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

// Client is a minimal Teamline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
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
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
}

// Ticket represents an issue raised on a task.
type Ticket struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	IssueTitle string  `json:"issue_title"`
	Priority   string  `json:"priority"`
	Status     string  `json:"status"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// Attendance represents one day's attendance record.
type Attendance struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Date           string `json:"date"`
	WorkMode       string `json:"work_mode"`
	ApprovalStatus string `json:"approval_status"`
}

// Leave represents a leave request.
type Leave struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	LeaveType string `json:"leave_type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
}

// Notification is a delivered notification (partial).
type Notification struct {
	ID        string `json:"id"`
	FromEmail string `json:"from_email"`
	Audience  string `json:"audience"`
	Subject   string `json:"subject"`
	Message   string `json:"message,omitempty"`
}

// WhoAmI describes the authenticated principal.
type WhoAmI struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Me returns the principal behind the configured credentials.
func (c *Client) Me(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
	return resp, err
}

// Tasks lists the tasks visible to the caller.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]Task, error) {
	endpoint := "v1/tasks"
	if projectID != "" {
		endpoint += "?project_id=" + url.QueryEscape(projectID)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetTaskStatus moves a task to the given status.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "v1/tasks/"+url.PathEscape(taskID)+"/status",
		map[string]any{"status": status}, &resp)
	return resp, err
}

// AddTicket raises a ticket on a task.
func (c *Client) AddTicket(ctx context.Context, taskID, issueTitle, priority string) (Ticket, error) {
	body := map[string]any{"issue_title": issueTitle}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Ticket
	err := c.do(ctx, http.MethodPost, "v1/tasks/"+url.PathEscape(taskID)+"/tickets", body, &resp)
	return resp, err
}

// MarkAttendance records today's attendance for the caller.
func (c *Client) MarkAttendance(ctx context.Context, workMode string) (Attendance, error) {
	var resp Attendance
	err := c.do(ctx, http.MethodPost, "v1/attendance", map[string]any{"work_mode": workMode}, &resp)
	return resp, err
}

// ApplyLeave files a leave request for the caller.
func (c *Client) ApplyLeave(ctx context.Context, leaveType, startDate, endDate, reason string) (Leave, error) {
	body := map[string]any{
		"leave_type": leaveType,
		"start_date": startDate,
		"end_date":   endDate,
	}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Leave
	err := c.do(ctx, http.MethodPost, "v1/leave", body, &resp)
	return resp, err
}

// Notifications lists the notifications visible to the caller.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp []Notification
	err := c.do(ctx, http.MethodGet, "v1/notifications", nil, &resp)
	return resp, err
}

// MarkNotificationRead flips the caller's copy of a notification to read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "v1/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
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
