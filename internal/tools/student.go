package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uniqa-cloud/uniqa/internal/config"
)

// authRequiredAnswer is returned as a normal observation on 401/403,
// so the agent relays the login requirement instead of failing the run.
const authRequiredAnswer = "Bạn cần đăng nhập bằng tài khoản sinh viên để xem thông tin này."

// Client talks to the university student-information API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a student API client.
func NewClient(cfg config.ToolsConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.StudentAPIBaseURL, "/"),
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// get performs a GET with the given query parameters and returns the
// response body as the tool observation. The caller's session token,
// when present in the context, is forwarded as a bearer token.
func (c *Client) get(ctx context.Context, path string, params url.Values) (string, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if tok := StudentTokenFromContext(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call student api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authRequiredAnswer, nil
	case resp.StatusCode == http.StatusNotFound:
		return "Không tìm thấy dữ liệu phù hợp.", nil
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("student api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// apiTool is one student API endpoint exposed as an agent tool. The
// model's arguments pass through as query parameters.
type apiTool struct {
	client *Client
	name   string
	desc   string
	path   string
	params json.RawMessage
}

func (t *apiTool) Name() string                { return t.name }
func (t *apiTool) Description() string         { return t.desc }
func (t *apiTool) Parameters() json.RawMessage { return t.params }

func (t *apiTool) Execute(ctx context.Context, args string) (string, error) {
	values := url.Values{}
	if strings.TrimSpace(args) != "" {
		var in map[string]any
		if err := json.Unmarshal([]byte(args), &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		for k, v := range in {
			values.Set(k, fmt.Sprintf("%v", v))
		}
	}
	return t.client.get(ctx, t.path, values)
}

var studentParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"student_id": {"type": "string", "description": "Mã số sinh viên"},
		"week": {"type": "string", "description": "Tuần cần tra cứu: this, next hoặc yyyy-ww"}
	},
	"required": ["student_id"]
}`)

var semesterParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"student_id": {"type": "string", "description": "Mã số sinh viên"},
		"semester": {"type": "string", "description": "Học kỳ, ví dụ 2026.1"}
	},
	"required": ["student_id"]
}`)

// NewStudentSchedule looks up a student's class timetable.
func NewStudentSchedule(c *Client) Tool {
	return &apiTool{
		client: c,
		name:   "tra_cuu_lich_hoc",
		desc:   "Tra cứu thời khóa biểu của sinh viên theo tuần.",
		path:   "/v1/students/schedule",
		params: studentParams,
	}
}

// NewExamSchedule looks up a student's exam timetable.
func NewExamSchedule(c *Client) Tool {
	return &apiTool{
		client: c,
		name:   "tra_cuu_lich_thi",
		desc:   "Tra cứu lịch thi của sinh viên theo học kỳ.",
		path:   "/v1/students/exams",
		params: semesterParams,
	}
}

// NewStudentGrades looks up a student's grades. Requires the student
// to be authenticated; unauthenticated calls observe a login prompt.
func NewStudentGrades(c *Client) Tool {
	return &apiTool{
		client: c,
		name:   "tra_cuu_diem",
		desc:   "Tra cứu điểm học tập của sinh viên theo học kỳ.",
		path:   "/v1/students/grades",
		params: semesterParams,
	}
}

// NewTuitionFees looks up a student's tuition balance.
func NewTuitionFees(c *Client) Tool {
	return &apiTool{
		client: c,
		name:   "tra_cuu_hoc_phi",
		desc:   "Tra cứu học phí và công nợ của sinh viên.",
		path:   "/v1/students/tuition",
		params: semesterParams,
	}
}

// NewCampusNews lists recent university announcements.
func NewCampusNews(c *Client) Tool {
	return &apiTool{
		client: c,
		name:   "tin_tuc_truong",
		desc:   "Xem các thông báo và tin tức mới nhất của trường.",
		path:   "/v1/news",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Số tin tối đa"}
			}
		}`),
	}
}
