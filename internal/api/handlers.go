package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/launchpad"
	"ChainPilot/internal/task"
)

var validate = validator.New()

type promptRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

type postRequest struct {
	Content string `json:"content" validate:"required"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decode(w, r, &req) || !s.ready(w, s.deps.Agent != nil, "agent") {
		return
	}
	result, err := s.deps.Agent.Chat(r.Context(), req.Prompt)
	s.respond(w, result, err)
}

func (s *Server) handleLaunchpadChat(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decode(w, r, &req) || !s.ready(w, s.deps.Agent != nil, "agent") {
		return
	}
	result, err := s.deps.Agent.LaunchpadChat(r.Context(), req.Prompt)
	s.respond(w, result, err)
}

func (s *Server) handleSentimentAnalysis(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decode(w, r, &req) || !s.ready(w, s.deps.Agent != nil, "agent") {
		return
	}
	result, err := s.deps.Agent.SentimentAnalysis(r.Context(), req.Prompt)
	s.respond(w, result, err)
}

func (s *Server) handleDeployContract(w http.ResponseWriter, r *http.Request) {
	var req launchpad.DeployRequest
	if !s.decode(w, r, &req) || !s.ready(w, s.deps.Launchpad != nil, "launchpad") {
		return
	}
	result, err := s.deps.Launchpad.Deploy(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleMintTokens(w http.ResponseWriter, r *http.Request) {
	var req launchpad.MintRequest
	if !s.decode(w, r, &req) || !s.ready(w, s.deps.Launchpad != nil, "launchpad") {
		return
	}
	result, err := s.deps.Launchpad.Mint(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handlePostTweet(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !s.decode(w, r, &req) || !s.ready(w, s.deps.Social != nil, "social") {
		return
	}
	result, err := s.deps.Social.Publish(r.Context(), req.Content)
	s.respond(w, result, err)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req task.Request
	if !s.decode(w, r, &req) || !s.ready(w, s.deps.Tasks != nil, "tasks") {
		return
	}
	created, err := s.deps.Tasks.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, s.deps.Tasks != nil, "tasks") {
		return
	}
	query := r.URL.Query()
	opts := []task.ListOption{
		task.WithLimit(intParam(query.Get("limit"), 20)),
		task.WithOffset(intParam(query.Get("offset"), 0)),
		task.WithQuery(query.Get("q")),
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []task.Status
		for _, value := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(value)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("kind"); raw != "" {
		var kinds []task.Kind
		for _, value := range strings.Split(raw, ",") {
			kinds = append(kinds, task.Kind(strings.TrimSpace(value)))
		}
		opts = append(opts, task.WithKinds(kinds...))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}

	tasks, err := s.deps.Tasks.List(r.Context(), opts...)
	s.respond(w, tasks, err)
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, s.deps.Tasks != nil, "tasks") {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "缺少任务 ID"))
		return
	}
	found, err := s.deps.Tasks.Get(r.Context(), id)
	s.respond(w, found, err)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, s.deps.Agent != nil, "agent") {
		return
	}
	records, err := s.deps.Agent.History(r.Context(), intParam(r.URL.Query().Get("limit"), 20))
	s.respond(w, records, err)
}

// decode 解析并校验请求体，失败时直接写出 400。
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求参数不合法"))
		return false
	}
	return true
}

func (s *Server) ready(w http.ResponseWriter, ok bool, component string) bool {
	if !ok {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, component+" 未配置"))
	}
	return ok
}

func (s *Server) respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := xerrors.HTTPStatus(err)
	code := xerrors.CodeOf(err)
	message := err.Error()
	if coded, ok := xerrors.From(err); ok {
		code = coded.Code()
		message = coded.Message()
		if cause := coded.Unwrap(); cause != nil && status < http.StatusInternalServerError {
			message += ": " + cause.Error()
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "code", code, "error", err)
	} else {
		s.log.Warn("request rejected", "status", status, "code", code, "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: string(code), Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
