package api

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/generator"
	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/metrics"
	"github.com/linem-davton/graphdraw/pkg/model"
)

type sessionKey struct{}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *editor.Session {
	return r.Context().Value(sessionKey{}).(*editor.Session)
}

// record counts the mutation and logs failures.
func (s *Server) record(r *http.Request, op string, err error) {
	result := "ok"
	if err != nil {
		result = model.Code(err)
		logging.FromContext(r.Context(), s.logger).Debug("Mutation rejected", "op", op, "error", err)
	}
	metrics.Mutations.WithLabelValues(op, result).Inc()
}

func stateOf(sess *editor.Session) SessionState {
	sched := sess.Schedule()
	return SessionState{
		ID:              sess.ID(),
		Revision:        sess.Revision(),
		Model:           sess.Snapshot(),
		Selection:       sess.Selection(),
		Schedule:        sched.Result,
		ScheduleError:   model.UserMessage(sched.Err),
		SchedulePending: sched.Pending,
		Warnings:        sess.Warnings(),
	}
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", model.ErrParse, name)
	}
	return v, nil
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := interchange.Schema()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.Write(doc)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.registry.Create(r.Context(), req.Key, req.Seed)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, stateOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateOf(sessionFrom(r)))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.registry.Remove(sessionFrom(r).ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req editor.Selection
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := sess.SelectPane(req.Pane)
	if err == nil && req.Task != nil {
		err = sess.SelectTask(*req.Task)
	}
	if err == nil && req.Link != nil {
		err = sess.SelectLink(req.Link.Start, req.Link.End)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Selection())
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req addTaskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := sess.AddTask(
		valueOr(req.WCET, editor.Defaults.TaskWCET),
		valueOr(req.MCET, editor.Defaults.TaskMCET),
		valueOr(req.Deadline, editor.Defaults.TaskDeadline),
	)
	s.record(r, "add_task", nil)
	writeJSON(w, http.StatusCreated, IDResponse{ID: int(id), Revision: sess.Revision()})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := intParam(r, "taskID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateFieldRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == nil {
		writeError(w, fmt.Errorf("%w: value is required", model.ErrInvalidParameters))
		return
	}
	u, err := editor.TaskUpdate(model.TaskID(id), req.Field, *req.Value)
	if err == nil {
		err = sess.Apply(u)
	}
	s.record(r, "update_task", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(sess))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := intParam(r, "taskID")
	if err != nil {
		writeError(w, err)
		return
	}
	err = sess.DeleteTask(model.TaskID(id))
	s.record(r, "delete_task", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req addMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := sess.AddMessage(req.Sender, req.Receiver,
		valueOr(req.Size, editor.Defaults.MessageSize),
		valueOr(req.MessageInjectionTime, editor.Defaults.MessageInjectionTime))
	s.record(r, "add_message", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: int(id), Revision: sess.Revision()})
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req addNodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := model.ParseNodeType(req.Type)
	if err != nil {
		err = fmt.Errorf("%w: %v", model.ErrInvalidParameters, err)
		s.record(r, "add_node", err)
		writeError(w, err)
		return
	}
	id, err := sess.AddNode(t)
	s.record(r, "add_node", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: int(id), Revision: sess.Revision()})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := intParam(r, "nodeID")
	if err != nil {
		writeError(w, err)
		return
	}
	err = sess.DeleteNode(model.NodeID(id))
	s.record(r, "delete_node", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req addLinkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := sess.AddLink(req.StartNode, req.EndNode,
		valueOr(req.LinkDelay, editor.Defaults.LinkDelay),
		valueOr(req.Bandwidth, editor.Defaults.LinkBandwidth))
	s.record(r, "add_link", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: int(id), Revision: sess.Revision()})
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	q := r.URL.Query()
	start, err1 := strconv.Atoi(q.Get("start"))
	end, err2 := strconv.Atoi(q.Get("end"))
	if err1 != nil || err2 != nil {
		writeError(w, fmt.Errorf("%w: start and end query parameters are required", model.ErrParse))
		return
	}
	err := sess.DeleteLink(model.NodeID(start), model.NodeID(end))
	s.record(r, "delete_link", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateLink(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := intParam(r, "linkID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateFieldRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == nil {
		writeError(w, fmt.Errorf("%w: value is required", model.ErrInvalidParameters))
		return
	}
	u, err := editor.LinkUpdate(model.LinkID(id), req.Field, *req.Value)
	if err == nil {
		err = sess.Apply(u)
	}
	s.record(r, "update_link", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(sess))
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}

func (s *Server) handleGenerateApplication(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	params := generator.DefaultApplicationParams()
	if err := decodeBody(w, r, &params); err != nil {
		writeError(w, err)
		return
	}
	app, err := generator.GenerateApplicationModel(params, newRand())
	if err == nil {
		err = sess.ReplaceApplication(app)
	}
	s.record(r, "generate_application", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(sess))
}

func (s *Server) handleGeneratePlatform(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	params := generator.DefaultPlatformParams()
	if err := decodeBody(w, r, &params); err != nil {
		writeError(w, err)
		return
	}
	p, err := generator.GeneratePlatformModel(params, newRand())
	if err == nil {
		err = sess.ReplacePlatform(p)
	}
	s.record(r, "generate_platform", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(sess))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", model.ErrParse, err))
		return
	}
	m, err := interchange.Import(data, interchange.ImportOptions{Validator: s.schema})
	if err == nil {
		err = sess.Replace(m)
	}
	s.record(r, "import", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(sess))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := interchange.Export(sessionFrom(r).Snapshot())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", interchange.ExportFileName))
	w.Write(doc)
}

func (s *Server) handleExample(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	err := sess.LoadExample()
	s.record(r, "example", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(sess))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := s.registry.Retry(context.WithoutCancel(r.Context()), sess.ID()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, stateOf(sess))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if s.validator == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "no validation server configured"})
		return
	}
	var req validateGraphRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.validator.ValidateGraph(r.Context(), sessionFrom(r).Snapshot().Application, req.Highlighted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{
		Valid:   res.Error == "",
		Message: res.Message(),
		Cycles:  res.Cycles,
	})
}
