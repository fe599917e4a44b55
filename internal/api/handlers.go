package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pleasantbot/pleasantdash/internal/auth"
	"github.com/pleasantbot/pleasantdash/internal/botapi"
	"github.com/pleasantbot/pleasantdash/internal/views"
)

type commandsResponse struct {
	views.CommandsState
	Message string `json:"message,omitempty"`
}

type dashboardResponse struct {
	views.DashboardState
	Message string `json:"message,omitempty"`
}

// mutationResponse carries the re-fetched state after an add or delete,
// whether or not the mutation itself worked.
type mutationResponse struct {
	State commandsResponse `json:"state"`
	Error string           `json:"error,omitempty"`
}

type selectionRequest struct {
	Names    []string `json:"names"`
	All      bool     `json:"all"`
	Selected bool     `json:"selected"`
}

type tokenRequest struct {
	Fragment    string `json:"fragment"`
	AccessToken string `json:"access_token"`
}

// session resolves the request's bot session, answering 421 when the
// request's host may not choose a bot.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, err := s.sessions.forRequest(r)
	if err != nil {
		slog.Warn("rejected bot session", "host", r.Host, "err", err)
		writeError(w, http.StatusMisdirectedRequest, err.Error())
		return nil, false
	}
	return sess, true
}

func wantRefresh(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return ok
}

func newCommandsResponse(st views.CommandsState) commandsResponse {
	resp := commandsResponse{CommandsState: st}
	if !st.Loaded {
		resp.Message = views.NotLoadedMessage
	}
	return resp
}

// mutationStatus maps a failed add/delete to a status code: bad input is
// the caller's fault, anything else is the bot's.
func mutationStatus(err error) int {
	if errors.Is(err, botapi.ErrEmptyName) || errors.Is(err, botapi.ErrInvalidPermission) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeMutation(w http.ResponseWriter, st views.CommandsState, err error) {
	if err != nil {
		writeJSON(w, mutationStatus(err), mutationResponse{State: newCommandsResponse(st), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{State: newCommandsResponse(st)})
}

// --- Commands ---

func (s *Server) getCommands(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v := sess.commands
	var st views.CommandsState
	if wantRefresh(r) {
		st = v.Refresh(r.Context())
	} else {
		st = v.State(r.Context())
	}
	writeJSON(w, http.StatusOK, newCommandsResponse(st))
}

func (s *Server) addCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req botapi.AddCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	com := botapi.Command{Name: req.CommandName, Response: req.Response, Perm: req.Perm}
	st, err := sess.commands.Add(r.Context(), com)
	writeMutation(w, st, err)
}

func (s *Server) deleteCommands(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var names []string
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, "no command names given")
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.commands.Delete(r.Context(), names)
	writeMutation(w, st, err)
}

func (s *Server) getSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sel := sess.commands.Selection()
	writeJSON(w, http.StatusOK, map[string][]string{"selected": sel.Keys()})
}

func (s *Server) updateSelection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v := sess.commands
	names := req.Names
	if req.All {
		names = names[:0]
		for _, row := range v.State(r.Context()).Rows {
			names = append(names, row.Name)
		}
	}
	v.Selection().SetAll(names, req.Selected)
	writeJSON(w, http.StatusOK, map[string][]string{"selected": v.Selection().Keys()})
}

func (s *Server) deleteSelected(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v := sess.commands
	if v.Selection().Len() == 0 {
		writeError(w, http.StatusBadRequest, "no commands selected")
		return
	}
	st, err := v.DeleteSelected(r.Context())
	writeMutation(w, st, err)
}

// --- Quotes & Dashboard ---

func (s *Server) getQuotes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v := sess.quotes
	var st views.QuotesState
	if wantRefresh(r) {
		st = v.Refresh(r.Context())
	} else {
		st = v.State(r.Context())
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v := sess.dashboard
	var st views.DashboardState
	if wantRefresh(r) {
		st = v.Refresh(r.Context())
	} else {
		st = v.State(r.Context())
	}
	resp := dashboardResponse{DashboardState: st}
	if !st.Loaded {
		resp.Message = views.NotLoadedMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- OAuth ---

func (s *Server) getAuth(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	authed := sess.auth.Authenticated(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authed})
}

func (s *Server) postToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	a := sess.auth
	var err error
	if req.Fragment != "" {
		err = a.SendToken(r.Context(), req.Fragment)
	} else {
		err = a.SendRawToken(r.Context(), req.AccessToken)
	}

	if errors.Is(err, auth.ErrNoAccessToken) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.TokenForwarded(err)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "token forwarded"})
}

func (s *Server) loginURL() (string, bool) {
	oc := s.config().OAuth
	if oc.ClientID == "" {
		return "", false
	}
	return auth.LoginURL(auth.OAuthConfig{
		ClientID:    oc.ClientID,
		RedirectURI: oc.RedirectURI,
		Scopes:      oc.Scopes,
	}), true
}

func (s *Server) getLoginURL(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loginURL()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "oauth client_id is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loginURL()
	if !ok {
		slog.Warn("login requested but oauth client_id is not configured")
		writeError(w, http.StatusServiceUnavailable, "oauth client_id is not configured")
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}
