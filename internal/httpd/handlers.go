package httpd

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// ============================================================================
// JSON plumbing
// ============================================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response: %v", err)
	}
}

// writeError translates an engine error into a response.
//
// StoreError codes map to client-facing statuses with their message intact;
// anything else is an infrastructure failure and must not leak detail
// across the trust boundary.
func writeError(w http.ResponseWriter, err error) {
	var se *vfs.StoreError
	if errors.As(err, &se) {
		writeJSON(w, statusForCode(se.Code), errorResponse{Error: se.Message})
		return
	}
	logger.Error("internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal error."})
}

func statusForCode(code vfs.ErrorCode) int {
	switch code {
	case vfs.ErrNotFound:
		return http.StatusNotFound
	case vfs.ErrInvalidPath, vfs.ErrInvalidArgument:
		return http.StatusBadRequest
	case vfs.ErrQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case vfs.ErrNotAuthorized, vfs.ErrAuthFailed, vfs.ErrInvalidToken, vfs.ErrExpired:
		return http.StatusUnauthorized
	case vfs.ErrAccessDenied:
		return http.StatusForbidden
	case vfs.ErrAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// clientIP extracts the peer address without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		writeError(w, &vfs.StoreError{Code: vfs.ErrInvalidArgument, Message: "Malformed request body."})
		return false
	}
	return true
}

// ============================================================================
// Session handlers
// ============================================================================

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Pool   string `json:"pool"`
	Token  string `json:"token"`
	Userno string `json:"userno"`
}

type resumeResponse struct {
	Pool   string `json:"pool"`
	Token  string `json:"token"`
	Userno string `json:"userno"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ownerName := chi.URLParam(r, "owner")
	if !s.loginLimiter.Allow(ownerName + "|" + clientIP(r)) {
		s.metrics.RecordLoginThrottled()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many login attempts."})
		return
	}

	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var info vfs.SessionInfo
	err := s.pool.View(r.Context(), ownerName, func(st *vfs.Store) error {
		ses, err := st.Login(req.Name, req.Password)
		if err != nil {
			return err
		}
		info, err = ses.Info()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	pool, token, err := s.sessions.Issue(ownerName, info.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Pool: pool, Token: token, Userno: info.Userno})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	reqCtx := session(r)

	var info vfs.SessionInfo
	err := s.pool.View(r.Context(), reqCtx.owner, func(st *vfs.Store) error {
		ses, err := st.Resume(reqCtx.engineToken)
		if err != nil {
			return err
		}
		info, err = ses.Info()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := s.sessions.Renew(reqCtx.pool)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resumeResponse{Pool: reqCtx.pool, Token: token, Userno: info.Userno})
}

func (s *Server) handleSesDetail(w http.ResponseWriter, r *http.Request) {
	reqCtx := session(r)

	var detail vfs.SessionDetail
	err := s.pool.View(r.Context(), reqCtx.owner, func(st *vfs.Store) error {
		ses, err := st.Resume(reqCtx.engineToken)
		if err != nil {
			return err
		}
		detail, err = ses.Detail()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(session(r).pool)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ============================================================================
// User administration handlers
// ============================================================================

// withSession resolves the engine session and runs fn against it. Mutating
// operations go through the pool's save path; reads skip it.
func (s *Server) withSession(r *http.Request, mutating bool, fn func(ses *vfs.Session) error) error {
	reqCtx := session(r)
	run := s.pool.View
	if mutating {
		run = s.pool.Do
	}
	return run(r.Context(), reqCtx.owner, func(st *vfs.Store) error {
		ses, err := st.Resume(reqCtx.engineToken)
		if err != nil {
			return err
		}
		return fn(ses)
	})
}

type userAddRequest struct {
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Admin    bool     `json:"admin"`
	FS       string   `json:"fs"`
	Union    []string `json:"union"`
}

func (s *Server) handleUserAdd(w http.ResponseWriter, r *http.Request) {
	var req userAddRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var info vfs.UserInfo
	err := s.withSession(r, true, func(ses *vfs.Session) error {
		var err error
		info, err = ses.UserAdd(vfs.UserAddOptions{
			Name:     req.Name,
			Password: req.Password,
			Admin:    req.Admin,
			FS:       req.FS,
			Union:    req.Union,
		})
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// userModRequest uses pointers to distinguish "absent" from "set to zero":
// only present fields are applied. An empty fs string clears the primary.
type userModRequest struct {
	Userno   string    `json:"userno"`
	Name     *string   `json:"name"`
	Password *string   `json:"password"`
	Admin    *bool     `json:"admin"`
	FS       *string   `json:"fs"`
	Union    *[]string `json:"union"`
}

func (s *Server) handleUserMod(w http.ResponseWriter, r *http.Request) {
	var req userModRequest
	if !decodeBody(w, r, &req) {
		return
	}
	options := vfs.UserModOptions{}
	if req.Name != nil {
		options.SetName, options.Name = true, *req.Name
	}
	if req.Password != nil {
		options.SetPassword, options.Password = true, *req.Password
	}
	if req.Admin != nil {
		options.SetAdmin, options.Admin = true, *req.Admin
	}
	if req.FS != nil {
		options.SetFS, options.FS = true, *req.FS
	}
	if req.Union != nil {
		options.SetUnion, options.Union = true, *req.Union
	}

	var info vfs.UserInfo
	err := s.withSession(r, true, func(ses *vfs.Session) error {
		var err error
		info, err = ses.UserMod(req.Userno, options)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type usernoRequest struct {
	Userno string `json:"userno"`
}

func (s *Server) handleUserDel(w http.ResponseWriter, r *http.Request) {
	var req usernoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.withSession(r, true, func(ses *vfs.Session) error {
		return ses.UserDel(req.Userno)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	var users []vfs.UserInfo
	err := s.withSession(r, false, func(ses *vfs.Session) error {
		var err error
		users, err = ses.UserList()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ============================================================================
// Filesystem handlers
// ============================================================================

// fsResponse carries a signed handle credential plus the view it names.
type fsResponse struct {
	FSToken   string   `json:"fs_token"`
	FSNo      string   `json:"fsno"`
	Union     []string `json:"union"`
	Writeable bool     `json:"writeable"`
}

func (s *Server) writeFSResponse(w http.ResponseWriter, ownerName string, view vfs.ViewInfo) {
	token, err := s.fsTokens.Encode(ownerName, view)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fsResponse{
		FSToken:   token,
		FSNo:      view.FSNo,
		Union:     view.Union,
		Writeable: view.Writeable,
	})
}

func (s *Server) handleFS(w http.ResponseWriter, r *http.Request) {
	var view vfs.ViewInfo
	err := s.withSession(r, false, func(ses *vfs.Session) error {
		v, err := ses.FS()
		if err != nil {
			return err
		}
		view = v.Info()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeFSResponse(w, session(r).owner, view)
}

type fsGetRequest struct {
	FSNo      string   `json:"fsno"`
	Union     []string `json:"union"`
	Writeable bool     `json:"writeable"`
}

func (s *Server) handleFSGet(w http.ResponseWriter, r *http.Request) {
	var req fsGetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var view vfs.ViewInfo
	err := s.withSession(r, false, func(ses *vfs.Session) error {
		v, err := ses.FSGet(req.FSNo, vfs.FSGetOptions{Union: req.Union, Writeable: req.Writeable})
		if err != nil {
			return err
		}
		view = v.Info()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeFSResponse(w, session(r).owner, view)
}

type fsTokenRequest struct {
	FSToken string `json:"fs_token"`
}

func (s *Server) handleFSResume(w http.ResponseWriter, r *http.Request) {
	var req fsTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	claimed, err := s.fsTokens.Decode(session(r).owner, req.FSToken)
	if err != nil {
		writeError(w, err)
		return
	}
	var view vfs.ViewInfo
	err = s.withSession(r, false, func(ses *vfs.Session) error {
		v, err := ses.FSResume(claimed.FSNo, claimed.Union, claimed.Writeable)
		if err != nil {
			return err
		}
		view = v.Info()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeFSResponse(w, session(r).owner, view)
}

// limitsPatch mirrors vfs.LimitsPatch with pointer fields for partial
// updates.
type limitsPatch struct {
	MaxFiles   *int   `json:"max_files"`
	MaxStorage *int64 `json:"max_storage"`
	MaxDepth   *int   `json:"max_depth"`
	MaxPath    *int   `json:"max_path"`
}

func (p *limitsPatch) toOptions() vfs.LimitsPatch {
	patch := vfs.LimitsPatch{}
	if p == nil {
		return patch
	}
	if p.MaxFiles != nil {
		patch.SetMaxFiles, patch.MaxFiles = true, *p.MaxFiles
	}
	if p.MaxStorage != nil {
		patch.SetMaxStorage, patch.MaxStorage = true, *p.MaxStorage
	}
	if p.MaxDepth != nil {
		patch.SetMaxDepth, patch.MaxDepth = true, *p.MaxDepth
	}
	if p.MaxPath != nil {
		patch.SetMaxPath, patch.MaxPath = true, *p.MaxPath
	}
	return patch
}

type fsAddRequest struct {
	Name    string       `json:"name"`
	Options *limitsPatch `json:"options"`
}

func (s *Server) handleFSAdd(w http.ResponseWriter, r *http.Request) {
	var req fsAddRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var info vfs.FSInfo
	err := s.withSession(r, true, func(ses *vfs.Session) error {
		var err error
		info, err = ses.FSAdd(req.Name, req.Options.toOptions())
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type fsModRequest struct {
	FSNo    string       `json:"fsno"`
	Name    *string      `json:"name"`
	Options *limitsPatch `json:"options"`
}

func (s *Server) handleFSMod(w http.ResponseWriter, r *http.Request) {
	var req fsModRequest
	if !decodeBody(w, r, &req) {
		return
	}
	options := vfs.FSModOptions{Limits: req.Options.toOptions()}
	if req.Name != nil {
		options.SetName, options.Name = true, *req.Name
	}
	var info vfs.FSInfo
	err := s.withSession(r, true, func(ses *vfs.Session) error {
		var err error
		info, err = ses.FSMod(req.FSNo, options)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type fsnoRequest struct {
	FSNo string `json:"fsno"`
}

func (s *Server) handleFSDel(w http.ResponseWriter, r *http.Request) {
	var req fsnoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.withSession(r, true, func(ses *vfs.Session) error {
		return ses.FSDel(req.FSNo)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleFSList(w http.ResponseWriter, r *http.Request) {
	var list []vfs.FSListEntry
	err := s.withSession(r, false, func(ses *vfs.Session) error {
		var err error
		list, err = ses.FSList()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFSDetail(w http.ResponseWriter, r *http.Request) {
	var req fsnoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var detail vfs.FSDetail
	err := s.withSession(r, false, func(ses *vfs.Session) error {
		var err error
		detail, err = ses.FSDetailFor(req.FSNo)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type grantEntry struct {
	FSNo      string `json:"fsno"`
	Readable  bool   `json:"readable"`
	Writeable bool   `json:"writeable"`
}

type grantRequest struct {
	Userno string       `json:"userno"`
	Grants []grantEntry `json:"grants"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	grants := make([]vfs.GrantOptions, 0, len(req.Grants))
	for _, g := range req.Grants {
		grants = append(grants, vfs.GrantOptions{
			FSNo:      g.FSNo,
			Readable:  g.Readable,
			Writeable: g.Writeable,
		})
	}
	err := s.withSession(r, true, func(ses *vfs.Session) error {
		return ses.Grant(req.Userno, grants)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ============================================================================
// File operation handlers
// ============================================================================

// withView resolves the handle credential into a live union view and runs
// fn against it.
func (s *Server) withView(r *http.Request, fsToken string, mutating bool, fn func(view *vfs.UnionView) error) error {
	claimed, err := s.fsTokens.Decode(session(r).owner, fsToken)
	if err != nil {
		return err
	}
	return s.withSession(r, mutating, func(ses *vfs.Session) error {
		view, err := ses.FSResume(claimed.FSNo, claimed.Union, claimed.Writeable)
		if err != nil {
			return err
		}
		return fn(view)
	})
}

// dirEntry is the boundary projection of one listing entry. Timestamps
// are epoch milliseconds; directories carry neither identity nor times.
type dirEntry struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Ino       string `json:"ino,omitempty"`
	Size      int64  `json:"size"`
	Ctime     int64  `json:"ctime,omitempty"`
	Mtime     int64  `json:"mtime,omitempty"`
	Writeable bool   `json:"writeable"`
}

func toDirEntry(e vfs.DirEntry) dirEntry {
	out := dirEntry{
		Name:      e.Name,
		Kind:      string(e.Kind),
		Ino:       e.Ino,
		Size:      e.Size,
		Writeable: e.Writeable,
	}
	if e.Kind == vfs.KindFile {
		out.Ctime = e.Ctime.UnixMilli()
		out.Mtime = e.Mtime.UnixMilli()
	}
	return out
}

type pathRequest struct {
	FSToken string `json:"fs_token"`
	Path    string `json:"path"`
}

func (s *Server) handleReaddir(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var entries []vfs.DirEntry
	err := s.withView(r, req.FSToken, false, func(view *vfs.UnionView) error {
		var err error
		entries, err = view.Readdir(req.Path)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toDirEntry(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// fileInfo is the boundary projection of a stat result.
type fileInfo struct {
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	Ino       string `json:"ino"`
	Size      int64  `json:"size"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
	Writeable bool   `json:"writeable"`
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var info *vfs.FileInfo
	err := s.withView(r, req.FSToken, false, func(view *vfs.UnionView) error {
		var err error
		info, err = view.Stat(req.Path)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileInfo{
		Path:      info.Path,
		Kind:      string(info.Kind),
		Ino:       info.Ino,
		Size:      info.Size,
		Ctime:     info.Ctime.UnixMilli(),
		Mtime:     info.Mtime.UnixMilli(),
		Writeable: info.Writeable,
	})
}

type writeFileRequest struct {
	FSToken  string `json:"fs_token"`
	Path     string `json:"path"`
	Data     []byte `json:"data"`
	Truncate bool   `json:"truncate"`
}

type writeFileResponse struct {
	Ino string `json:"ino"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var ino string
	err := s.withView(r, req.FSToken, true, func(view *vfs.UnionView) error {
		var err error
		ino, err = view.WriteFile(req.Path, req.Data, req.Truncate)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeFileResponse{Ino: ino})
}

type readFileResponse struct {
	Data []byte `json:"data"`
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var data []byte
	err := s.withView(r, req.FSToken, false, func(view *vfs.UnionView) error {
		var err error
		data, err = view.ReadFile(req.Path)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readFileResponse{Data: data})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.withView(r, req.FSToken, true, func(view *vfs.UnionView) error {
		return view.Unlink(req.Path)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type moveRequest struct {
	FSToken string `json:"fs_token"`
	Path    string `json:"path"`
	NewPath string `json:"new_path"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.withView(r, req.FSToken, true, func(view *vfs.UnionView) error {
		return view.Move(req.Path, req.NewPath)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
