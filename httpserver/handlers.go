package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"formatconv/contracts"
	"formatconv/feedback"
	"formatconv/files_manager"
	"formatconv/logger"
	"formatconv/prefs"
	"formatconv/publisher"
	"formatconv/selector"
	"formatconv/session"

	"github.com/google/uuid"
)

const (
	clientCookie   = "formatconv_client"
	multipartInMem = 32 << 20
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(context.Background(), "encoding response failed", logger.Fields{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errNoToken), errors.Is(err, errInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errExpired), errors.Is(err, session.ErrExpired), errors.Is(err, publisher.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, contracts.ErrValidation), errors.Is(err, selector.ErrUnsupportedPair):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrUnsupportedTarget), errors.Is(err, contracts.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contracts.ErrDependency):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", contracts.ErrValidation, err)
	}
	return nil
}

type createSessionRequest struct {
	Kind string `json:"kind"`
}

type createSessionResponse struct {
	Token        string               `json:"token"`
	Session      session.Snapshot     `json:"session"`
	Policy       files_manager.Policy `json:"policy"`
	AutoDownload bool                 `json:"auto_download"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := contracts.ParseKind(req.Kind)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", contracts.ErrValidation, err))
		return
	}
	sess, err := s.sessions.Create(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := s.issueToken(sess.ID, s.now())
	if err != nil {
		writeError(w, fmt.Errorf("signing token: %w", err))
		return
	}
	logger.Info(r.Context(), "session created", logger.Fields{"session_id": sess.ID, "kind": string(kind)})
	writeJSON(w, http.StatusCreated, createSessionResponse{
		Token:        token,
		Session:      sess.Snapshot(),
		Policy:       sess.Policy(),
		AutoDownload: s.cfg.AutoDownload,
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if limit := sess.Policy().MaxSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit*int64(s.cfg.MaxFiles)+1<<20)
	}
	if err := r.ParseMultipartForm(multipartInMem); err != nil {
		writeError(w, fmt.Errorf("%w: upload too large or not a multipart form", contracts.ErrValidation))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) > s.cfg.MaxFiles {
		writeError(w, fmt.Errorf("%w: at most %d files per selection", contracts.ErrValidation, s.cfg.MaxFiles))
		return
	}
	files, err := files_manager.ReadMultipart(headers)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := sess.Select(r.Context(), files)
	if err != nil {
		writeJSON(w, statusFor(err), struct {
			session.SelectResult
			Error string `json:"error"`
		}{res, err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type formatRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleSetFormat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req formatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := sess.SetPair(req.From, req.To); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess.Swap()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type convertResponse struct {
	session.Outcome
	Status feedback.Message `json:"status"`
	Error  string           `json:"error,omitempty"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	flags, err := readFlags(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := sess.Submit(r.Context(), flags)
	resp := convertResponse{Outcome: out}
	if fb := sess.Snapshot().Feedback; fb != nil {
		resp.Status = fb.Status
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readFlags accepts options as a JSON body or as form values.
func readFlags(r *http.Request) (contracts.InputFlags, error) {
	var flags contracts.InputFlags
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		return flags, decodeJSON(r, &flags)
	}
	if err := r.ParseForm(); err != nil {
		return flags, fmt.Errorf("%w: %v", contracts.ErrValidation, err)
	}
	flags = contracts.InputFlags{
		From:        r.FormValue("from"),
		To:          r.FormValue("to"),
		Quality:     r.FormValue("quality"),
		Scale:       r.FormValue("scale"),
		PageSize:    r.FormValue("page_size"),
		Background:  r.FormValue("background"),
		Transparent: r.FormValue("transparent"),
	}
	return flags, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	p, err := s.results.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": p.Filename}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(p.Data)
}

type prefResponse struct {
	Key   prefs.Key `json:"key"`
	Value string    `json:"value"`
}

func (s *Server) handleGetPref(w http.ResponseWriter, r *http.Request) {
	key, err := prefs.ParseKey(r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	var value string
	if c, err := r.Cookie(clientCookie); err == nil {
		value = prefs.Load(r.Context(), s.prefs, c.Value, key)
	}
	writeJSON(w, http.StatusOK, prefResponse{Key: key, Value: value})
}

type prefRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetPref(w http.ResponseWriter, r *http.Request) {
	key, err := prefs.ParseKey(r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req prefRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Value = strings.TrimSpace(req.Value)

	client := ""
	if c, err := r.Cookie(clientCookie); err == nil && c.Value != "" {
		client = c.Value
	} else {
		client = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     clientCookie,
			Value:    client,
			Path:     "/",
			MaxAge:   365 * 24 * 60 * 60,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	if err := prefs.Save(r.Context(), s.prefs, client, key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefResponse{Key: key, Value: req.Value})
}
