/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/logg"

	"github.com/pforte-idm/pforte/internal/directory"
	"github.com/pforte-idm/pforte/internal/view"
)

////////////////////////////////////////////////////////////////////////////////
// authentication endpoints

func (s *Server) postJWTAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	record, token, err := s.Auth.Login(req.Username, req.Password)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"token": token, "user": record})
}

// postJWTRefresh reissues the caller's token from a fresh auth record, so that
// permission changes take effect without a new password prompt.
func (s *Server) postJWTRefresh(w http.ResponseWriter, r *http.Request) {
	user := userFromRequest(r)
	record, token, err := s.Auth.Relogin(user.PrimaryKey())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"token": token, "user": record})
}

func (s *Server) getAuthUser(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, userFromRequest(r))
}

////////////////////////////////////////////////////////////////////////////////
// schema documents

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Registry.UserConfigs())
}

func (s *Server) getRegisterConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Registry.PublicConfigs())
}

////////////////////////////////////////////////////////////////////////////////
// registration

func (s *Server) getAntiSpam(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.AntiSpam.Random())
}

func (s *Server) postRegister(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if !decodeRequest(w, r, &payload) {
		return
	}

	//the challenge answer rides along in the assignment document
	token, _ := payload["antiSpamToken"].(string)
	answer, _ := payload["antiSpamAnswer"].(string)
	err := s.AntiSpam.VerifyAnswer(token, answer)
	if err != nil {
		respondErr(w, err)
		return
	}
	delete(payload, "antiSpamToken")
	delete(payload, "antiSpamAnswer")

	err = s.Auth.View().CreateRegister(view.Assignments(payload))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

////////////////////////////////////////////////////////////////////////////////
// mail login

func (s *Server) postMailLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	//this always reports success: whether the address belongs to an account
	//must not be observable from the outside
	s.sendLoginMail(req.Email)
	respondJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) sendLoginMail(email string) {
	if s.Mailer == nil {
		logg.Info("ignoring mail-login request: mail delivery is not configured")
		return
	}

	authView := s.Auth.View()
	primaryKey, err := authView.ResolvePrimaryKeyByMail(email)
	if err != nil {
		if directory.IsNotFound(err) {
			logg.Info("ignoring mail-login request for unknown address %q", email)
		} else {
			logg.Error("cannot resolve mail-login address %q: %s", email, err.Error())
		}
		return
	}

	record, token, err := s.Auth.AutoLogin(primaryKey)
	if err != nil {
		logg.Error("cannot issue login token for %q: %s", primaryKey, err.Error())
		return
	}

	language, _ := record["language"].(string)
	displayName, _ := record["displayName"].(string)
	if displayName == "" {
		displayName = primaryKey
	}
	validUntil := time.Now().Add(s.Auth.AutoLoginValidity())

	err = s.Mailer.Send(language, "auto_login", email, map[string]any{
		"DisplayName": displayName,
		"Mail":        email,
		"LoginLink":   "auth/token-login?token=" + url.QueryEscape(token),
		"ValidUntil":  validUntil.UTC().Format(time.RFC1123),
	})
	if err != nil {
		logg.Error("cannot send login mail to %q: %s", email, err.Error())
	}
}

////////////////////////////////////////////////////////////////////////////////
// view endpoints

func (s *Server) getList(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewForRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Not Found", "no such view")
		return
	}
	result, err := v.GetList(userFromRequest(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) postCreate(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewForRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Not Found", "no such view")
		return
	}
	var assigns view.Assignments
	if !decodeRequest(w, r, &assigns) {
		return
	}
	err := v.CreateDetail(userFromRequest(r), assigns)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getDetail(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewForRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Not Found", "no such view")
		return
	}
	result, err := v.GetDetailEntry(userFromRequest(r), mux.Vars(r)["pk"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) patchDetail(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewForRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Not Found", "no such view")
		return
	}
	var assigns view.Assignments
	if !decodeRequest(w, r, &assigns) {
		return
	}

	user := userFromRequest(r)
	primaryKey := mux.Vars(r)["pk"]
	err := v.UpdateDetails(user, primaryKey, assigns)
	if err != nil {
		respondErr(w, err)
		return
	}
	s.respondAfterWrite(w, user, primaryKey)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewForRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Not Found", "no such view")
		return
	}
	err := v.Delete(userFromRequest(r), mux.Vars(r)["pk"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getSelf(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewForRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Not Found", "no such view")
		return
	}
	result, err := v.GetSelfEntry(userFromRequest(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) patchSelf(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewForRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Not Found", "no such view")
		return
	}
	var assigns view.Assignments
	if !decodeRequest(w, r, &assigns) {
		return
	}

	user := userFromRequest(r)
	err := v.UpdateSelf(user, assigns)
	if err != nil {
		respondErr(w, err)
		return
	}
	s.respondAfterWrite(w, user, user.PrimaryKey())
}

// respondAfterWrite finishes a successful update. Writes to the caller's own
// entry may have touched the token timestamp (e.g. a password rotation), so
// the response carries a reissued token in that case.
func (s *Server) respondAfterWrite(w http.ResponseWriter, user view.Record, primaryKey string) {
	if primaryKey != user.PrimaryKey() {
		respondJSON(w, http.StatusOK, struct{}{})
		return
	}
	_, token, err := s.Auth.Relogin(primaryKey)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"token": token})
}
