/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/pforte-idm/pforte/internal/auth"
	"github.com/pforte-idm/pforte/internal/mailer"
	"github.com/pforte-idm/pforte/internal/view"
)

// Server bundles the collaborators of the HTTP surface. All handlers are
// stateless; per-request state lives in the request context only.
type Server struct {
	Registry *view.Registry
	Auth     *auth.Authenticator
	AntiSpam *auth.AntiSpam
	// Mailer may be nil, which disables the mail-login endpoint.
	Mailer       mailer.Mailer
	AllowOrigins []string
}

// endpoints that run without a bearer token
var exemptPaths = map[string]bool{
	"/jwt-auth":        true,
	"/register":        true,
	"/register-config": true,
	"/anti-spam/":      true,
	"/mail-login":      true,
}

// Handler builds the main http.Handler: the route table wrapped in the
// middleware chain (CORS, body limit, JSON content negotiation, bearer
// authentication).
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Methods("POST").Path(`/jwt-auth`).HandlerFunc(s.postJWTAuth)
	r.Methods("POST").Path(`/jwt-refresh`).HandlerFunc(s.postJWTRefresh)
	r.Methods("GET").Path(`/auth`).HandlerFunc(s.getAuthUser)
	r.Methods("GET").Path(`/config`).HandlerFunc(s.getConfig)
	r.Methods("GET").Path(`/register-config`).HandlerFunc(s.getRegisterConfig)
	r.Methods("POST").Path(`/register`).HandlerFunc(s.postRegister)
	r.Methods("GET").Path(`/anti-spam/`).HandlerFunc(s.getAntiSpam)
	r.Methods("POST").Path(`/mail-login`).HandlerFunc(s.postMailLogin)

	//the self routes must be registered before the {pk} routes
	r.Methods("GET").Path(`/{view}/self`).HandlerFunc(s.getSelf)
	r.Methods("PATCH").Path(`/{view}/self`).HandlerFunc(s.patchSelf)
	r.Methods("GET").Path(`/{view}`).HandlerFunc(s.getList)
	r.Methods("POST").Path(`/{view}`).HandlerFunc(s.postCreate)
	r.Methods("GET").Path(`/{view}/{pk}`).HandlerFunc(s.getDetail)
	r.Methods("PATCH").Path(`/{view}/{pk}`).HandlerFunc(s.patchDetail)
	r.Methods("DELETE").Path(`/{view}/{pk}`).HandlerFunc(s.deleteEntry)

	handler := s.requireAuth(s.requireJSON(maxBodySize(r)))
	return handlers.CORS(
		handlers.AllowedOrigins(s.AllowOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(handler)
}

// viewForRequest resolves the {view} route variable.
func (s *Server) viewForRequest(r *http.Request) (*view.View, bool) {
	v, ok := s.Registry.View(mux.Vars(r)["view"])
	return v, ok
}
