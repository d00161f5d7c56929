/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"

	"github.com/pforte-idm/pforte/internal/api"
	"github.com/pforte-idm/pforte/internal/auth"
	"github.com/pforte-idm/pforte/internal/config"
	"github.com/pforte-idm/pforte/internal/directory"
	"github.com/pforte-idm/pforte/internal/mailer"
	"github.com/pforte-idm/pforte/internal/view"
)

func main() {
	logg.ShowDebug = osext.GetenvBool("PFORTE_DEBUG")
	configPath := osext.GetenvOrDefault("PFORTE_CONFIG", "/etc/pforte/config.yaml")
	listenAddr := osext.GetenvOrDefault("PFORTE_LISTEN", ":8080")

	cfg := must.Return(config.Load(configPath))

	conn := must.Return(directory.Connect(directory.ConnectionOptions{
		ServerURI:    cfg.LDAP.ServerURI,
		BindDN:       cfg.LDAP.BindDN,
		BindPassword: cfg.LDAP.BindPassword,
		Timeout:      cfg.LDAP.Timeout(),
	}))
	defer conn.Close()

	registry := must.Return(view.NewRegistry(conn, &view.Env{}, cfg.LDAP.Prefix, cfg.Views))
	must.Succeed(registry.EnsureBaseDNs())

	//the config validation guarantees that this view exists
	authView, _ := registry.View(cfg.Auth.View)
	authenticator := must.Return(auth.New(conn, authView, auth.Options{
		SecretKey:           cfg.Auth.SecretKey,
		HeaderPrefix:        cfg.Auth.HeaderPrefix,
		Expiration:          cfg.Auth.Expiration(),
		AutoLoginExpiration: cfg.Auth.AutoLoginExpiration(),
	}))
	antiSpam := must.Return(auth.NewAntiSpam(cfg.Auth.AntiSpam.Questions))

	var mailSender mailer.Mailer
	if cfg.Mail.Host == "" {
		logg.Info("mail.host is not set, mail delivery is disabled")
	} else {
		mailSender = must.Return(mailer.New(mailer.Options{
			Host:        cfg.Mail.Host,
			Port:        cfg.Mail.Port,
			SSL:         cfg.Mail.SSL,
			StartTLS:    cfg.Mail.StartTLS,
			User:        cfg.Mail.User,
			Password:    cfg.Mail.Password,
			Sender:      cfg.Mail.Sender,
			SiteBaseURL: cfg.Mail.SiteBaseURL,
			SiteName:    cfg.Mail.SiteName,
		}))
	}

	server := &api.Server{
		Registry:     registry,
		Auth:         authenticator,
		AntiSpam:     antiSpam,
		Mailer:       mailSender,
		AllowOrigins: cfg.AllowOrigins,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//the view schema cannot be swapped at runtime; exit on config change and
	//let the supervisor restart us with the new file
	watcher := must.Return(config.NewWatcher(configPath))
	defer watcher.Close()
	go func() {
		if watcher.WaitForChange(ctx) {
			stop()
		}
	}()

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			logg.Error("error during HTTP server shutdown: %s", err.Error())
		}
	}()

	logg.Info("listening on %s", listenAddr)
	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Fatal(err.Error())
	}
}
