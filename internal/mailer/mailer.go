/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package mailer

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/wneessen/go-mail"
)

//go:embed templates
var templateFS embed.FS

// Mailer delivers rendered notification mails. The template name selects a
// pair of html/txt templates; the first rendered line is the subject.
type Mailer interface {
	Send(language, template, to string, data map[string]any) error
}

// Options contains the SMTP and rendering configuration.
type Options struct {
	Host        string
	Port        int
	SSL         bool
	StartTLS    bool
	User        string
	Password    string
	Sender      string
	SiteBaseURL string
	SiteName    string
}

type smtpMailer struct {
	opts Options
}

// New validates the options and returns an SMTP-backed Mailer.
func New(opts Options) (Mailer, error) {
	if opts.SSL && opts.StartTLS {
		return nil, errors.New("mailer: ssl and starttls are mutually exclusive")
	}
	if opts.Host == "" || opts.Sender == "" {
		return nil, errors.New("mailer: host and sender are required")
	}
	if opts.Port == 0 {
		switch {
		case opts.SSL:
			opts.Port = 465
		case opts.StartTLS:
			opts.Port = 587
		default:
			opts.Port = 25
		}
	}
	return &smtpMailer{opts: opts}, nil
}

// Send implements the Mailer interface.
func (m *smtpMailer) Send(language, template, to string, data map[string]any) error {
	renderData := make(map[string]any, len(data)+2)
	for key, value := range data {
		renderData[key] = value
	}
	renderData["SiteBaseURL"] = m.opts.SiteBaseURL
	renderData["SiteName"] = m.opts.SiteName

	htmlSubject, htmlBody, err := renderTemplate(language, template, "html", renderData)
	if err != nil {
		return err
	}
	txtSubject, txtBody, err := renderTemplate(language, template, "txt", renderData)
	if err != nil {
		return err
	}
	if htmlSubject != txtSubject {
		return fmt.Errorf("mailer: template %q renders diverging subjects", template)
	}

	msg := mail.NewMsg()
	err = msg.From(m.opts.Sender)
	if err == nil {
		err = msg.To(to)
	}
	if err != nil {
		return fmt.Errorf("cannot build mail to %s: %w", to, err)
	}
	msg.Subject(txtSubject)
	msg.SetBodyString(mail.TypeTextPlain, txtBody)
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	client, err := m.connect()
	if err != nil {
		return err
	}
	return client.DialAndSend(msg)
}

func (m *smtpMailer) connect() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(m.opts.Port)}
	switch {
	case m.opts.SSL:
		opts = append(opts, mail.WithSSL())
	case m.opts.StartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.opts.User != "" && m.opts.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.opts.User),
			mail.WithPassword(m.opts.Password),
		)
	}
	return mail.NewClient(m.opts.Host, opts...)
}

// renderTemplate renders templates/<language>/<name>.<ext>.tmpl, falling back
// to English when the language has no translation. The first line of the
// rendered output is the subject, the rest is the body.
func renderTemplate(language, name, ext string, data map[string]any) (subject, body string, err error) {
	path := fmt.Sprintf("templates/%s/%s.%s.tmpl", language, name, ext)
	buf, readErr := templateFS.ReadFile(path)
	if readErr != nil {
		path = fmt.Sprintf("templates/en/%s.%s.tmpl", name, ext)
		buf, readErr = templateFS.ReadFile(path)
	}
	if readErr != nil {
		return "", "", fmt.Errorf("unknown mail template %q: %w", name, readErr)
	}

	var rendered bytes.Buffer
	if ext == "html" {
		tmpl, err := htmltemplate.New(path).Parse(string(buf))
		if err != nil {
			return "", "", err
		}
		err = tmpl.Execute(&rendered, data)
		if err != nil {
			return "", "", err
		}
	} else {
		tmpl, err := texttemplate.New(path).Parse(string(buf))
		if err != nil {
			return "", "", err
		}
		err = tmpl.Execute(&rendered, data)
		if err != nil {
			return "", "", err
		}
	}

	subject, body, _ = strings.Cut(rendered.String(), "\n")
	return strings.TrimSpace(subject), body, nil
}
