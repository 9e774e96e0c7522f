package services

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"io/fs"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"admissions-go/internal/models"
	"admissions-go/internal/scholarship"

	"github.com/pkg/errors"
)

// Template names. Each has a .txt body and optionally a .gohtml body.
const (
	tmplCongratulations = "congratulations"
	tmplLeadAlert       = "lead_alert"
	tmplDisqualified    = "disqualified"
	tmplSecurityAlert   = "security_alert"
	tmplAptitudeAck     = "aptitude_ack"
	tmplHiringAlert     = "hiring_alert"
)

//go:embed templates/*
var templateFS embed.FS

var (
	textTemplates map[string]*texttmpl.Template
	htmlTemplates map[string]*htmltmpl.Template
	tmplInit      sync.Once
	tmplErr       error
)

// mailData is what every template receives.
type mailData struct {
	Brand        string
	Attendee     *models.Attendee
	Breakdown    scholarship.Breakdown
	WhatsAppLink string
}

var templateFuncs = map[string]any{
	"inr": scholarship.FormatINR,
	"inc": func(i int) int { return i + 1 },
}

func loadTemplates() error {
	tmplInit.Do(func() {
		textTemplates = map[string]*texttmpl.Template{}
		htmlTemplates = map[string]*htmltmpl.Template{}
		tmplErr = fs.WalkDir(templateFS, "templates", func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			raw, err := templateFS.ReadFile(p)
			if err != nil {
				return err
			}
			ext := path.Ext(p)
			name := strings.TrimSuffix(path.Base(p), ext)
			switch ext {
			case ".txt":
				t, err := texttmpl.New(name).Funcs(templateFuncs).Parse(string(raw))
				if err != nil {
					return errors.Wrapf(err, "parse %s", p)
				}
				textTemplates[name] = t
			case ".gohtml":
				t, err := htmltmpl.New(name).Funcs(templateFuncs).Parse(string(raw))
				if err != nil {
					return errors.Wrapf(err, "parse %s", p)
				}
				htmlTemplates[name] = t
			}
			return nil
		})
	})
	return tmplErr
}

// renderMail executes the named template pair. The HTML part is empty when
// the template only has a text body.
func renderMail(name string, data mailData) (text, html string, err error) {
	if err := loadTemplates(); err != nil {
		return "", "", err
	}
	t, ok := textTemplates[name]
	if !ok {
		return "", "", errors.Errorf("unknown mail template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", errors.Wrapf(err, "render %s", name)
	}
	text = buf.String()

	if h, ok := htmlTemplates[name]; ok {
		buf.Reset()
		if err := h.Execute(&buf, data); err != nil {
			return "", "", errors.Wrapf(err, "render %s html", name)
		}
		html = buf.String()
	}
	return text, html, nil
}
