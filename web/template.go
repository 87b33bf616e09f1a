// Package web serves a read only view of a built network with heat maps of each layer output.
package web

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"k8s.io/klog/v2"
)

const pageTemplates = `
{{define "header"}}<!DOCTYPE html>
<html><head><title>{{.Heading}}</title>
<style>
body { font-family: sans-serif; }
.menu a { margin-right: 1em; }
.selected { font-weight: bold; }
pre { background: #f4f4f4; padding: 0.5em; }
</style></head>
<body><div class="menu">{{range .Menu}}<a href="{{.Url}}"{{if .Selected}} class="selected"{{end}}>{{.Name}}</a>{{end}}</div>
<h2>{{.Heading}}</h2>{{end}}

{{define "footer"}}</body></html>{{end}}

{{define "view"}}{{template "header" .}}
{{range .Layers}}<div class="layer"><h3>{{.Desc}}</h3><img src="{{.Image}}" width="{{.Width}}"></div>
{{end}}{{template "footer" .}}{{end}}

{{define "config"}}{{template "header" .}}<pre>{{.Text}}</pre>{{template "footer" .}}{{end}}
`

// Template and main menu definition
type Templates struct {
	*template.Template
	Menu    []Link
	Heading string
}

type Link struct {
	Url      string
	Name     string
	Selected bool
}

// Parse templates and initialise main menu
func NewTemplates() (*Templates, error) {
	var err error
	t := &Templates{Menu: []Link{}}
	t.Template, err = template.New("web").Parse(pageTemplates)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Templates) Clone() *Templates {
	return &Templates{
		Template: t.Template,
		Menu:     append([]Link{}, t.Menu...),
		Heading:  t.Heading,
	}
}

func (t *Templates) Select(url string) *Templates {
	for i, key := range t.Menu {
		t.Menu[i].Selected = strings.HasPrefix(key.Url, url)
	}
	return t
}

func (t *Templates) AddMenuItem(l Link) *Templates {
	t.Menu = append(t.Menu, l)
	return t
}

// Exec renders the named template, logging any error
func (t *Templates) Exec(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		logError(w, err)
	}
}

func logError(w http.ResponseWriter, err error) {
	klog.ErrorS(err, "web request failed")
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}
