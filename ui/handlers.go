package ui

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"kickchoice/domain/core"
	"kickchoice/domain/run"
	"kickchoice/internal/errors"
	"kickchoice/internal/report"
	"kickchoice/ports"

	"github.com/go-chi/chi/v5"
)

// handleIndex lists stored runs, optionally for one model
func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	runs, err := a.service.List(r.Context(), ports.RunFilters{ModelName: model, Limit: 200})
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.renderTemplate(w, "runs.html", struct {
		Title string
		Model string
		Runs  []run.Summary
	}{"Runs", model, runs})
}

// handleRun shows one run with its rendered report
func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	res, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	var body template.HTML
	if res.Result != nil {
		body = template.HTML(report.ResultHTML(res.Result))
	} else {
		body = template.HTML(fmt.Sprintf("<h1>%s</h1>", template.HTMLEscapeString(res.Manifest.ModelName)))
	}
	a.renderTemplate(w, "run.html", struct {
		Title  string
		Run    *run.Run
		Report template.HTML
	}{res.Manifest.ModelName, res, body})
}

// handleRunMarkdown serves the markdown report of a completed run
func (a *App) handleRunMarkdown(w http.ResponseWriter, r *http.Request) {
	res, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	if res.Result == nil {
		http.Error(w, "run has no result", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprint(w, report.Markdown(res.Result))
}

// handleModels describes the model catalogue
func (a *App) handleModels(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("# Models\n\n| Name | Panel | Covariates | Description |\n|---|---|---|---|\n")
	for _, v := range a.service.Models() {
		fmt.Fprintf(&b, "| %s | %t | %s | %s |\n", v.Name, v.Panel, strings.Join(v.Covariates, ", "), v.Description)
	}
	a.renderMarkdown(w, "Models", b.String())
}

// handleCompare compares the runs given as ?ids=a&ids=b or ?ids=a,b
func (a *App) handleCompare(w http.ResponseWriter, r *http.Request) {
	var ids []core.RunID
	for _, param := range r.URL.Query()["ids"] {
		for _, raw := range strings.Split(param, ",") {
			if raw = strings.TrimSpace(raw); raw == "" {
				continue
			}
			id, err := core.ParseRunID(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ids = append(ids, id)
		}
	}
	cmp, err := a.service.Compare(r.Context(), ids)
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.renderMarkdown(w, "Comparison", "# Model comparison\n\n"+cmp.Markdown())
}

func (a *App) loadRun(w http.ResponseWriter, r *http.Request) (*run.Run, bool) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	res, err := a.service.Get(r.Context(), id)
	if err != nil {
		a.renderError(w, err)
		return nil, false
	}
	return res, true
}

func (a *App) renderError(w http.ResponseWriter, err error) {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.CodeInvalidInput:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
