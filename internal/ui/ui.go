// Package ui serves the server-rendered impact pages under
// /plugins/gestion-impacts/impacts/.
package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/config"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/navigation"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

//go:embed assets templates
var files embed.FS

// Title heads the list page and the browser tab of every page.
const Title = "Gestion des impacts"

// AssetsPath is where the stylesheet is served.
const AssetsPath = "/plugins/gestion-impacts/static/"

var pageNames = []string{
	"list", "detail", "form", "delete", "bulk_edit", "bulk_delete", "import", "changelog", "error",
}

// UI renders the impact pages.
type UI struct {
	storage  storage.Storage
	pages    map[string]*template.Template
	pageSize int
}

// New parses the embedded templates.
func New(s storage.Storage) (*UI, error) {
	u := &UI{storage: s, pages: make(map[string]*template.Template), pageSize: config.DefaultPageSize}

	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(files, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		u.pages[name] = t
	}
	return u, nil
}

// WithPageSize sets the default number of listing rows per page.
func (u *UI) WithPageSize(size int) *UI {
	if size > 0 {
		u.pageSize = size
	}
	return u
}

// RegisterRoutes registers the web views on mux. POST views are wrapped in
// cross-origin protection.
func (u *UI) RegisterRoutes(mux *http.ServeMux) {
	base := navigation.BasePath
	csrf := http.NewCrossOriginProtection()
	post := func(h http.HandlerFunc) http.Handler { return csrf.Handler(h) }

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, base, http.StatusFound)
	})
	mux.Handle("GET "+AssetsPath, AssetHandler())

	mux.HandleFunc("GET "+base+"{$}", u.list)
	mux.HandleFunc("GET "+base+"add/{$}", u.add)
	mux.Handle("POST "+base+"add/{$}", post(u.add))
	mux.HandleFunc("GET "+base+"import/{$}", u.importImpacts)
	mux.Handle("POST "+base+"import/{$}", post(u.importImpacts))
	mux.Handle("POST "+base+"edit/{$}", post(u.bulkEdit))
	mux.Handle("POST "+base+"delete/{$}", post(u.bulkDelete))
	mux.HandleFunc("GET "+base+"{id}/{$}", u.detail)
	mux.HandleFunc("GET "+base+"{id}/edit/{$}", u.edit)
	mux.Handle("POST "+base+"{id}/edit/{$}", post(u.edit))
	mux.HandleFunc("GET "+base+"{id}/delete/{$}", u.deleteImpact)
	mux.Handle("POST "+base+"{id}/delete/{$}", post(u.deleteImpact))
	mux.HandleFunc("GET "+base+"{id}/changelog/{$}", u.changelog)
}

// AssetHandler serves the embedded stylesheet
func AssetHandler() http.HandlerFunc {
	assetsFS, _ := fs.Sub(files, "assets")

	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, AssetsPath)

		content, err := fs.ReadFile(assetsFS, path)
		if err != nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		if strings.HasSuffix(path, ".css") {
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(content)
	}
}

// pageData is what every template receives. Data holds the page's own
// values.
type pageData struct {
	Title     string
	Menu      []navigation.MenuItem
	Actor     *model.Actor
	ReturnURL string
	Errors    *model.ValidationErrors
	Data      any
}

func (u *UI) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any, errs *model.ValidationErrors) {
	actor := auth.ActorFrom(r.Context())
	pd := pageData{
		Title:     title,
		Menu:      navigation.Menu(actor.Permission),
		Actor:     actor,
		ReturnURL: returnURL(r, ""),
		Errors:    errs,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := u.pages[name].ExecuteTemplate(&buf, "layout", pd); err != nil {
		log.Error("Failed to render page", "page", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// renderError shows msg on the error page.
func (u *UI) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	u.render(w, r, status, "error", http.StatusText(status), msg, nil)
}

// internalError logs err and shows a generic error page.
func (u *UI) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error("Internal error", "path", r.URL.Path, "request_id", auth.RequestIDFrom(r.Context()), "error", err)
	u.renderError(w, r, http.StatusInternalServerError, "An internal error occurred.")
}

// require renders a 403 page unless the actor may perform action.
func (u *UI) require(w http.ResponseWriter, r *http.Request, action string) (*model.Actor, bool) {
	actor := auth.ActorFrom(r.Context())
	if !actor.Permission.Can(action) {
		log.Warn("Permission denied", "actor", actor.Name, "action", action, "path", r.URL.Path)
		u.renderError(w, r, http.StatusForbidden, "You do not have permission to perform this action.")
		return nil, false
	}
	return actor, true
}

// returnURL is the request's return_url when it is a local path, else
// fallback. An empty fallback means the current page.
func returnURL(r *http.Request, fallback string) string {
	if ret := r.FormValue("return_url"); isLocalPath(ret) {
		return ret
	}
	if fallback != "" {
		return fallback
	}
	return r.URL.RequestURI()
}

func isLocalPath(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func impactURL(id int64, suffix string) string {
	return fmt.Sprintf("%s%d/%s", navigation.BasePath, id, suffix)
}

// withReturn appends return_url to link.
func withReturn(link, ret string) string {
	if ret == "" {
		return link
	}
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	return link + sep + "return_url=" + url.QueryEscape(ret)
}

var funcs = template.FuncMap{
	"deref": func(v any) any {
		switch p := v.(type) {
		case *string:
			if p != nil {
				return *p
			}
		case *int64:
			if p != nil {
				return *p
			}
		case *bool:
			if p != nil {
				return *p
			}
		}
		return ""
	},
	"can":         func(a *model.Actor, action string) bool { return a.Permission.Can(action) },
	"impactURL":   impactURL,
	"withReturn":  withReturn,
	"basePath":    func() string { return navigation.BasePath },
	"assetsPath":  func() string { return AssetsPath },
	"fieldErrors": fieldErrors,
	"selected": func(id int64, current *int64) bool {
		return current != nil && *current == id
	},
}

func fieldErrors(errs *model.ValidationErrors, field string) []string {
	if errs == nil {
		return nil
	}
	return errs.Fields[field]
}
