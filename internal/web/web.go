package web

import (
    "bytes"
    "encoding/json"
    "fmt"
    "html/template"
    "io"
    "mime/multipart"
    "net/http"
    "path/filepath"
    "strings"

    cfgpkg "github.com/local/blinkpdf/internal/config"
    "github.com/local/blinkpdf/internal/statuscheck"
    "github.com/local/blinkpdf/internal/tools"
)

// Web serves the operator dashboard: login, tool list, upload form and
// job progress polling. It proxies to the public API rather than calling
// into the server package directly.
type Web struct {
    tpl      *template.Template
    username string
    password string
    apiBase  string
    checker  *statuscheck.Checker
    client   *http.Client
}

func New(conf cfgpkg.Config, checker *statuscheck.Checker) *Web {
    tpl := template.Must(template.ParseGlob(filepath.Join("web", "templates", "*.html")))
    apiBase := conf.HTTP.InternalBase
    if apiBase == "" {
        apiBase = "http://127.0.0.1" + conf.HTTP.Addr
    }
    return &Web{
        tpl:      tpl,
        username: conf.Web.Username,
        password: conf.Web.Password,
        apiBase:  strings.TrimRight(apiBase, "/"),
        checker:  checker,
        client:   http.DefaultClient,
    }
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/web/login", w.handleLogin)
    mux.HandleFunc("/web/logout", w.handleLogout)
    mux.HandleFunc("/web/", w.requireAuth(w.handleDashboard))
    mux.HandleFunc("/web/dashboard", w.requireAuth(w.handleDashboard))
    mux.HandleFunc("/web/upload", w.requireAuth(w.handleUpload))
    mux.HandleFunc("/web/progress/", w.requireAuth(w.handleProgress))
    mux.HandleFunc("/web/status", w.requireAuth(w.handleStatus))
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
    _ = w.tpl.ExecuteTemplate(wr, name, data)
}

func (w *Web) requireAuth(next http.HandlerFunc) http.HandlerFunc {
    return func(wr http.ResponseWriter, r *http.Request) {
        if w.username == "" || w.password == "" {
            http.Error(wr, "WEB_USERNAME/WEB_PASSWORD not set", http.StatusForbidden)
            return
        }
        c, err := r.Cookie("auth")
        if err != nil || c.Value != "1" {
            http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
            return
        }
        next(wr, r)
    }
}

func (w *Web) handleLogin(wr http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        w.render(wr, "login.html", map[string]any{"Error": r.URL.Query().Get("error")})
    case http.MethodPost:
        if err := r.ParseForm(); err != nil { http.Redirect(wr, r, "/web/login?error=invalid+form", http.StatusSeeOther); return }
        if r.Form.Get("username") == w.username && r.Form.Get("password") == w.password {
            http.SetCookie(wr, &http.Cookie{Name: "auth", Value: "1", Path: "/", HttpOnly: true})
            http.Redirect(wr, r, "/web/dashboard", http.StatusSeeOther)
            return
        }
        http.Redirect(wr, r, "/web/login?error=invalid+credentials", http.StatusSeeOther)
    default:
        wr.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (w *Web) handleLogout(wr http.ResponseWriter, r *http.Request) {
    http.SetCookie(wr, &http.Cookie{Name: "auth", Value: "", Path: "/", MaxAge: -1})
    http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
}

func (w *Web) handleDashboard(wr http.ResponseWriter, r *http.Request) {
    order, byCategory := groupByCategory(tools.Catalog())
    w.render(wr, "dashboard.html", map[string]any{
        "Username":   w.username,
        "Categories": order,
        "Tools":      byCategory,
    })
}

// groupByCategory buckets tools per category, keeping catalog order.
func groupByCategory(catalog []tools.Tool) ([]string, map[string][]tools.Tool) {
    byCategory := map[string][]tools.Tool{}
    order := []string{}
    for _, t := range catalog {
        cat := string(t.Category)
        if _, ok := byCategory[cat]; !ok {
            order = append(order, cat)
        }
        byCategory[cat] = append(byCategory[cat], t)
    }
    return order, byCategory
}

// handleUpload proxies the dashboard's multipart form to POST /api/process.
func (w *Web) handleUpload(wr http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { wr.WriteHeader(http.StatusMethodNotAllowed); return }
    if err := r.ParseMultipartForm(64 << 20); err != nil { http.Error(wr, "invalid multipart form", 400); return }

    var b bytes.Buffer
    mw := multipart.NewWriter(&b)

    files := r.MultipartForm.File["files"]
    if len(files) == 0 {
        files = r.MultipartForm.File["file"]
    }
    if len(files) == 0 { http.Error(wr, "missing file", 400); return }
    for _, hdr := range files {
        f, err := hdr.Open()
        if err != nil { http.Error(wr, "upload error", 500); return }
        fw, err := mw.CreateFormFile("files", hdr.Filename)
        if err != nil { f.Close(); http.Error(wr, "upload error", 500); return }
        if _, err := io.Copy(fw, f); err != nil { f.Close(); http.Error(wr, "upload error", 500); return }
        f.Close()
    }

    for k, vs := range r.MultipartForm.Value {
        if len(vs) == 0 { continue }
        _ = mw.WriteField(k, vs[0])
    }
    _ = mw.Close()

    req, _ := http.NewRequestWithContext(r.Context(), http.MethodPost, w.apiBase+"/api/process", &b)
    req.Header.Set("Content-Type", mw.FormDataContentType())
    resp, err := w.client.Do(req)
    if err != nil { http.Error(wr, "request failed", 500); return }
    defer resp.Body.Close()
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(resp.StatusCode)
    io.Copy(wr, resp.Body)
}

func (w *Web) handleProgress(wr http.ResponseWriter, r *http.Request) {
    jobID := strings.TrimPrefix(r.URL.Path, "/web/progress/")
    if jobID == "" { http.Error(wr, "missing job id", 400); return }
    resp, err := w.client.Get(fmt.Sprintf("%s/api/jobs/%s", w.apiBase, jobID))
    if err != nil { http.Error(wr, "progress failed", 500); return }
    defer resp.Body.Close()
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(resp.StatusCode)
    io.Copy(wr, resp.Body)
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
    if w.checker == nil {
        http.Error(wr, "status checks not configured", http.StatusServiceUnavailable)
        return
    }
    summary := w.checker.Summary(r.Context())
    wr.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(wr).Encode(summary)
}
