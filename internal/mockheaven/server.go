package mockheaven

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// dashboardColumnHeight is how many ports stack in one dashboard column.
const dashboardColumnHeight = 8

var funcs = template.FuncMap{
	"ago": timeAgo,
	"bg": func(s Status) template.CSS {
		return template.CSS("background-color: " + s.Color())
	},
	"reversed": func(h []StageEntry) []StageEntry {
		out := make([]StageEntry, len(h))
		for i, e := range h {
			out[len(h)-1-i] = e
		}
		return out
	},
}

var pages = template.Must(template.New("").Funcs(funcs).Parse(`
{{define "portstatus"}}<table class="outer">{{range .}}<tr>{{range .}}<td>{{if .Label}}<table class="inner" style="{{bg .Status}}"><tr><td>{{if .LastUpdated.IsZero}}UNKN{{else}}{{ago .LastUpdated}}{{end}}</td><td><b><a href="/port/{{.Label}}/" target="_blank">{{.Label}}</a></b></td><td>{{.Status.Glyph}}</td></tr><tr><td colspan="3">{{or .Stage "UNKN"}}</td></tr><tr><td><button onclick="abortJob('{{.Label}}')">{{if .Status.IsFinished}}New Job{{else}}Abort Job{{end}}</button></td></tr></table>{{end}}</td>{{end}}</tr>{{end}}</table>{{end}}

{{define "header"}}<table><tr><td><b>{{.Label}}</b></td></tr><tr><td>Current stage:</td><td>{{or .Stage "UNKN"}}</td><td>Current status:</td><td style="{{bg .Status}}">{{.Status}}</td><td>Start time:</td><td>{{if .JobStarted.IsZero}}now{{else}}{{ago .JobStarted}}{{end}}</td><td>Last update:</td><td>{{if .LastUpdated.IsZero}}now{{else}}{{ago .LastUpdated}}{{end}}</td></tr><tr><td>Controls:</td><td><button onclick="abortJob()">{{if .Status.IsFinished}}New Job{{else}}Abort Job{{end}}</button></td></tr></table>{{end}}

{{define "devinfo"}}<table><tr><td><h3>Device Information:</h3><ul>{{range .Info}}<li>{{.}}</li>{{end}}</ul></td><td><h3>Stage history:</h3><ul>{{range reversed .History}}<li>{{.Stage}} ({{ago .At}})</li>{{end}}</ul></td></tr></table>{{end}}

{{define "index"}}<!DOCTYPE html><html><head><meta charset="utf-8"><script src="/assets/js/index.js"></script></head><body id="portstatus">{{template "portstatus" .}}</body></html>{{end}}

{{define "port"}}<!DOCTYPE html><html><head><meta charset="utf-8"></head><body><div id="header">{{template "header" .}}</div><div id="terminal"></div><div id="devinfo">{{template "devinfo" .}}</div><script src="/assets/js/port.js"></script></body></html>{{end}}
`))

// Server serves the mock heaven web surface.
type Server struct {
	store     *Store
	hub       *Hub
	authToken string
	logger    zerolog.Logger
}

// NewServer serves store and hub. An empty authToken disables auth.
func NewServer(store *Store, hub *Hub, authToken string, logger zerolog.Logger) *Server {
	return &Server{store: store, hub: hub, authToken: authToken, logger: logger}
}

// SetupRoutes installs heaven's pages, fragments, abort and serial routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /portstatus.html", s.handlePortStatus)
	mux.HandleFunc("GET /port/{label}/{$}", s.withPort(s.handlePortPage))
	mux.HandleFunc("GET /port/{label}/header.html", s.withPort(s.handleHeader))
	mux.HandleFunc("GET /port/{label}/devinfo.html", s.withPort(s.handleDevInfo))
	mux.HandleFunc("GET /port/{label}/abort", s.handleAbort)
	mux.HandleFunc("GET /port/{label}/serial", s.handleSerial)
}

// Handler returns a mux with every route installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.render(w, "index", columns(s.store.All()))
}

func (s *Server) handlePortStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.render(w, "portstatus", columns(s.store.All()))
}

func (s *Server) handlePortPage(w http.ResponseWriter, p Port) {
	s.render(w, "port", p)
}

func (s *Server) handleHeader(w http.ResponseWriter, p Port) {
	s.render(w, "header", p)
}

func (s *Server) handleDevInfo(w http.ResponseWriter, p Port) {
	s.render(w, "devinfo", p)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	label := r.PathValue("label")
	if !s.store.Abort(label) {
		http.Error(w, "Port not found", http.StatusNotFound)
		return
	}
	s.logger.Info().Str("port", label).Msg("job aborted")
	w.Write([]byte("OK"))
}

func (s *Server) handleSerial(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	label := r.PathValue("label")
	if _, ok := s.store.Get(label); !ok {
		http.Error(w, "Port not found", http.StatusNotFound)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("serial upgrade failed")
		return
	}

	c, ok := s.store.Attach(label, conn)
	if !ok {
		conn.Close()
		return
	}
	s.logger.Info().Str("port", label).Str("remote", r.RemoteAddr).Msg("serial client connected")

	go func() {
		defer func() {
			s.hub.remove(c)
			s.logger.Info().Str("port", label).Str("remote", r.RemoteAddr).Msg("serial client disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// The mock device echoes what is typed at it.
			s.store.AppendSerial(label, data)
		}
	}()
}

func (s *Server) withPort(fn func(http.ResponseWriter, Port)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		p, ok := s.store.Get(r.PathValue("label"))
		if !ok {
			http.Error(w, "Port not found", http.StatusNotFound)
			return
		}
		fn(w, p)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// columns lays ports out row by row so they read top-to-bottom in columns
// of dashboardColumnHeight, padding missing cells with zero Ports.
func columns(ports []Port) [][]Port {
	height := min(dashboardColumnHeight, len(ports))
	if height == 0 {
		return nil
	}
	width := (len(ports) + height - 1) / height
	rows := make([][]Port, height)
	for i := range rows {
		rows[i] = make([]Port, width)
		for j := 0; j < width; j++ {
			if n := j*height + i; n < len(ports) {
				rows[i][j] = ports[n]
			}
		}
	}
	return rows
}

func timeAgo(t time.Time) string {
	d := time.Since(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
