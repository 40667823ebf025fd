// Package httpapi exposes the toggle engine and the feed services over
// HTTP and WebSocket.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/app"
	"github.com/CrestNiraj12/rantfeed/infra/auth"
)

// Verifier authenticates bearer tokens.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Services are the application services the routes call.
type Services struct {
	Engine   *app.ToggleEngine
	Posts    *app.PostService
	Profiles *app.ProfileService
	Timeline *app.TimelineService
}

// Options are optional router settings.
type Options struct {
	// Media serves locally stored images under /media/ when set.
	Media http.Handler
	// CheckOrigin overrides the websocket origin check.
	CheckOrigin func(r *http.Request) bool
}

// Server holds the handlers' dependencies.
type Server struct {
	svc      Services
	verifier Verifier
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewRouter builds the HTTP handler of the API.
func NewRouter(svc Services, verifier Verifier, opts Options, log *zap.Logger) http.Handler {
	s := &Server{
		svc:      svc,
		verifier: verifier,
		log:      log.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/posts", s.listPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts", s.requireAuth(s.createPost)).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", s.getPost).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", s.requireAuth(s.deletePost)).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id}/like", s.requireAuth(s.toggleLike)).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}/favorite", s.requireAuth(s.toggleFavorite)).Methods(http.MethodPost)
	api.HandleFunc("/me", s.requireAuth(s.me)).Methods(http.MethodGet)
	api.HandleFunc("/me/favorites", s.requireAuth(s.myFavorites)).Methods(http.MethodGet)
	api.HandleFunc("/stream/posts", s.streamTimeline).Methods(http.MethodGet)
	api.HandleFunc("/stream/posts/{id}", s.streamPost).Methods(http.MethodGet)

	if opts.Media != nil {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", opts.Media)).Methods(http.MethodGet, http.MethodHead)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, APIResponse{Error: "no such route", Code: CodeNotFound})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Error: "method not allowed", Code: CodeInvalidArgument})
	})
	return r
}
