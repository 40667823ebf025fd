package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrestNiraj12/rantfeed/app"
	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/media"
)

const (
	maxJSONBody      = 64 << 10
	maxMultipartBody = media.MaxImageSize + 1<<20
)

// CreatePostRequest is the JSON body of POST /api/posts. Multipart
// requests carry the same fields as form values plus an "image" file.
type CreatePostRequest struct {
	Text     string `json:"text"`
	ImageAlt string `json:"imageAlt,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	success(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	posts, err := s.svc.Timeline.Latest(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, http.StatusOK, posts)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.svc.Posts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, http.StatusOK, post)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	profile, err := s.ensureProfile(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var in app.NewPost
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			s.fail(w, r, bodyError(err))
			return
		}
		defer r.MultipartForm.RemoveAll()
		in.Text = r.FormValue("text")
		in.ImageAlt = r.FormValue("imageAlt")
		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			in.Image = &app.Upload{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Body:        file,
			}
		case !errors.Is(err, http.ErrMissingFile):
			s.fail(w, r, bodyError(err))
			return
		}
	} else {
		var req CreatePostRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		in.Text, in.ImageAlt = req.Text, req.ImageAlt
	}

	post, err := s.svc.Posts.Create(r.Context(), profile, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, http.StatusCreated, post)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if err := s.svc.Posts.Delete(r.Context(), mux.Vars(r)["id"], id.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	state, err := s.svc.Engine.ToggleLike(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, http.StatusOK, state)
}

func (s *Server) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ensureProfile(r); err != nil {
		s.fail(w, r, err)
		return
	}
	id := identityFrom(r.Context())
	state, err := s.svc.Engine.ToggleFavorite(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, http.StatusOK, state)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	profile, err := s.ensureProfile(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, http.StatusOK, profile)
}

func (s *Server) myFavorites(w http.ResponseWriter, r *http.Request) {
	profile, err := s.ensureProfile(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	posts, err := s.svc.Profiles.Favorites(r.Context(), profile.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, http.StatusOK, posts)
}

func (s *Server) ensureProfile(r *http.Request) (domain.UserProfile, error) {
	id := identityFrom(r.Context())
	return s.svc.Profiles.Ensure(r.Context(), id.UserID, id.DisplayName)
}

// limitParam parses ?limit=; zero means the service default.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidArgument)
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrImageTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidArgument, err)
}
