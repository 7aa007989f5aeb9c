package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/pkg/platform/content"
	"github.com/mind-engage/lti-platform/pkg/platform/shortcode"
)

// PostReq is the body of a post create or update.
type PostReq struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// PostView is a stored post plus the ids of the tool links it embeds.
type PostView struct {
	content.Post
	Links []string `json:"links"`
}

func postView(p content.Post) PostView {
	v := PostView{Post: p, Links: []string{}}
	for _, sc := range shortcode.Parse(p.Content) {
		if id := sc.Attr("id"); id != "" {
			v.Links = append(v.Links, id)
		}
	}
	return v
}

func (a *API) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := a.Posts.List(r.Context())
	if err != nil {
		a.log().Error("list posts failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "unable to list posts")
		return
	}
	out := make([]PostView, 0, len(posts))
	for _, p := range posts {
		out = append(out, postView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	var req PostReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	a.savePost(w, r, content.Post{}, req, http.StatusCreated)
}

func (a *API) getPost(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadPost(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, postView(p))
}

func (a *API) updatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadPost(w, r)
	if !ok {
		return
	}
	var req PostReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	a.savePost(w, r, p, req, http.StatusOK)
}

func (a *API) savePost(w http.ResponseWriter, r *http.Request, p content.Post, req PostReq, status int) {
	switch st := strings.TrimSpace(req.Status); st {
	case "":
	case content.StatusPublish, content.StatusDraft, content.StatusPrivate:
		p.Status = st
	default:
		writeErr(w, http.StatusBadRequest, "status must be publish, draft or private")
		return
	}
	p.Title = strings.TrimSpace(req.Title)
	p.Content = req.Content
	saved, err := a.Posts.Save(r.Context(), p)
	if err != nil {
		a.log().Error("save post failed", zap.Int64("id", p.ID), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, noticeSaveFailed)
		return
	}
	writeJSON(w, status, postView(saved))
}

func (a *API) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	err := a.Posts.Delete(r.Context(), id)
	switch {
	case errors.Is(err, content.ErrNotFound):
		writeErr(w, http.StatusNotFound, "post not found")
	case err != nil:
		a.log().Error("delete post failed", zap.Int64("id", id), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "unable to delete the post")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) loadPost(w http.ResponseWriter, r *http.Request) (content.Post, bool) {
	id, ok := postID(w, r)
	if !ok {
		return content.Post{}, false
	}
	p, err := a.Posts.Get(r.Context(), id)
	if errors.Is(err, content.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "post not found")
		return content.Post{}, false
	}
	if err != nil {
		a.log().Error("load post failed", zap.Int64("id", id), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "unable to load the post")
		return content.Post{}, false
	}
	return p, true
}

func postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid post id")
		return 0, false
	}
	return id, true
}
