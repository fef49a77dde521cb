package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"

	httpapi "github.com/yourorg/catalog-sync/http"
)

func BuildRouter(apiKey string, retrieval httpapi.RetrievalDeps, sql httpapi.SQLDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(100, 1*time.Minute)) // protect the model quota
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })

	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireBearer(apiKey))
		httpapi.RegisterRetrieval(r, retrieval)
		httpapi.RegisterSQL(r, sql)
	})

	return r
}
