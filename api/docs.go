package api

import (
	"net/http"

	"keystone/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

// mountDocs serves the Swagger UI and doc.json under /docs/.
func (s *Server) mountDocs() {
	docs.SwaggerInfo.BasePath = s.settings.APIPrefix
	docs.SwaggerInfo.Version = s.settings.Version
	docs.SwaggerInfo.Title = s.settings.AppName + " API"

	s.router.Handle("/docs", http.RedirectHandler("/docs/index.html", http.StatusMovedPermanently))
	s.router.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))
}
