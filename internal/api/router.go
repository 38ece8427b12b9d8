package api

import (
	"net/http"
)

func NewRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/webhooks/convai", handler.Webhook)
	mux.HandleFunc("/v1/uploads/init", handler.UploadInit)
	mux.HandleFunc("/v1/uploads/urls", handler.UploadURLs)
	mux.HandleFunc("/v1/uploads/complete", handler.UploadComplete)
	mux.HandleFunc("/v1/simulations/", handler.Simulation)
	mux.HandleFunc("/healthz", handler.Health)

	return mux
}
