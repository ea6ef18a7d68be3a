package server

import (
	"net/http"

	"github.com/raterudder/powerstats/pkg/tariff"
)

type listSchemesResponse struct {
	Default string           `json:"default"`
	Schemes []*tariff.Scheme `json:"schemes"`
}

func (s *Server) handleListSchemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, listSchemesResponse{
		Default: s.schemes.Default(),
		Schemes: s.schemes.List(),
	})
}
