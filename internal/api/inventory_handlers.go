package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// getInventoryHandler reports the stock on hand of a catalog product or lot
func (s *Server) getInventoryHandler(w http.ResponseWriter, r *http.Request) {
	good, err := s.deps.Inventory.OnHand(r.Context(), mux.Vars(r)["goodId"])
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]interface{}{
		"good_id":    good.ID,
		"product_id": good.ProductID,
		"name":       good.Name,
		"source":     good.Source,
		"seller_id":  good.SellerID,
		"on_hand":    good.Quantity,
		"unit":       good.Unit,
	}})
}
