package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/transferstore"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleGames handles GET /api/v1/games
func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	games := s.client.GetOpenGames()
	out := make([]GameResponse, 0, len(games))
	for _, g := range games {
		resp := GameResponse{
			Index:     g.Index,
			Initiator: g.Initiator,
			Symbol:    g.Symbol,
			Amount:    g.Amount.String(),
			Display:   g.Amount.String(),
		}
		if a, err := asset.Lookup(g.Symbol); err == nil {
			resp.Display = a.FormatAmount(g.Amount)
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, QueryResponse{Data: out, LastFetched: s.client.GetCacheLastUpdate()})
}

// handleBalances handles GET /api/v1/balances
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, contract, ok := s.client.GetBalances()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "balances have not been fetched yet"})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Data:        BalancesResponse{User: snapshotResponse(user), Contract: snapshotResponse(contract)},
		LastFetched: s.client.GetCacheLastUpdate(),
	})
}

// handleTransfers handles GET /api/v1/transfers?limit=<n>
func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = n
	}

	transfers, err := s.client.ListTransfers(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list transfers")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Data: transfers, LastFetched: time.Now()})
}

// handleTransfer handles GET /api/v1/transfer?id=<tx_id>
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "id parameter is required"})
		return
	}

	transfer, err := s.client.GetTransfer(r.Context(), id)
	if errors.Is(err, transferstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("transfer %s not found", id)})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("tx_id", id).Msg("failed to load transfer")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Data: transfer, LastFetched: transfer.UpdatedAt})
}

func snapshotResponse(s cache.Snapshot) SnapshotResponse {
	out := SnapshotResponse{
		Holder:   s.Holder,
		Address:  s.Address,
		Balances: make(map[string]string, len(s.Balances)),
		TakenAt:  s.TakenAt,
	}
	for symbol, units := range s.Balances {
		if a, err := asset.Lookup(symbol); err == nil {
			out.Balances[symbol] = a.FormatAmount(units)
			continue
		}
		out.Balances[symbol] = units.String()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
