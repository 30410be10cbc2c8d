package rpc

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	order, err := s.engine.Order(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrder(order))
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.engine.Receipt(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReceipt(receipt))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quote, err := s.engine.QuoteRepayment(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuote(quote))
}

func (s *Server) handleGetAttestation(w http.ResponseWriter, r *http.Request) {
	chain, err := uintParam(r, "chain", 32)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lock, err := uintParam(r, "lock", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.engine.Attestation(uint32(chain), lock)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttestation(rec))
}

func (s *Server) handleGetWitnesses(w http.ResponseWriter, r *http.Request) {
	s.respondWitnesses(w, r)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	global, err := s.engine.Global()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.engine.Config()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResult{Admin: ledgerString(global.Admin), Config: newConfig(cfg)})
}

func (s *Server) handleGetRelayFee(w http.ResponseWriter, r *http.Request) {
	chain, err := uintParam(r, "chain", 32)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fee, err := s.engine.RelayFee(uint32(chain))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RelayFee{ChainID: uint32(chain), Fee: Quantity(fee)})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseLedgerAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondAccount(w, r, addr)
}

// handleEvents pages through the event log: ?after=<seq>&limit=<n>.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var after uint64
	if raw := query.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, invalidParam(fmt.Errorf("after: invalid value %q", raw)))
			return
		}
		after = v
	}
	limit := defaultEventsLimit
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeError(w, r, invalidParam(fmt.Errorf("limit: invalid value %q", raw)))
			return
		}
		limit = v
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	records := s.events.Since(after, limit)
	out := EventsResult{Events: make([]EventRecord, 0, len(records)), LastSeq: s.events.LastSeq()}
	for _, rec := range records {
		out.Events = append(out.Events, EventRecord{Seq: rec.Seq, Type: rec.Event.Type, Attributes: rec.Event.Attributes})
	}
	writeJSON(w, http.StatusOK, out)
}
