package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kirillkom/raglite/internal/core/domain"
)

func (rt *Router) queryChat(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	req, err := body.toDomain()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	out, err := rt.deps.Query.Resolve(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	switch out.Kind {
	case domain.OutcomeHitExact, domain.OutcomeHitSimilar:
		writeJSON(w, http.StatusOK, newQueryResponse(out))
	case domain.OutcomeGenerated:
		writeJSON(w, http.StatusCreated, newQueryResponse(out))
	case domain.OutcomeNotFound:
		writeJSON(w, http.StatusNotFound, messageResponse{Message: out.Message})
	default:
		msg := out.Message
		if msg == "" {
			msg = domain.MessageQueryFailed
		}
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msg})
	}
}

func (rt *Router) listChats(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	chats, err := rt.deps.Chats.List(r.Context(), opts)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Chat]{Items: chats, Limit: opts.Limit, Offset: opts.Offset})
}

func (rt *Router) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := rt.deps.Chats.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (rt *Router) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Chats.Delete(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
