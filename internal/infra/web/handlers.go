// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps domain failures to 400 and everything else to 500.
// Infrastructure details never reach the response body.
func statusForError(err error) int {
	for _, sentinel := range []error{
		domain.ErrInvalidArgument,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrCardKeyNotFound,
		domain.ErrCardKeyAlreadyUsed,
		domain.ErrCardKeyExpired,
		domain.ErrCodeNotFound,
		domain.ErrCodeAlreadyUsed,
		domain.ErrInsufficientPoints,
		domain.ErrConfigMissing,
	} {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// ===== admin: card keys =====

type cardKeysCreateRequest struct {
	Type  model.CardKeyType `json:"type"`
	Count int               `json:"count"`
}

// mintedKey carries the plaintext back to the admin. This response is the
// only place the plaintext ever appears.
type mintedKey struct {
	Key       string            `json:"key"`
	KeyType   model.CardKeyType `json:"keyType"`
	ExpiresAt string            `json:"expiresAt"`
}

func (s *Server) cardKeysCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardKeysCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		keys, err := s.keysUC.Create(r.Context(), req.Type, req.Count)
		if err != nil {
			s.fail(w, err)
			return
		}
		out := make([]mintedKey, 0, len(keys))
		for _, k := range keys {
			out = append(out, mintedKey{Key: k.Key, KeyType: k.KeyType, ExpiresAt: k.ExpiresAt.Format("2006-01-02 15:04:05")})
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"keys": out})
	}
}

func (s *Server) cardKeysListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.keysUC.List(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

func (s *Server) cardKeysStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.keysUC.Count(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func (s *Server) cardKeysExportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		csv, err := s.keysUC.ExportCSV(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="cardkeys.csv"`)
		_, _ = w.Write([]byte(csv))
	}
}

func (s *Server) cardKeysCleanupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cleaned, err := s.keysUC.CleanupExpired(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"cleaned": cleaned})
	}
}

func (s *Server) cardKeysDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := chi.URLParam(r, "hash")
		deleted, err := s.keysUC.DeleteUnused(r.Context(), hash)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	}
}

// ===== admin: activation codes =====

type codesCreateRequest struct {
	Count int `json:"count"`
}

func (s *Server) codesCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req codesCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		claims := sessionFromContext(r.Context())
		codes, err := s.codesUC.CreateCodes(r.Context(), req.Count, claims.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"codes": codes})
	}
}

func (s *Server) codesListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, err := s.codesUC.List(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, codes)
	}
}

func (s *Server) codesExportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		csv, err := s.codesUC.ExportCSV(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="activation-codes.csv"`)
		_, _ = w.Write([]byte(csv))
	}
}

func (s *Server) codesDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		deleted, err := s.codesUC.Delete(r.Context(), code)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	}
}

// ===== admin: points and invitation config =====

type pointsAdjustRequest struct {
	Username string `json:"username"`
	Type     string `json:"type"` // "add" | "deduct"
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

func (s *Server) pointsAdjustHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pointsAdjustRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		claims := sessionFromContext(r.Context())
		if err := s.pointsUC.AdminAdjust(r.Context(), req.Username, req.Type, req.Amount, req.Reason, claims.Username); err != nil {
			s.fail(w, err)
			return
		}
		balance, err := s.pointsUC.GetBalance(r.Context(), req.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
	}
}

func (s *Server) pointsUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := s.pointsUC.ListAccounts(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func (s *Server) pointsAdminHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")
		if username == "" {
			http.Error(w, "username is required", http.StatusBadRequest)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		records, err := s.pointsUC.GetHistory(r.Context(), username, page, pageSize)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) inviteConfigGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.inviteCfg.Get(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func (s *Server) inviteConfigPutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg model.InvitationConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		updated, err := s.inviteCfg.Update(r.Context(), &cfg)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// ===== user surface =====

type bindCardKeyRequest struct {
	CardKey string `json:"cardKey"`
}

func (s *Server) bindCardKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bindCardKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		claims := sessionFromContext(r.Context())
		if err := s.keysUC.Bind(r.Context(), req.CardKey, claims.Username); err != nil {
			s.fail(w, err)
			return
		}
		view, err := s.keysUC.GetUserCardKey(r.Context(), claims.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "cardKey": view})
	}
}

func (s *Server) cardKeyStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := sessionFromContext(r.Context())
		view, err := s.keysUC.GetUserCardKey(r.Context(), claims.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"cardKey": view})
	}
}

func (s *Server) ownedCardKeysHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := sessionFromContext(r.Context())
		keys, err := s.keysUC.ListByUser(r.Context(), claims.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

func (s *Server) redeemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := sessionFromContext(r.Context())
		result, err := s.redeemUC.RedeemForCardKey(r.Context(), claims.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) pointsBalanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := sessionFromContext(r.Context())
		balance, err := s.pointsUC.GetBalance(r.Context(), claims.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
	}
}

func (s *Server) pointsHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := sessionFromContext(r.Context())
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		records, err := s.pointsUC.GetHistory(r.Context(), claims.Username, page, pageSize)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) invitationInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := sessionFromContext(r.Context())
		info, err := s.inviteUC.GetUserInvitationInfo(r.Context(), claims.Username)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// ===== invitation (service-to-service) =====

type invitationValidateRequest struct {
	Code string `json:"code"`
}

func (s *Server) invitationValidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invitationValidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		valid, inviter, err := s.inviteUC.ValidateCode(r.Context(), req.Code)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"valid": valid, "inviter": inviter})
	}
}

type codeValidateRequest struct {
	Code string `json:"code"`
}

func (s *Server) codeValidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req codeValidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		valid, err := s.codesUC.Validate(r.Context(), req.Code)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
	}
}

type codeUseRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

func (s *Server) codeUseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req codeUseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.codesUC.Use(r.Context(), req.Code, req.Username); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type invitationReferralRequest struct {
	Code    string `json:"code"`
	Invitee string `json:"invitee"`
	IP      string `json:"ip"`
}

// invitationReferralHandler records a referred registration and pays the
// reward. An invitee with an existing relation is reported, not failed, so
// the account service can treat registration replays as idempotent.
func (s *Server) invitationReferralHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invitationReferralRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		valid, inviter, err := s.inviteUC.ValidateCode(r.Context(), req.Code)
		if err != nil {
			s.fail(w, err)
			return
		}
		if !valid {
			http.Error(w, "invalid invitation code", http.StatusBadRequest)
			return
		}
		if err := s.inviteUC.CreateReferral(r.Context(), inviter, req.Invitee, req.Code, req.IP); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				writeJSON(w, http.StatusOK, map[string]bool{"recorded": false, "rewarded": false})
				return
			}
			s.fail(w, err)
			return
		}
		rewarded, err := s.inviteUC.RewardForInvitation(r.Context(), inviter, req.Invitee, req.IP)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"recorded": true, "rewarded": rewarded})
	}
}
