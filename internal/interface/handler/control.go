package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
	"assetgateway/internal/usecase"
)

const maxPushSize = 4 << 10

// ControlHandler はライフサイクル, プッシュ, クライアント操作のエンドポイントを提供する.
// 運用ポートにのみ載せる
type ControlHandler struct {
	dispatcher *usecase.Dispatcher
	clients    domain.ClientRegistry
	notifier   domain.Notifier
	logger     domain.Logger
}

// NewControlHandler は新しいControlHandlerインスタンスを作成
func NewControlHandler(
	dispatcher *usecase.Dispatcher,
	clients domain.ClientRegistry,
	notifier domain.Notifier,
	logger domain.Logger,
) *ControlHandler {
	return &ControlHandler{
		dispatcher: dispatcher,
		clients:    clients,
		notifier:   notifier,
		logger:     logger,
	}
}

// Register は制御用のルートを登録する
func (h *ControlHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /install", h.handleInstall)
	mux.HandleFunc("POST /activate", h.handleActivate)
	mux.HandleFunc("POST /push", h.handlePush)
	mux.HandleFunc("POST /notifications/{id}/click", h.handleNotificationClick)
	mux.HandleFunc("GET /notifications", h.handleListNotifications)
	mux.HandleFunc("POST /clients", h.handleRegisterClient)
	mux.HandleFunc("GET /clients", h.handleListClients)
}

func (h *ControlHandler) handleInstall(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), domain.InstallEvent{})
	if err != nil {
		var installErr *domain.InstallError
		if errors.As(err, &installErr) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ControlHandler) handleActivate(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), domain.ActivateEvent{})
	if err != nil {
		if errors.Is(err, domain.ErrNotInstalled) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ControlHandler) handlePush(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPushSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(data) > maxPushSize {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("push payload too large"))
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), domain.PushEvent{Data: data})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ControlHandler) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), domain.NotificationClickEvent{
		NotificationID: r.PathValue("id"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ControlHandler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.notifier.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ControlHandler) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	client, err := h.clients.Register(r.Context(), body.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (h *ControlHandler) handleListClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.clients.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
