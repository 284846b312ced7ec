package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
	"assetgateway/internal/usecase"
)

const (
	// HeaderCacheSource はレスポンスの取得元 (cache / network) を示す
	HeaderCacheSource = "X-Cache-Source"
	// HeaderResponseType は opaque レスポンスを示す
	HeaderResponseType = "X-Response-Type"
	// HeaderClientID はリクエスト元クライアントのID
	HeaderClientID = "X-Client-ID"

	// MaxRequestBodySize は転送するリクエストボディの上限
	MaxRequestBodySize = 8 << 20
)

var errRequestTooLarge = errors.New("request body too large")

// GatewayHandler はゲートウェイポートのHTTPリクエストを処理する.
// パスに関係なくすべてのリクエストがフェッチイベントになる
type GatewayHandler struct {
	dispatcher *usecase.Dispatcher
	resolver   usecase.Resolver
	clients    domain.ClientRegistry
	logger     domain.Logger
}

// NewGatewayHandler は新しいGatewayHandlerインスタンスを作成
func NewGatewayHandler(
	dispatcher *usecase.Dispatcher,
	resolver usecase.Resolver,
	clients domain.ClientRegistry,
	logger domain.Logger,
) *GatewayHandler {
	return &GatewayHandler{
		dispatcher: dispatcher,
		resolver:   resolver,
		clients:    clients,
		logger:     logger,
	}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := h.buildRequest(r)
	if err != nil {
		h.logger.Warn("Invalid request", map[string]interface{}{
			"url":   r.URL.String(),
			"error": err.Error(),
		})
		if errors.Is(err, errRequestTooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.ClientID != "" {
		h.clients.Touch(r.Context(), req.ClientID)
	}

	res, err := h.dispatcher.Dispatch(r.Context(), domain.FetchEvent{Request: req})
	if err != nil {
		h.writeFetchError(w, req, err)
		return
	}
	result := res.(*domain.FetchResult)

	h.logger.Debug("Fetch handled", map[string]interface{}{
		"id":     req.ID,
		"method": req.Method,
		"url":    req.URL.String(),
		"rule":   result.Rule,
		"source": string(result.Response.Source),
		"status": result.Response.Status,
	})
	writeResponse(w, result.Response)
}

// buildRequest はHTTPリクエストをゲートウェイのリクエストに変換する
func (h *GatewayHandler) buildRequest(r *http.Request) (*domain.Request, error) {
	target := r.URL.String()
	if !r.URL.IsAbs() {
		resolved, err := h.resolver.Resolve(r.URL.RequestURI())
		if err != nil {
			return nil, err
		}
		target = resolved
	}

	req, err := domain.NewRequest(r.Method, target)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	req.Destination = parseDestination(r.Header.Get("Sec-Fetch-Dest"))
	req.Mode = domain.Mode(strings.ToLower(r.Header.Get("Sec-Fetch-Mode")))
	req.ClientID = r.Header.Get(HeaderClientID)

	if r.Body != nil && r.Body != http.NoBody {
		data, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
		if err != nil {
			return nil, errors.Wrap(err, "read request body")
		}
		if len(data) > MaxRequestBodySize {
			return nil, errRequestTooLarge
		}
		if len(data) > 0 {
			req.Body = data
		}
	}
	return req, nil
}

func parseDestination(v string) domain.Destination {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "empty" {
		return domain.DestinationNone
	}
	return domain.Destination(v)
}

func (h *GatewayHandler) writeFetchError(w http.ResponseWriter, req *domain.Request, err error) {
	var fetchErr *domain.FetchError
	switch {
	case errors.As(err, &fetchErr):
		h.logger.Warn("Network fetch failed", map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		})
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		h.logger.Debug("Request canceled", map[string]interface{}{"url": req.URL.String()})
	default:
		h.logger.Error("Fetch handling failed", err, map[string]interface{}{"url": req.URL.String()})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// writeResponse はレスポンスを書き出す. opaque レスポンスは 200 として返す
func writeResponse(w http.ResponseWriter, resp *domain.Response) {
	header := w.Header()
	for k, vv := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	header.Set(HeaderCacheSource, string(resp.Source))

	status := resp.Status
	if resp.Opaque() {
		header.Set(HeaderResponseType, "opaque")
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(resp.Body)
}
