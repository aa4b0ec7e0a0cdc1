package services

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/label"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
	"github.com/Global-Optima/zeep-print-agent/internal/printqueue"
)

const DefaultAgentAddr = "127.0.0.1:42999"

// OrderView is the read side of the reconciler.
type OrderView interface {
	Orders() []model.Order
	Filtered() []model.Order
	Get(id int) (model.Order, bool)
	StatusCounts() map[model.OrderStatus]int
}

type QueueView interface {
	State() printqueue.State
	Len() int
}

// AgentServer is the local HTTP surface used by the in-store frontends: a
// health check, the POS terminal proxy, the order mirror and label settings.
type AgentServer struct {
	orders OrderView
	queue  QueueView
	store  kvstore.Store
	proxy  http.Handler
	logger *slog.Logger
}

func NewAgentServer(orders OrderView, queue QueueView, store kvstore.Store, logger *slog.Logger) *AgentServer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")
	return &AgentServer{
		orders: orders,
		queue:  queue,
		store:  store,
		proxy:  NewTerminalProxy(logger),
		logger: logger,
	}
}

func (s *AgentServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Local Agent is running!")
	})
	r.Handle("/proxy/*", s.proxy)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", s.listOrders)
		r.Get("/counts", s.statusCounts)
		r.Get("/{id}", s.getOrder)
	})
	r.Get("/print/queue", s.queueStatus)

	r.Route("/labels/geometry", func(r chi.Router) {
		r.Get("/{usage}", s.getGeometry)
		r.Put("/{usage}", s.putGeometry)
	})
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *AgentServer) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAgentAddr
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("local agent listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *AgentServer) listOrders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		writeJSON(w, http.StatusOK, s.orders.Orders())
		return
	}
	writeJSON(w, http.StatusOK, s.orders.Filtered())
}

func (s *AgentServer) statusCounts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orders.StatusCounts())
}

func (s *AgentServer) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, ok := s.orders.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *AgentServer) queueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   s.queue.State(),
		"pending": s.queue.Len(),
	})
}

func (s *AgentServer) getGeometry(w http.ResponseWriter, r *http.Request) {
	u, ok := usageParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown label usage")
		return
	}
	writeJSON(w, http.StatusOK, label.SavedGeometry(r.Context(), s.store, u))
}

func (s *AgentServer) putGeometry(w http.ResponseWriter, r *http.Request) {
	u, ok := usageParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown label usage")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no settings store configured")
		return
	}
	var g model.Geometry
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeError(w, http.StatusBadRequest, "invalid geometry body")
		return
	}
	if err := label.SaveGeometry(r.Context(), s.store, u, g); err != nil {
		if errors.Is(err, model.ErrInvalidGeometry) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to save label geometry", "usage", u, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save geometry")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func usageParam(r *http.Request) (label.Usage, bool) {
	u := label.Usage(chi.URLParam(r, "usage"))
	switch u {
	case label.UsageBarcode, label.UsageQR, label.UsageOrderQR:
		return u, true
	}
	return "", false
}

// NewTerminalProxy forwards /proxy/<path>?ip=&port=&proto= to
// <proto>://<ip>:<port>/<path>. POS terminals use self-signed certificates,
// so TLS verification is off for this hop.
func NewTerminalProxy(logger *slog.Logger) http.Handler {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		Proxy:           http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, err := proxyTarget(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		proxy := &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				path := strings.TrimPrefix(pr.In.URL.Path, "/proxy")
				if !strings.HasPrefix(path, "/") {
					path = "/" + path
				}
				pr.Out.URL.Path = path
				pr.Out.URL.RawPath = ""

				q := pr.In.URL.Query()
				q.Del("ip")
				q.Del("port")
				q.Del("proto")
				pr.Out.URL.RawQuery = q.Encode()
				logger.Debug("proxy request", "method", pr.Out.Method, "url", pr.Out.URL.String())
			},
			Transport: transport,
			ModifyResponse: func(resp *http.Response) error {
				logger.Debug("proxy response", "status", resp.StatusCode, "url", resp.Request.URL.String())
				return nil
			},
			ErrorHandler: func(rw http.ResponseWriter, _ *http.Request, err error) {
				logger.Warn("proxy error", "error", err)
				http.Error(rw, "Proxy error: "+err.Error(), http.StatusBadGateway)
			},
		}
		proxy.ServeHTTP(w, r)
	})
}

func proxyTarget(q url.Values) (*url.URL, error) {
	ip := q.Get("ip")
	if ip == "" {
		return nil, errors.New("missing 'ip' parameter")
	}
	port := q.Get("port")
	if port == "" {
		port = "8080"
	}
	proto := q.Get("proto")
	if proto == "" {
		proto = "http"
	}
	if proto != "http" && proto != "https" {
		return nil, fmt.Errorf("invalid 'proto' parameter %q", proto)
	}
	return &url.URL{Scheme: proto, Host: net.JoinHostPort(ip, port)}, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, accesstoken")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *AgentServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *AgentServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
