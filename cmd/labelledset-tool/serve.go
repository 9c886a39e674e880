package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	labelledset "github.com/PeaPodTechnologies/LabelledSet"
	"github.com/PeaPodTechnologies/LabelledSet/feed"
	"github.com/PeaPodTechnologies/LabelledSet/messaging"
	"github.com/PeaPodTechnologies/LabelledSet/store"
	"github.com/gorilla/handlers"
)

var refs = []string{
	"/",
	"/groups/{key}",
	"/values/{value}",
	"/debug/stats",
}

func serve(ctx context.Context, factory messaging.SessionFactory, _ []string) error {
	stor := store.NewDefaultCachingStore(store.CacheConfig{
		FoldKeys: FoldKeys,
		Set:      labelledset.Config{Buckets: Buckets},
		EventHandlers: store.EventHandlerFuncs{
			OnAdd: func(entry store.Entry) {
				slog.Debug("group added", slog.String("key", entry.Key), slog.Any("values", entry.Values))
			},
			OnChange: func(_, curr store.Entry) {
				slog.Debug("group changed", slog.String("key", curr.Key), slog.Any("values", curr.Values))
			},
			OnDelete: func(entry store.Entry) {
				slog.Debug("group deleted", slog.String("key", entry.Key))
			},
		},
	})
	dispatchReg := &store.DispatchRegistry{}
	dispatchReg.RegisterStore(Address, stor)
	dispatcher := dispatchReg.NewDispatcher(store.SourceRef{Type: "amqp", Name: Address})

	listener := feed.NewListener(factory, feed.ListenerOptions{})
	defer listener.Close()
	listener.OnMessage(func(ctx context.Context, _ string, msg interface{}) {
		dispatcher.Dispatch(ctx, msg)
	})
	if err := listener.Listen(ctx, Address); err != nil {
		return fmt.Errorf("error starting listener: %w", err)
	}

	srv := &http.Server{
		Addr:              Listen,
		Handler:           handlers.LoggingHandler(os.Stdout, newServer(stor)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	slog.Info("Starting server", slog.String("listen", Listen), slog.String("address", Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type server struct {
	stor   store.Interface
	source store.SourceRef
}

func newServer(stor store.Interface) http.Handler {
	s := server{stor: stor, source: store.SourceRef{Type: "http", Name: "api"}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.list)
	mux.HandleFunc("GET /groups/{key}", s.getGroup)
	mux.HandleFunc("PUT /groups/{key}", s.assignGroup)
	mux.HandleFunc("DELETE /groups/{key}", s.dropGroup)
	mux.HandleFunc("GET /values/{value}", s.getOwner)
	mux.HandleFunc("DELETE /values/{value}", s.removeValue)
	mux.HandleFunc("GET /debug/stats", s.stats)
	mux.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusNotFound, GroupsResponse{
			Error: fmt.Sprintf("no route to %s %q", r.Method, r.URL.Path),
			Refs:  refs,
		})
	})
	return mux
}

func (s server) list(rw http.ResponseWriter, r *http.Request) {
	var response GroupsResponse
	response.Refs = refs
	var sel store.Selector
	query := r.URL.Query()
	for name, dst := range map[string]*int{"offset": &sel.Offset, "limit": &sel.Limit} {
		if raw := query.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				response.Error = fmt.Sprintf("invalid %s: %s", name, err)
				writeJSON(rw, http.StatusBadRequest, response)
				return
			}
			*dst = n
		}
	}
	sel.Continue = query.Get("continue")
	out, err := s.stor.List(r.Context(), &sel)
	if err != nil {
		response.Error = err.Error()
		writeJSON(rw, http.StatusBadRequest, response)
		return
	}
	response.Data = out.Entries
	response.Continue = out.Continue
	writeJSON(rw, http.StatusOK, response)
}

func (s server) getGroup(rw http.ResponseWriter, r *http.Request) {
	single, err := s.stor.Get(r.Context(), r.PathValue("key"))
	s.writeSingle(rw, single, err)
}

func (s server) getOwner(rw http.ResponseWriter, r *http.Request) {
	value, err := strconv.ParseInt(r.PathValue("value"), 10, 64)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, GroupResponse{Error: fmt.Sprintf("invalid value: %s", err)})
		return
	}
	single, err := s.stor.Owner(r.Context(), value)
	s.writeSingle(rw, single, err)
}

func (s server) writeSingle(rw http.ResponseWriter, single store.Single, err error) {
	if err != nil {
		writeJSON(rw, statusFor(err), GroupResponse{Error: err.Error()})
		return
	}
	if !single.Found {
		writeJSON(rw, http.StatusNotFound, GroupResponse{Error: store.ErrNotFound.Error()})
		return
	}
	rw.Header().Set("ETag", single.ETag)
	writeJSON(rw, http.StatusOK, GroupResponse{Data: &single.Entry})
}

func (s server) assignGroup(rw http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, GroupResponse{Error: fmt.Sprintf("invalid request body: %s", err)})
		return
	}
	ctx := conditionals(r)
	entry, err := s.stor.Assign(ctx, store.Assignment{
		Source:    s.source,
		Key:       r.PathValue("key"),
		Values:    req.Values,
		Overwrite: req.Overwrite,
	})
	if err != nil {
		writeJSON(rw, statusFor(err), GroupResponse{Error: err.Error()})
		return
	}
	if single, err := s.stor.Get(r.Context(), entry.Key); err == nil && single.Found {
		rw.Header().Set("ETag", single.ETag)
	}
	writeJSON(rw, http.StatusOK, GroupResponse{Data: &entry})
}

func (s server) dropGroup(rw http.ResponseWriter, r *http.Request) {
	if err := s.stor.Drop(conditionals(r), r.PathValue("key")); err != nil {
		writeJSON(rw, statusFor(err), StatusResponse{Error: err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, StatusResponse{Status: "dropped"})
}

func (s server) removeValue(rw http.ResponseWriter, r *http.Request) {
	value, err := strconv.ParseInt(r.PathValue("value"), 10, 64)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, StatusResponse{Error: fmt.Sprintf("invalid value: %s", err)})
		return
	}
	if err := s.stor.Remove(r.Context(), value); err != nil {
		writeJSON(rw, statusFor(err), StatusResponse{Error: err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, StatusResponse{Status: "removed"})
}

func (s server) stats(rw http.ResponseWriter, r *http.Request) {
	inspector, ok := s.stor.(store.Inspector)
	if !ok {
		writeJSON(rw, http.StatusNotImplemented, StatusResponse{Error: "store does not support inspection"})
		return
	}
	response := StatsResponse{Data: inspector.Stats(), Check: "ok"}
	status := http.StatusOK
	if err := inspector.Check(); err != nil {
		response.Check = err.Error()
		status = http.StatusInternalServerError
	}
	writeJSON(rw, status, response)
}

func conditionals(r *http.Request) context.Context {
	ctx := r.Context()
	if r.Header.Get("If-None-Match") == "*" {
		ctx = store.WithIfNoneMatch(ctx)
	}
	if etag := r.Header.Get("If-Match"); etag != "" {
		ctx = store.WithIfMatch(ctx, etag)
	}
	return ctx
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrVersionMismatch), errors.Is(err, store.ErrExists):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, body any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		slog.Error("error writing response", slog.Any("error", err))
	}
}
