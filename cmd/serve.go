package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gbd-tools/harmonize-cli/internal/dataset"
	"github.com/gbd-tools/harmonize-cli/internal/model"
)

var (
	servePort   int
	serveData   string
	serveOutput string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a web form for reviewing escalated records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ds, err := dataset.Read(serveData)
		if err != nil {
			return err
		}

		rs := &reviewServer{
			ds:     ds,
			source: cfg.Resolution.SourceColumn,
			target: cfg.Resolution.TargetColumn,
			output: serveOutput,
		}
		for _, col := range []string{rs.source, rs.target, "escalation_reason"} {
			if !ds.HasColumn(col) {
				return eris.Errorf("serve: %s lacks column %q, is it a harmonized output file?", serveData, col)
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: rs.routes(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down review server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.S().Infow("review server listening", "port", port, "escalations", len(rs.escalations()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

// reviewServer holds the harmonized dataset being reviewed. Mappings
// applied through the API update the in-memory copy and rewrite the
// output file, so refreshing the form shows remaining escalations only.
type reviewServer struct {
	mu     sync.Mutex
	ds     *model.Dataset
	source string
	target string
	output string
}

type escalationRow struct {
	RecordID   int64  `json:"record_id"`
	SourceCode string `json:"source_code"`
	Reason     string `json:"reason"`
}

func (s *reviewServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", s.handleForm)
	r.Get("/api/escalations", s.handleEscalations)
	r.Post("/api/mappings", s.handleMappings)

	return r
}

func (s *reviewServer) escalations() []escalationRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []escalationRow
	for _, rec := range s.ds.Records {
		if rec.Values["escalation_reason"] == "" {
			continue
		}
		rows = append(rows, escalationRow{
			RecordID:   rec.ID,
			SourceCode: rec.Values[s.source],
			Reason:     rec.Values["escalation_reason"],
		})
	}
	return rows
}

func (s *reviewServer) handleEscalations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"escalations": s.escalations()})
}

func (s *reviewServer) handleMappings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mappings map[string]string `json:"mappings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Mappings) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mappings is required"})
		return
	}

	applied := s.apply(req.Mappings)

	if err := s.save(); err != nil {
		zap.S().Errorw("write reviewed output", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to write output"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "remaining": len(s.escalations())})
}

func (s *reviewServer) apply(mappings map[string]string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied int
	for i := range s.ds.Records {
		rec := &s.ds.Records[i]
		if rec.Values["escalation_reason"] == "" {
			continue
		}
		mapping, ok := mappings[strings.TrimSpace(rec.Values[s.source])]
		if !ok || mapping == "" {
			continue
		}
		rec.Values[s.target] = mapping
		rec.Values["mapping_strategy"] = "human"
		rec.Values["mapping_confidence"] = "1"
		rec.Values["escalation_reason"] = ""
		applied++
	}
	return applied
}

func (s *reviewServer) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dataset.WriteTableCSV(s.output, s.ds)
}

var formTemplate = template.Must(template.New("form").Parse(`<!doctype html>
<html>
<head><title>Harmonization Review</title></head>
<body>
<h1>Escalated records</h1>
{{if .}}
<table border="1" cellpadding="4">
<tr><th>Record</th><th>Source code</th><th>Reason</th></tr>
{{range .}}<tr><td>{{.RecordID}}</td><td>{{.SourceCode}}</td><td>{{.Reason}}</td></tr>
{{end}}
</table>
<p>POST mappings to <code>/api/mappings</code> as <code>{"mappings": {"SOURCE_CODE": "canonical_code"}}</code>.</p>
{{else}}
<p>Nothing left to review.</p>
{{end}}
</body>
</html>
`))

func (s *reviewServer) handleForm(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTemplate.Execute(w, s.escalations()); err != nil {
		zap.S().Errorw("render review form", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
	serveCmd.Flags().StringVar(&serveData, "data", "", "harmonized output file to review")
	serveCmd.Flags().StringVarP(&serveOutput, "output", "o", "", "where to write the reviewed file")
	_ = serveCmd.MarkFlagRequired("data")
	_ = serveCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(serveCmd)
}
