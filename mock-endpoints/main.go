// Command mock-endpoints runs webhook receivers for local testing: one that
// always succeeds, one that always fails, one that recovers after two
// retries and one that answers slowly.
package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Priya8975/hookline/internal/signature"
	"github.com/Priya8975/hookline/internal/worker"
)

// flakyRecoversAt is the retry count at which /webhook/flaky starts succeeding.
const flakyRecoversAt = 2

type receiver struct {
	secret   []byte
	requests atomic.Int64
	rejected atomic.Int64
	logger   *slog.Logger
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	rcv := &receiver{secret: []byte(os.Getenv("WEBHOOK_SECRET")), logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /webhook/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /webhook/success", rcv.handle(func(*http.Request) int { return http.StatusOK }))
	mux.HandleFunc("POST /webhook/fail", rcv.handle(func(*http.Request) int { return http.StatusInternalServerError }))
	mux.HandleFunc("POST /webhook/flaky", rcv.handle(func(r *http.Request) int {
		retry, _ := strconv.Atoi(r.Header.Get(worker.HeaderRetryCount))
		if retry < flakyRecoversAt {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}))
	mux.HandleFunc("POST /webhook/slow", rcv.handle(func(*http.Request) int {
		time.Sleep(3 * time.Second)
		return http.StatusOK
	}))
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{
			"total_requests":     rcv.requests.Load(),
			"rejected_signature": rcv.rejected.Load(),
		})
	})

	logger.Info("mock endpoint server starting",
		"port", port,
		"verify_signatures", len(rcv.secret) > 0,
		"routes", []string{"POST /webhook/success", "POST /webhook/fail", "POST /webhook/flaky", "POST /webhook/slow", "GET /stats"},
	)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// handle verifies the signature when a secret is configured, then answers
// with the status chosen by respond.
func (rcv *receiver) handle(respond func(*http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := rcv.requests.Add(1)

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		status := http.StatusUnauthorized
		if len(rcv.secret) == 0 || signature.Verify(body, rcv.secret, r.Header.Get(worker.HeaderSignature)) {
			status = respond(r)
		} else {
			rcv.rejected.Add(1)
		}

		rcv.logger.Info("webhook received",
			"count", count,
			"path", r.URL.Path,
			"status", status,
			"event_type", r.Header.Get(worker.HeaderEventType),
			"delivery_id", r.Header.Get(worker.HeaderDeliveryID),
			"attempt_id", r.Header.Get(worker.HeaderAttemptID),
			"retry_count", r.Header.Get(worker.HeaderRetryCount),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"status": http.StatusText(status)})
	}
}
