// README: Bench cases: store connectivity, schema, the cost -> offer flow, concurrent transitions and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

var schemaTables = []string{"cost_settings", "costs", "cost_history", "offers", "offer_history", "ai_usage"}

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// state carried between flow cases
	costID  string
	offerID string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Schema: tables exist", Run: checkSchema},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodGet, "/health", nil, http.StatusOK)
			return res
		}},
		{Name: "Settings: active version", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodGet, "/api/settings/global/active", nil, http.StatusOK)
			return res
		}},
		{Name: "Cost: calculate DE 100km", Run: calculateCost},
		{Name: "Cost: empty segments -> 422", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/costs", map[string]any{"segments": []any{}}, http.StatusUnprocessableEntity)
			return res
		}},
		{Name: "Cost: finalize", Run: func(ctx context.Context, r *Runner) Result {
			if r.costID == "" {
				return Result{Status: StatusSkip, Note: "no cost calculated"}
			}
			res, _ := r.call(ctx, http.MethodPost, "/api/costs/"+r.costID+"/finalize", nil, http.StatusOK)
			return res
		}},
		{Name: "Offer: create from cost", Run: createOffer},
		{Name: "Offer: concurrent accept, one winner", Run: concurrentAccept},
		{Name: "Offer: terminal status rejects margin change", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return Result{Status: StatusSkip, Note: "no offer created"}
			}
			res, _ := r.call(ctx, http.MethodPatch, "/api/offers/"+r.offerID, map[string]any{"margin": "0.3"}, http.StatusUnprocessableEntity)
			return res
		}},
		{Name: "Perf: cost calculation throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, "/api/costs", sampleRoute())
		}},
	}
}

func sampleRoute() map[string]any {
	return map[string]any{
		"segments": []map[string]any{{"country": "DE", "distance_km": "100", "duration_hours": "2"}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkSchema(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	for _, t := range schemaTables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass}
}

func calculateCost(ctx context.Context, r *Runner) Result {
	res, body := r.call(ctx, http.MethodPost, "/api/costs", sampleRoute(), http.StatusCreated)
	if res.Status != StatusPass {
		return res
	}
	var out struct {
		ID        string `json:"id"`
		Breakdown struct {
			TotalCost string `json:"total_cost"`
		} `json:"breakdown"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	r.costID = out.ID
	res.Note = "total=" + out.Breakdown.TotalCost
	return res
}

func createOffer(ctx context.Context, r *Runner) Result {
	if r.costID == "" {
		return Result{Status: StatusSkip, Note: "no cost calculated"}
	}
	res, body := r.call(ctx, http.MethodPost, "/api/offers", map[string]any{
		"cost_id": r.costID,
		"margin":  "0.2",
	}, http.StatusCreated)
	if res.Status != StatusPass {
		return res
	}
	var out struct {
		ID         string `json:"id"`
		FinalPrice string `json:"final_price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	r.offerID = out.ID
	res.Note = "final_price=" + out.FinalPrice
	return res
}

func concurrentAccept(ctx context.Context, r *Runner) Result {
	if r.offerID == "" {
		return Result{Status: StatusSkip, Note: "no offer created"}
	}
	if res, _ := r.call(ctx, http.MethodPatch, "/api/offers/"+r.offerID, map[string]any{"status": "ACTIVE"}, http.StatusOK); res.Status != StatusPass {
		return res
	}

	var succ, rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := r.send(ctx, http.MethodPatch, "/api/offers/"+r.offerID, map[string]any{"status": "ACCEPTED"})
			if err != nil {
				return
			}
			switch code {
			case http.StatusOK:
				succ.Add(1)
			case http.StatusConflict, http.StatusUnprocessableEntity:
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d rejected=%d", succ.Load(), rejected.Load())
	if succ.Load() == 1 {
		return Result{Status: StatusPass, Note: note}
	}
	return Result{Status: StatusFail, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, err := r.send(ctx, http.MethodPost, path, payload)
				if err != nil || code >= http.StatusInternalServerError {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

// call sends a request and passes when the response status equals want.
func (r *Runner) call(ctx context.Context, method, path string, body any, want int) (Result, []byte) {
	start := time.Now()
	resp, err := r.do(ctx, method, path, body)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}, nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	res := Result{Latency: time.Since(start), Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	if resp.StatusCode == want {
		res.Status = StatusPass
	} else {
		res.Status = StatusFail
	}
	return res, data
}

func (r *Runner) send(ctx context.Context, method, path string, body any) (int, error) {
	resp, err := r.do(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (r *Runner) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	return r.httpc.Do(req)
}
