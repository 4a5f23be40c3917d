package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-portal/internal/logging"
)

// The simulator registers one doctor and a crowd of patients over HTTP, then
// sends every patient at the same slot at once, round after round. Each round
// must end with exactly one booking.

type SimConfig struct {
	APIBaseURL string
	Racers     int
	Rounds     int
	Date       string
	ServiceID  string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pick(50), pick(95)
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	logger   *logging.Logger
	faker    *gofakeit.Faker
	doctorID string
	tokens   []string

	booking   OperationMetrics
	rounds    int
	violating []string
}

func main() {
	logger := logging.New(getEnv("LOG_LEVEL", "info")).With("component", "simulate")

	cfg := SimConfig{
		APIBaseURL: getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Racers:     getInt("SIM_RACERS", 20),
		Rounds:     getInt("SIM_ROUNDS", 5),
		Date:       getEnv("SIM_DATE", time.Now().AddDate(0, 0, 7).Format("2006-01-02")),
		ServiceID:  getEnv("SIM_SERVICE", "cavity-inspection"),
	}
	if cfg.Racers <= 1 || cfg.Rounds <= 0 {
		logger.Error("invalid config: SIM_RACERS must be > 1 and SIM_ROUNDS > 0")
		os.Exit(1)
	}
	logger.Info("simulator starting", "racers", cfg.Racers, "rounds", cfg.Rounds, "date", cfg.Date)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		faker:  gofakeit.New(uint64(time.Now().UnixNano())),
	}

	ctx := context.Background()
	if err := sim.Setup(ctx); err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}
	if err := sim.Run(ctx); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
	sim.PrintReport()

	if len(sim.violating) > 0 {
		os.Exit(2)
	}
}

// Setup registers the doctor and racers and logs every racer in.
func (s *Simulator) Setup(ctx context.Context) error {
	run := uuid.NewString()[:8]

	var doctor struct {
		ID string `json:"id"`
	}
	if _, err := s.call(ctx, http.MethodPost, "/auth/register", "", map[string]string{
		"fullName":  "Dr " + s.faker.LastName(),
		"email":     fmt.Sprintf("sim-doctor-%s@clinic.test", run),
		"password":  "simulate-pass",
		"role":      "doctor",
		"specialty": "General Dentistry",
	}, http.StatusCreated, &doctor); err != nil {
		return fmt.Errorf("register doctor: %w", err)
	}
	s.doctorID = doctor.ID

	for i := 0; i < s.config.Racers; i++ {
		email := fmt.Sprintf("sim-%s-%d@clinic.test", run, i)
		if _, err := s.call(ctx, http.MethodPost, "/auth/register", "", map[string]string{
			"fullName": s.faker.Name(),
			"email":    email,
			"password": "simulate-pass",
			"role":     "patient",
		}, http.StatusCreated, nil); err != nil {
			return fmt.Errorf("register racer %d: %w", i, err)
		}

		var sess struct {
			Token string `json:"token"`
		}
		if _, err := s.call(ctx, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    email,
			"password": "simulate-pass",
		}, http.StatusOK, &sess); err != nil {
			return fmt.Errorf("login racer %d: %w", i, err)
		}
		s.tokens = append(s.tokens, sess.Token)
	}
	s.logger.Info("setup complete", "doctor_id", s.doctorID, "racers", len(s.tokens))
	return nil
}

func (s *Simulator) Run(ctx context.Context) error {
	var slots []struct {
		Label string `json:"label"`
	}
	path := fmt.Sprintf("/slots?doctorId=%s&date=%s&serviceId=%s", s.doctorID, s.config.Date, s.config.ServiceID)
	if _, err := s.call(ctx, http.MethodGet, path, s.tokens[0], nil, http.StatusOK, &slots); err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	if len(slots) < s.config.Rounds {
		return fmt.Errorf("only %d open slots on %s, need %d", len(slots), s.config.Date, s.config.Rounds)
	}

	for round := 0; round < s.config.Rounds; round++ {
		label := slots[round].Label
		wins := s.race(ctx, label)
		s.rounds++
		if wins != 1 {
			s.violating = append(s.violating, fmt.Sprintf("%s: %d bookings", label, wins))
		}
		s.logger.Info("round complete", "slot", label, "bookings", wins)
	}
	return nil
}

// race fires every racer at label behind a shared start gate.
func (s *Simulator) race(ctx context.Context, label string) int64 {
	var (
		wg   sync.WaitGroup
		wins int64
	)
	gate := make(chan struct{})
	body := map[string]string{
		"doctorRef": s.doctorID,
		"serviceId": s.config.ServiceID,
		"date":      s.config.Date,
		"timeSlot":  label,
	}

	for _, token := range s.tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			<-gate

			start := time.Now()
			status, err := s.call(ctx, http.MethodPost, "/appointments", token, body, 0, nil)
			latency := time.Since(start)

			success := err == nil && status == http.StatusCreated
			conflict := err == nil && status == http.StatusConflict
			if success {
				atomic.AddInt64(&wins, 1)
			}
			s.booking.Record(latency, success, conflict)
		}(token)
	}

	close(gate)
	wg.Wait()
	return atomic.LoadInt64(&wins)
}

// call sends a JSON request. A non-zero want status is enforced; 429 answers
// are retried with backoff.
func (s *Simulator) call(ctx context.Context, method, path, token string, in any, want int, out any) (int, error) {
	var raw []byte
	if in != nil {
		var err error
		if raw, err = json.Marshal(in); err != nil {
			return 0, err
		}
	}

	backoff := 250 * time.Millisecond
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(raw))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return 0, err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests && attempt < 10 {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			continue
		}
		if want != 0 && resp.StatusCode != want {
			return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
			}
		}
		return resp.StatusCode, nil
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("BOOKING RACE REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Racers: %d\n", len(s.tokens))
	fmt.Printf("Rounds: %d\n", s.rounds)
	fmt.Println()

	printOperationReport("Booking", &s.booking)

	if len(s.violating) == 0 {
		fmt.Println("Every slot was booked exactly once.")
		return
	}
	fmt.Println("DOUBLE BOOKING OR EMPTY ROUND DETECTED:")
	for _, v := range s.violating {
		fmt.Println("  " + v)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
