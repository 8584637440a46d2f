// Fakeservice stands in for the weight, billing and devops services so the
// dashboard can be run locally without them.
//
// Usage:
//
//	go run fakeservice.go -service weight -port 5000
//	go run fakeservice.go -service billing -port 5001 -down
//
// -down makes /health answer 503 and -delay slows every response.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"
)

type weighing struct {
	ID        int     `json:"id"`
	Direction string  `json:"direction"`
	Truck     string  `json:"truck,omitempty"`
	Bruto     float64 `json:"bruto,omitempty"`
	Datetime  string  `json:"datetime"`
}

type rate struct {
	Product string  `json:"product"`
	Rate    float64 `json:"rate"`
	Scope   string  `json:"scope"`
}

func main() {
	service := flag.String("service", "weight", "service to imitate: weight, billing or devops")
	port := flag.Int("port", 5000, "port to listen on")
	down := flag.Bool("down", false, "answer /health with 503")
	delay := flag.Duration("delay", 0, "delay before every response")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("service", *service))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if *down {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	switch *service {
	case "weight":
		mux.HandleFunc("GET /weight", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, weighings(30))
		})
		mux.HandleFunc("GET /unknown", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, []string{"C-1001", "C-1007", "K-2210"})
		})
	case "billing":
		mux.HandleFunc("GET /rates", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, []rate{
				{Product: "Navel", Rate: 93, Scope: "All"},
				{Product: "Blood", Rate: 112, Scope: "All"},
				{Product: "Mandarin", Rate: 104, Scope: "T-Provider-1"},
			})
		})
	case "devops":
	default:
		log.Error("unknown service")
		os.Exit(2)
	}

	handler := http.Handler(mux)
	if *delay > 0 {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(*delay)
			mux.ServeHTTP(w, r)
		})
	}

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting fake service", slog.String("addr", addr), slog.Bool("down", *down))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func weighings(n int) []weighing {
	out := make([]weighing, n)
	now := time.Now()
	for i := range out {
		w := weighing{
			ID:        1000 + i,
			Direction: []string{"in", "out", "none"}[i%3],
			Datetime:  now.Add(-time.Duration(i) * time.Minute).Format("20060102150405"),
		}
		// Leave some rows incomplete the way real records sometimes are.
		if i%4 != 3 {
			w.Truck = fmt.Sprintf("T-%02d", i%12)
			w.Bruto = float64(15000 + rand.IntN(20000))
		}
		out[i] = w
	}
	return out
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
