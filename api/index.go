package handler

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"abocaments-api/internal/config"
	"abocaments-api/internal/server"
)

var (
	handler     http.Handler
	mu          sync.Mutex
	initErr     error
	initialized bool
	ready       atomic.Bool
)

// initHandler initializes the HTTP handler once and reuses it across invocations.
// Uses double-checked locking for optimal performance in serverless environments.
// A failed initialization is remembered and returned on every later call.
//
// Note: clients are not explicitly closed as Vercel's serverless
// runtime handles resource cleanup on function termination.
func initHandler() error {
	// Fast path: check without lock (first check)
	if ready.Load() {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring lock
	if initialized {
		return initErr
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		initErr = err
		initialized = true
		return err
	}

	svcs, err := server.InitServices(context.Background(), cfg)
	if err != nil {
		log.Printf("Failed to initialize services: %v", err)
		initErr = err
		initialized = true
		return err
	}

	// Only set handler and mark as initialized after full successful initialization
	handler = server.CreateHandler(svcs, cfg)
	initialized = true
	initErr = nil
	ready.Store(true)

	log.Println("Handler initialized successfully")
	return nil
}

// Handler is the Vercel serverless function entry point
func Handler(w http.ResponseWriter, r *http.Request) {
	// Attempt initialization (will succeed immediately if already initialized)
	if err := initHandler(); err != nil {
		log.Printf("Handler initialization failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Delegate to the initialized handler
	handler.ServeHTTP(w, r)
}
