package main

import (
	"context"
	"log"

	"classlive-be/internal/bootstrap"
	"classlive-be/internal/config"
	"classlive-be/internal/server"
	"classlive-be/internal/tracer"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	if err := container.NotifierService.Start(context.Background()); err != nil {
		log.Printf("Background Notifier Error: %v", err)
	}

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run Server
	log.Fatal(srv.Run())
}
