package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"abocaments-api/internal/config"
	"abocaments-api/internal/models"
	"abocaments-api/internal/services"
)

const maxMessageBytes = 10 << 20

// Reads one raw email on stdin, as delivered by an MTA pipe, and forwards
// the normalized reply to REPLY_CALLBACK_URL. Exits non-zero when the
// message could not be delivered so the MTA defers it.
func main() {
	logger := log.New(os.Stderr, "[RelayReply] ", log.LstdFlags)

	to := flag.String("to", "", "Envelope recipient (local+<report id>@domain)")
	from := flag.String("from", "", "Envelope sender")
	timeout := flag.Duration("timeout", 30*time.Second, "Callback timeout")
	flag.Parse()

	config.LoadEnvFile()
	cfg := config.FromEnv()
	if cfg.ReplyCallbackURL == "" || cfg.ReplyWebhookSecret == "" {
		logger.Fatal("REPLY_CALLBACK_URL and REPLY_WEBHOOK_SECRET are required")
	}

	raw, err := io.ReadAll(io.LimitReader(os.Stdin, maxMessageBytes))
	if err != nil {
		logger.Fatalf("read message: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	normalizer := services.NewReplyNormalizer(services.NewHTTPReplyForwarder(cfg.ReplyCallbackURL, cfg.ReplyWebhookSecret))
	payload, err := normalizer.Process(ctx, models.InboundEmail{To: *to, From: *from, Raw: string(raw)})
	if err != nil {
		logger.Fatalf("relay failed: %v", err)
	}

	logger.Printf("Relayed reply for report %s", payload.ReportId)
}
