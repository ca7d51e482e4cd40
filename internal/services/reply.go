package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/mailparse"
	"abocaments-api/internal/metrics"
	"abocaments-api/internal/models"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// ReplyForwarder delivers a normalized reply to the reply-ingestion callback.
type ReplyForwarder interface {
	Forward(ctx context.Context, payload *models.ReplyPayload) error
}

// ValidateReplyPayload checks the fields the callback requires.
func ValidateReplyPayload(p *models.ReplyPayload) error {
	if p == nil || strings.TrimSpace(p.ReportId) == "" {
		return errors.New(errors.ErrValidation, "report_id is required")
	}
	if strings.TrimSpace(p.ReplyText) == "" {
		return errors.New(errors.ErrValidation, "reply_text is required")
	}
	return nil
}

// ReplyNormalizer turns raw agency email into a ReplyPayload.
type ReplyNormalizer struct {
	forwarder ReplyForwarder
	logger    *log.Logger
}

func NewReplyNormalizer(forwarder ReplyForwarder) *ReplyNormalizer {
	return &ReplyNormalizer{
		forwarder: forwarder,
		logger:    log.New(os.Stdout, "[Reply] ", log.LstdFlags),
	}
}

// Normalize extracts the report id from the recipient and the reply text
// from the raw message. A recipient without a correlation id is a
// validation error.
func (n *ReplyNormalizer) Normalize(msg models.InboundEmail) (*models.ReplyPayload, error) {
	id, ok := mailparse.ExtractReportID(msg.To)
	if !ok {
		return nil, errors.New(errors.ErrValidation, "recipient does not carry a report id")
	}

	raw := []byte(msg.Raw)
	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = mailparse.FromAddress(raw)
	}

	return &models.ReplyPayload{
		ReportId:  id,
		ReplyText: truncateRunes(mailparse.ExtractText(raw), MaxReplyTextLen),
		ReplyFrom: truncateRunes(from, MaxReplyFromLen),
	}, nil
}

// Process normalizes the message and forwards it.
func (n *ReplyNormalizer) Process(ctx context.Context, msg models.InboundEmail) (*models.ReplyPayload, error) {
	payload, err := n.Normalize(msg)
	if err != nil {
		n.logger.Printf("Discarding inbound message: %v", err)
		metrics.IncReply("not_a_reply")
		return nil, err
	}

	if err := n.forwarder.Forward(ctx, payload); err != nil {
		n.logger.Printf("Forwarding reply for report %s failed: %v", payload.ReportId, err)
		metrics.IncReply("forward_failed")
		return nil, err
	}

	n.logger.Printf("Forwarded reply for report %s (%d characters)", payload.ReportId, len([]rune(payload.ReplyText)))
	metrics.IncReply("forwarded")
	return payload, nil
}

// HTTPReplyForwarder posts the payload to a remote callback.
type HTTPReplyForwarder struct {
	url        string
	secret     string
	httpClient *http.Client
}

func NewHTTPReplyForwarder(url, secret string) *HTTPReplyForwarder {
	return &HTTPReplyForwarder{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (f *HTTPReplyForwarder) Forward(ctx context.Context, payload *models.ReplyPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode reply", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build callback request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WebhookSecretHeader, f.secret)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrUpstream, "reply callback unreachable", err)
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrUpstream, "reply callback refused the shared secret")
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrNotFound, fmt.Sprintf("report %s not found", payload.ReportId))
	case resp.StatusCode == http.StatusBadRequest:
		return errors.New(errors.ErrValidation, "reply callback rejected the payload: "+snippet(detail))
	default:
		return errors.New(errors.ErrUpstream, fmt.Sprintf("reply callback returned status %d", resp.StatusCode))
	}
}

// LocalReplyForwarder records the reply in this process.
type LocalReplyForwarder struct {
	lifecycle *LifecycleService
}

func NewLocalReplyForwarder(lifecycle *LifecycleService) *LocalReplyForwarder {
	return &LocalReplyForwarder{lifecycle: lifecycle}
}

func (f *LocalReplyForwarder) Forward(ctx context.Context, payload *models.ReplyPayload) error {
	if err := ValidateReplyPayload(payload); err != nil {
		return err
	}
	_, err := f.lifecycle.RecordReply(ctx, payload.ReportId, payload.ReplyText, payload.ReplyFrom)
	return err
}
