package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"abocaments-api/internal/models"
	"abocaments-api/internal/utils"
)

const (
	agencyErrorField   = "errorId"
	maxAgencyBodyBytes = 1 << 20
	maxFailureSnippet  = 200
)

// Codes of the agency's own incident taxonomy.
type AgencyCategory struct {
	Category string
	Type     string
	Option   string
}

var agencyCategories = map[models.Category]AgencyCategory{
	models.CategoryWaste:  {Category: "1", Type: "12", Option: "121"},
	models.CategoryLitter: {Category: "1", Type: "13", Option: "131"},
}

// AgencyCategoryFor maps an internal category to the agency codes.
func AgencyCategoryFor(c models.Category) (AgencyCategory, bool) {
	ac, ok := agencyCategories[c]
	return ac, ok
}

// AgencyResult is either AgencySuccess or AgencyFailure.
type AgencyResult interface {
	agencyResult()
}

type AgencySuccess struct {
	IncidentID string
}

type AgencyFailure struct {
	Code    string
	Message string
}

func (AgencySuccess) agencyResult() {}
func (AgencyFailure) agencyResult() {}

func (f AgencyFailure) String() string {
	if f.Message == "" {
		return f.Code
	}
	return f.Code + ": " + f.Message
}

// ParseAgencyResponse interprets the agency answer. Success requires a 2xx
// status, a JSON object without the error marker, and an incident id under
// incidentId or idIncidencia, as a string or a number.
func ParseAgencyResponse(status int, body []byte) AgencyResult {
	if status < 200 || status > 299 {
		return AgencyFailure{Code: "HTTP_" + strconv.Itoa(status), Message: snippet(body)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return AgencyFailure{Code: "INVALID_RESPONSE", Message: "agency response is not a JSON object"}
	}

	if marker, ok := obj[agencyErrorField]; ok {
		code := scalarString(marker)
		if code == "" {
			code = "AGENCY_ERROR"
		}
		msg := ""
		for _, k := range []string{"message", "errorMessage", "error", "descripcion"} {
			if s := scalarString(obj[k]); s != "" {
				msg = s
				break
			}
		}
		return AgencyFailure{Code: code, Message: msg}
	}

	for _, k := range []string{"incidentId", "idIncidencia"} {
		if id := scalarString(obj[k]); id != "" {
			return AgencySuccess{IncidentID: id}
		}
	}
	return AgencyFailure{Code: "MISSING_INCIDENT_ID", Message: "agency response carries no incident id"}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	return truncateRunes(s, maxFailureSnippet)
}

type AgencyConfig struct {
	Endpoint    string
	Timeout     time.Duration
	Phone       string
	ContactName string
	ReplyLocal  string
	ReplyDomain string
	Language    string
}

// AgencyClient submits reports to the municipal agency ingestion endpoint.
type AgencyClient struct {
	cfg        AgencyConfig
	httpClient *http.Client
	logger     *log.Logger
}

func NewAgencyClient(cfg AgencyConfig) *AgencyClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &AgencyClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.New(os.Stdout, "[Agency] ", log.LstdFlags),
	}
}

// ReplyAddress is the correlation address the agency answers to.
func (c *AgencyClient) ReplyAddress(reportID string) string {
	return fmt.Sprintf("%s+%s@%s", c.cfg.ReplyLocal, reportID, c.cfg.ReplyDomain)
}

// Observations composes the free-text field sent to the agency.
func Observations(report *models.Report, att *Attachment) string {
	var b strings.Builder
	if report.Description != "" {
		b.WriteString(report.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("Ref: ")
	b.WriteString(report.Id)
	if att != nil && att.HasCaptured {
		b.WriteString("\nFoto: ")
		b.WriteString(utils.FormatCaptureTime(att.CapturedAt))
	}
	return b.String()
}

func addressField(report *models.Report) string {
	if report.AddressLabel != "" {
		return report.AddressLabel
	}
	return strconv.FormatFloat(report.Lat, 'f', 6, 64) + ", " + strconv.FormatFloat(report.Lon, 'f', 6, 64)
}

// buildForm writes the multipart submission and returns its content type.
func (c *AgencyClient) buildForm(buf *bytes.Buffer, report *models.Report, att *Attachment) (string, error) {
	codes, ok := AgencyCategoryFor(report.Category)
	if !ok {
		return "", fmt.Errorf("no agency codes for category %q", report.Category)
	}

	w := multipart.NewWriter(buf)
	fields := [][2]string{
		{"phone", c.cfg.Phone},
		{"email", c.ReplyAddress(report.Id)},
		{"name", c.cfg.ContactName},
		{"address", addressField(report)},
		{"observations", Observations(report, att)},
		{"lang", c.cfg.Language},
		{"lat", strconv.FormatFloat(report.Lat, 'f', -1, 64)},
		{"lon", strconv.FormatFloat(report.Lon, 'f', -1, 64)},
		{"category", codes.Category},
		{"type", codes.Type},
		{"option", codes.Option},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename="%s"`, att.Filename()))
	h.Set("Content-Type", att.File.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(att.File.Data); err != nil {
		return "", err
	}

	if err := w.Close(); err != nil {
		return "", err
	}
	return w.FormDataContentType(), nil
}

// Submit posts the report and its attachment. Transport problems are
// reported as an AgencyFailure like any other rejection.
func (c *AgencyClient) Submit(ctx context.Context, report *models.Report, att *Attachment) AgencyResult {
	var body bytes.Buffer
	contentType, err := c.buildForm(&body, report, att)
	if err != nil {
		return AgencyFailure{Code: "BUILD_FAILED", Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &body)
	if err != nil {
		return AgencyFailure{Code: "BUILD_FAILED", Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("Submission of report %s failed: %v", report.Id, err)
		return AgencyFailure{Code: "TRANSPORT", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAgencyBodyBytes))
	if err != nil {
		return AgencyFailure{Code: "TRANSPORT", Message: err.Error()}
	}

	return ParseAgencyResponse(resp.StatusCode, respBody)
}
