package models

// AdmissionRequest is the JSON body of POST /reports.
type AdmissionRequest struct {
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	PhotoCount   int      `json:"photo_count"`
	Honeypot     string   `json:"website"`
	DeviceId     string   `json:"device_id,omitempty"`
	ContentType  string   `json:"content_type,omitempty"`
	AddressLabel string   `json:"address_label,omitempty"`

	// ClientAddress is filled by the handler from the connection, never from the body.
	ClientAddress string `json:"-"`
}

type UploadCapability struct {
	Path       string            `json:"path"`
	Capability string            `json:"capability"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type AdmissionResponse struct {
	ReportId           string             `json:"report_id"`
	UploadCapabilities []UploadCapability `json:"upload_capabilities"`
}

type ReportIDRequest struct {
	ReportId string `json:"report_id"`
}

type DispatchResponse struct {
	Success               bool   `json:"success"`
	ExternalCorrelationId string `json:"external_correlation_id"`
}

type StatusResponse struct {
	Success  bool   `json:"success"`
	ReportId string `json:"report_id"`
	Status   string `json:"status,omitempty"`
}

type ReportDetail struct {
	Report *Report        `json:"report"`
	Media  []*ReportMedia `json:"media"`
}

// ReplyPayload is what the Reply Normalizer forwards to the reply-ingestion callback.
type ReplyPayload struct {
	ReportId  string `json:"report_id"`
	ReplyText string `json:"reply_text"`
	ReplyFrom string `json:"reply_from"`
}

// InboundEmail is the JSON body of POST /inbound/email.
type InboundEmail struct {
	To   string `json:"to"`
	From string `json:"from"`
	Raw  string `json:"raw"`
}

type GeocodeRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type GeocodeResponse struct {
	AddressLabel string `json:"address_label"`
}
