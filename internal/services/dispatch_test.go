package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/lifecycle"
)

type dispatchFixture struct {
	svc    *DispatchService
	store  *MemoryStore
	blobs  *MemoryBlobStore
	calls  *atomic.Int32
	fields chan map[string]string
}

// newDispatchFixture starts a fake agency answering with status and body.
func newDispatchFixture(t *testing.T, status int, body string) *dispatchFixture {
	t.Helper()
	calls := &atomic.Int32{}
	fields := make(chan map[string]string, 1)

	agencySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("agency got a non-multipart body: %v", err)
		}
		got := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got[k] = v[0]
		}
		if files := r.MultipartForm.File["attachment"]; len(files) == 1 {
			got["attachment.filename"] = files[0].Filename
			got["attachment.type"] = files[0].Header.Get("Content-Type")
		}
		select {
		case fields <- got:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(agencySrv.Close)

	store := NewMemoryStore()
	blobs := NewMemoryBlobStore("http://localhost:8080")
	lc := NewLifecycleService(store)
	agency := NewAgencyClient(AgencyConfig{
		Endpoint:    agencySrv.URL,
		Phone:       "972000000",
		ContactName: "Servei d'avisos",
		ReplyLocal:  "avisos",
		ReplyDomain: "example.org",
		Language:    "ca",
	})
	svc := NewDispatchService(lc, store, NewAttachmentService(blobs, 1024), agency)

	return &dispatchFixture{svc: svc, store: store, blobs: blobs, calls: calls, fields: fields}
}

func TestDispatchSuccess(t *testing.T) {
	f := newDispatchFixture(t, http.StatusOK, `{"incidentId":"12345","status":"OK"}`)
	seedReport(t, f.store, testReportID, lifecycle.StatusPendingReview, 2)
	// Only the second photo was uploaded.
	f.blobs.Put(MediaPath(testReportID, 1, "image/jpeg"), testJPEG(t, 64, 48))

	resp, err := f.svc.Dispatch(context.Background(), testReportID)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !resp.Success || resp.ExternalCorrelationId != "12345" {
		t.Errorf("response = %+v", resp)
	}

	r := mustGet(t, f.store, testReportID)
	if r.Status != lifecycle.StatusSent || r.FccIncidentId != "12345" || r.LastError != "" || r.DispatchedAt.IsZero() {
		t.Errorf("report after dispatch = %+v", r)
	}

	fields := <-f.fields
	want := map[string]string{
		"email":               "avisos+" + testReportID + "@example.org",
		"phone":               "972000000",
		"name":                "Servei d'avisos",
		"lang":                "ca",
		"lat":                 "41.98",
		"lon":                 "2.822",
		"category":            "1",
		"type":                "12",
		"option":              "121",
		"attachment.filename": testReportID + "-1.jpg",
		"attachment.type":     "image/jpeg",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}
	if !strings.Contains(fields["observations"], "Runes al costat del riu") || !strings.Contains(fields["observations"], "Ref: "+testReportID) {
		t.Errorf("observations = %q", fields["observations"])
	}
	if fields["address"] != "41.980000, 2.822000" {
		t.Errorf("address = %q, want coordinates fallback", fields["address"])
	}
}

func TestDispatchFailuresRevertToPendingReview(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantInErr string
	}{
		{"error marker", http.StatusOK, `{"errorId":"E42","message":"Adjunt massa gran"}`, "E42"},
		{"server error", http.StatusServiceUnavailable, `maintenance`, "HTTP_503"},
		{"not json", http.StatusOK, `<html>ok</html>`, "INVALID_RESPONSE"},
		{"no incident id", http.StatusOK, `{"status":"OK"}`, "MISSING_INCIDENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t, tt.status, tt.body)
			seedReport(t, f.store, testReportID, lifecycle.StatusPendingReview, 1)
			f.blobs.Put(MediaPath(testReportID, 0, "image/jpeg"), testJPEG(t, 32, 32))

			_, err := f.svc.Dispatch(context.Background(), testReportID)
			if !errors.Is(err, errors.ErrUpstream) {
				t.Fatalf("Dispatch() error = %v, want ErrUpstream", err)
			}

			r := mustGet(t, f.store, testReportID)
			if r.Status != lifecycle.StatusPendingReview {
				t.Errorf("status = %s, want pending_review", r.Status)
			}
			if !strings.Contains(r.LastError, tt.wantInErr) {
				t.Errorf("last error %q should mention %s", r.LastError, tt.wantInErr)
			}
			if r.FccIncidentId != "" {
				t.Errorf("incident id set on failure: %q", r.FccIncidentId)
			}
		})
	}
}

func TestDispatchWithoutMediaSkipsAgency(t *testing.T) {
	f := newDispatchFixture(t, http.StatusOK, `{"incidentId":"1"}`)
	seedReport(t, f.store, testReportID, lifecycle.StatusPendingReview, 2)
	// An upload that is not an image is skipped like a missing one.
	f.blobs.Put(MediaPath(testReportID, 0, "image/jpeg"), []byte("not an image"))

	_, err := f.svc.Dispatch(context.Background(), testReportID)
	if !errors.Is(err, errors.ErrNoMedia) {
		t.Fatalf("Dispatch() error = %v, want ErrNoMedia", err)
	}
	if n := f.calls.Load(); n != 0 {
		t.Errorf("agency called %d times", n)
	}

	r := mustGet(t, f.store, testReportID)
	if r.Status != lifecycle.StatusPendingReview || r.LastError != "no media available" {
		t.Errorf("report = status %s, last error %q", r.Status, r.LastError)
	}
}

func TestDispatchRefusesTerminalReports(t *testing.T) {
	for _, status := range []lifecycle.Status{lifecycle.StatusRejected, lifecycle.StatusDeleted, lifecycle.StatusApprovedSending} {
		t.Run(string(status), func(t *testing.T) {
			f := newDispatchFixture(t, http.StatusOK, `{"incidentId":"1"}`)
			seedReport(t, f.store, testReportID, status, 1)
			f.blobs.Put(MediaPath(testReportID, 0, "image/jpeg"), testJPEG(t, 16, 16))

			_, err := f.svc.Dispatch(context.Background(), testReportID)
			if !errors.Is(err, errors.ErrInvalidTransition) {
				t.Fatalf("Dispatch() error = %v, want ErrInvalidTransition", err)
			}
			if f.calls.Load() != 0 {
				t.Error("agency was called")
			}
			if got := mustGet(t, f.store, testReportID).Status; got != status {
				t.Errorf("status changed to %s", got)
			}
		})
	}
}

func TestDispatchUnknownReport(t *testing.T) {
	f := newDispatchFixture(t, http.StatusOK, `{"incidentId":"1"}`)
	if _, err := f.svc.Dispatch(context.Background(), testReportID); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Dispatch() error = %v, want ErrNotFound", err)
	}
}

func TestDispatchTransportFailure(t *testing.T) {
	f := newDispatchFixture(t, http.StatusOK, `{}`)
	seedReport(t, f.store, testReportID, lifecycle.StatusPendingReview, 1)
	f.blobs.Put(MediaPath(testReportID, 0, "image/jpeg"), testJPEG(t, 16, 16))
	f.svc.agency = NewAgencyClient(AgencyConfig{Endpoint: "http://127.0.0.1:1/unreachable", ReplyLocal: "avisos", ReplyDomain: "example.org"})

	_, err := f.svc.Dispatch(context.Background(), testReportID)
	if !errors.Is(err, errors.ErrUpstream) {
		t.Fatalf("Dispatch() error = %v, want ErrUpstream", err)
	}
	r := mustGet(t, f.store, testReportID)
	if r.Status != lifecycle.StatusPendingReview || !strings.Contains(r.LastError, "TRANSPORT") {
		t.Errorf("report = status %s, last error %q", r.Status, r.LastError)
	}
}

func TestParseAgencyResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantID   string
		wantCode string
	}{
		{"incidentId string", 200, `{"incidentId":"12345"}`, "12345", ""},
		{"idIncidencia number", 201, `{"idIncidencia":98765}`, "98765", ""},
		{"large number kept exact", 200, `{"idIncidencia":12345678901234567}`, "12345678901234567", ""},
		{"first key wins", 200, `{"incidentId":"A","idIncidencia":"B"}`, "A", ""},
		{"error marker", 200, `{"errorId":"E1","errorMessage":"Falta adjunt","incidentId":"1"}`, "", "E1"},
		{"error marker without code", 200, `{"errorId":"","message":"x"}`, "", "AGENCY_ERROR"},
		{"non 2xx", 500, `{"incidentId":"1"}`, "", "HTTP_500"},
		{"array body", 200, `[{"incidentId":"1"}]`, "", "INVALID_RESPONSE"},
		{"null body", 200, `null`, "", "INVALID_RESPONSE"},
		{"empty body", 200, ``, "", "INVALID_RESPONSE"},
		{"blank id", 200, `{"incidentId":"  "}`, "", "MISSING_INCIDENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch r := ParseAgencyResponse(tt.status, []byte(tt.body)).(type) {
			case AgencySuccess:
				if tt.wantID == "" || r.IncidentID != tt.wantID {
					t.Errorf("got success %q, want id %q / failure %q", r.IncidentID, tt.wantID, tt.wantCode)
				}
			case AgencyFailure:
				if tt.wantCode == "" || r.Code != tt.wantCode {
					t.Errorf("got failure %q, want id %q / failure %q", r.Code, tt.wantID, tt.wantCode)
				}
			}
		})
	}
}

func TestAgencyFailureMessage(t *testing.T) {
	f := ParseAgencyResponse(200, []byte(`{"errorId":7,"descripcion":"Coordenades fora del municipi"}`)).(AgencyFailure)
	if f.String() != "7: Coordenades fora del municipi" {
		t.Errorf("String() = %q", f.String())
	}
}
