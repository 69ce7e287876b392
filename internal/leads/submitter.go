package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/citydoctorae/leadchat/pkg/logging"
)

// Submitter delivers a lead to the external lead-storage service.
type Submitter interface {
	Submit(ctx context.Context, record LeadRecord) error
}

// sheetsPayload is the wire format the Apps Script endpoint expects.
// Column order in the sheet:
// Lead ID | Date & Time | Name | Phone | Emirates | Symptoms | Campaign |
// Lead Status | Conversion Sent | gclid | fbclid | Remarks.
type sheetsPayload struct {
	LeadID         string `json:"leadId"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Emirates       string `json:"emirates"`
	Symptoms       string `json:"symptoms"`
	CampaignName   string `json:"campaignName"`
	LeadStatus     string `json:"leadStatus"`
	ConversionSent string `json:"conversionSent"`
	GCLID          string `json:"gclid"`
	FBCLID         string `json:"fbclid"`
	Remarks        string `json:"remarks"`
}

// sheetsResponse is the JSON body the endpoint returns on parseable replies.
type sheetsResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// SheetsSubmitter posts leads to a Google Apps Script web app. The body is
// JSON but sent as text/plain so the browser-equivalent request avoids a
// CORS preflight; the script parses JSON out of the raw body.
type SheetsSubmitter struct {
	url      string
	campaign string
	client   *http.Client
	logger   *logging.Logger
}

// NewSheetsSubmitter creates a submitter for the configured script URL.
func NewSheetsSubmitter(url, campaign string, client *http.Client, logger *logging.Logger) *SheetsSubmitter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SheetsSubmitter{
		url:      url,
		campaign: campaign,
		client:   client,
		logger:   logger,
	}
}

// Configured reports whether a usable endpoint URL is set.
func (s *SheetsSubmitter) Configured() bool {
	return s.url != "" && !strings.Contains(s.url, "YOUR_GOOGLE_APPS_SCRIPT")
}

// Submit sends the lead. Idempotency is the caller's responsibility via
// LeadID; the service does not deduplicate.
func (s *SheetsSubmitter) Submit(ctx context.Context, record LeadRecord) error {
	if !s.Configured() {
		s.logger.Warn("leads: spreadsheet endpoint not configured, skipping submission",
			"lead_id", record.LeadID,
		)
		return ErrNotConfigured
	}
	if err := record.Validate(); err != nil {
		return err
	}

	payload := sheetsPayload{
		LeadID:         record.LeadID,
		Name:           record.Name,
		Phone:          record.Phone,
		Emirates:       record.Emirates,
		Symptoms:       record.Symptoms,
		CampaignName:   s.campaign,
		LeadStatus:     "New",
		ConversionSent: "No",
		GCLID:          record.GCLID,
		FBCLID:         record.FBCLID,
		Remarks:        "",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("leads: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("leads: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("leads: submission request failed", "error", err, "lead_id", record.LeadID)
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("leads: submission rejected",
			"status", resp.StatusCode,
			"body", string(text),
			"lead_id", record.LeadID,
		)
		return fmt.Errorf("%w: status %d", ErrSubmissionFailed, resp.StatusCode)
	}

	// A 2xx with a non-JSON body is an opaque success marker.
	var parsed sheetsResponse
	if err := json.Unmarshal(text, &parsed); err == nil && parsed.Success != nil && !*parsed.Success {
		s.logger.Error("leads: service reported failure",
			"service_error", parsed.Error,
			"lead_id", record.LeadID,
		)
		return fmt.Errorf("%w: %s", ErrSubmissionFailed, parsed.Error)
	}

	s.logger.Info("leads: lead saved to spreadsheet", "lead_id", record.LeadID)
	return nil
}
