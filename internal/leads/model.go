package leads

import (
	"strings"
	"time"
)

// LeadRecord is the value object delivered to the spreadsheet service and
// archived locally. LeadID is generated once per conversation attempt and
// reused on retries so the receiving sheet can deduplicate.
type LeadRecord struct {
	LeadID       string    `json:"lead_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Emirates     string    `json:"emirates"`
	Symptoms     string    `json:"symptoms"`
	PageURL      string    `json:"page_url"`
	CampaignName string    `json:"campaign_name"`
	GCLID        string    `json:"gclid"`
	FBCLID       string    `json:"fbclid"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the fields the submission endpoint requires.
func (r *LeadRecord) Validate() error {
	if strings.TrimSpace(r.LeadID) == "" {
		return ErrMissingLeadID
	}
	if len(strings.TrimSpace(r.Name)) < 2 {
		return ErrInvalidName
	}
	if len(r.Phone) < 10 {
		return ErrInvalidPhone
	}
	return nil
}
