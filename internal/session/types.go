package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Bullet is one line of the rolling call summary.
type Bullet struct {
	ClientIssue string `json:"client_issue"`
	AgentAction string `json:"agent_action"`
	NextStep    string `json:"next_step"`
}

type CallSummary struct {
	Bullets      []Bullet `json:"bullets"`
	CRMParagraph string   `json:"crm_paragraph"`
}

// PromoID accepts a JSON string or number; models emit both.
type PromoID string

func (p *PromoID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*p = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = PromoID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("promo_id must be a string or number: %w", err)
	}
	*p = PromoID(n.String())
	return nil
}

type Recommendation struct {
	PromoID          PromoID `json:"promo_id"`
	Name             string  `json:"name,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	Expiry           string  `json:"expiry,omitempty"`
	Description      string  `json:"description,omitempty"`
	FulfillmentSteps string  `json:"fulfillment_steps,omitempty"`
}

type Promotions struct {
	Recommendations []Recommendation `json:"recommendations"`
	NoRelevant      bool             `json:"no_relevant_flag"`
}

// NoPromotions is the value reported when a call has no usable recommendations.
func NoPromotions() Promotions {
	return Promotions{Recommendations: []Recommendation{}, NoRelevant: true}
}

// Update is the set of rolling artifacts written by one processing pass.
type Update struct {
	Summary        CallSummary
	History        string
	Promotions     Promotions
	ProcessedIndex int64
	ProcessedAt    time.Time
}

// Snapshot is a point-in-time read of a call's rolling state.
type Snapshot struct {
	CallID         string
	Summary        CallSummary
	HasSummary     bool
	History        string
	Promotions     Promotions
	ProcessedIndex int64
}
