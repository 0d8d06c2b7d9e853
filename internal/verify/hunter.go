package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const hunterEndpoint = "https://api.hunter.io/v2/email-verifier"

// HunterVerifier checks email deliverability against the hunter.io
// email-verifier API. Every result except "undeliverable" is accepted,
// so a degraded "risky" verdict does not block signups.
type HunterVerifier struct {
	apiKey string
	client *http.Client
}

// NewHunterVerifier creates a verifier with the given API key.
func NewHunterVerifier(apiKey string) *HunterVerifier {
	return &HunterVerifier{
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify reports whether the address is deliverable.
func (v *HunterVerifier) Verify(ctx context.Context, email string) (bool, error) {
	params := url.Values{}
	params.Set("email", email)
	params.Set("api_key", v.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hunterEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return false, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("hunter.io request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("hunter.io returned status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Result string `json:"result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decoding hunter.io response: %w", err)
	}

	return body.Data.Result != "undeliverable", nil
}
