// Package directory resolves conversation ids to member identities for
// display. It is an external collaborator of the call subsystem; the call
// core depends on the interface only.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"secureconnect-client/internal/domain"
)

// Directory resolves conversation membership.
type Directory interface {
	// Members returns the participants of a conversation, excluding nobody;
	// the caller filters out the local user as needed.
	Members(ctx context.Context, conversationID uuid.UUID) ([]domain.RemoteParty, error)
}

// RESTDirectory resolves members against the SecureConnect REST API.
type RESTDirectory struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTDirectory creates a directory client for the given API base URL.
func NewRESTDirectory(baseURL, accessToken string, timeout time.Duration) *RESTDirectory {
	return &RESTDirectory{
		baseURL: baseURL,
		token:   accessToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// memberDTO mirrors the conversation members API response item
type memberDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type membersResponse struct {
	Data struct {
		Members []memberDTO `json:"members"`
	} `json:"data"`
}

// Members fetches conversation participants.
func (d *RESTDirectory) Members(ctx context.Context, conversationID uuid.UUID) ([]domain.RemoteParty, error) {
	url := fmt.Sprintf("%s/v1/conversations/%s/members", d.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation members: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch conversation members: status %d", resp.StatusCode)
	}

	var body membersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode conversation members: %w", err)
	}

	parties := make([]domain.RemoteParty, 0, len(body.Data.Members))
	for _, m := range body.Data.Members {
		id, err := uuid.Parse(m.UserID)
		if err != nil {
			continue
		}
		parties = append(parties, domain.RemoteParty{
			UserID:      id,
			DisplayName: m.DisplayName,
			AvatarURL:   m.AvatarURL,
		})
	}
	return parties, nil
}
