package services

import (
	"fmt"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/pkg/validation"

	"github.com/livekit/protocol/auth"
)

type tokenService struct {
	apiKey    string
	apiSecret string
	wsURL     string
	ttl       time.Duration
}

// NewTokenService builds the credential issuer. Tokens are LiveKit access
// tokens: HS256 JWTs carrying a video grant scoped to one room and role.
func NewTokenService(apiKey, apiSecret, wsURL string, ttl time.Duration) ports.TokenService {
	return &tokenService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		ttl:       ttl,
	}
}

func (s *tokenService) Issue(identity string, roomID domain.RoomID, role domain.Role) (string, error) {
	if err := validation.ValidateIdentity(identity); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
	}

	at := auth.NewAccessToken(s.apiKey, s.apiSecret).
		SetIdentity(identity).
		SetValidFor(s.ttl)

	// Without a room the token only proves identity; the device exchanges
	// it for a scoped one on its next registration.
	if roomID != "" {
		yes := true
		no := false

		grant := &auth.VideoGrant{
			RoomJoin: true,
			Room:     string(roomID),
		}

		switch role {
		case domain.RoleDriver:
			grant.CanPublish = &yes
			grant.CanSubscribe = &yes
		case domain.RoleAdmin:
			grant.CanPublish = &yes
			grant.CanSubscribe = &yes
			grant.CanPublishData = &yes
		default: // viewer
			grant.CanPublish = &no
			grant.CanSubscribe = &yes
		}

		at.AddGrant(grant)
	}

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}

	return token, nil
}

func (s *tokenService) WSEndpoint() string {
	return s.wsURL
}
