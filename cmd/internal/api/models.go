package api

import "time"

type challengeResponse struct {
	ChallengeID    string    `json:"challenge_id"`
	ChallengeBytes string    `json:"challenge_bytes"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type registerRequest struct {
	PublicKey        string `json:"public_key"`
	Fingerprint      string `json:"fingerprint"`
	DisplayName      string `json:"display_name"`
	EncryptedBlob    string `json:"encrypted_blob"`
	GenesisSignature string `json:"genesis_signature"`
	SetupCredential  string `json:"setup_credential,omitempty"`
	// SetupToken is the legacy name of SetupCredential.
	SetupToken string `json:"setup_token,omitempty"`
	InviteCode string `json:"invite_code,omitempty"`
}

type registerResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IsOwner      bool   `json:"is_owner"`
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	PublicKey   string `json:"public_key"`
	Signature   string `json:"signature"`
	Fingerprint string `json:"fingerprint"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type serverInfoResponse struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Version          string `json:"version"`
	RegistrationMode string `json:"registration_mode"`
}

type settingsRequest struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	RegistrationMode *string `json:"registration_mode"`
}

type inviteCreateRequest struct {
	ExpiresInSeconds int64 `json:"expires_in_seconds"`
}

type inviteCreateResponse struct {
	InviteID  string    `json:"invite_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type blobResponse struct {
	Fingerprint   string    `json:"fingerprint"`
	EncryptedBlob string    `json:"encrypted_blob"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type blobUpdateRequest struct {
	EncryptedBlob string `json:"encrypted_blob"`
}

type successResponse struct {
	Success bool `json:"success"`
}
