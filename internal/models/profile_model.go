package models

import (
	"time"
)

type Profile struct {
	ID                int64     `db:"id" json:"id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	Name              string    `db:"name" json:"name"`
	Platform          string    `db:"platform" json:"platform"`
	ConnectedAccounts []string  `db:"connected_accounts" json:"connected_accounts"`
	RefreshToken      string    `db:"refresh_token" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// TargetAccount returns the account identifier a publish call should address.
func (p *Profile) TargetAccount() string {
	if len(p.ConnectedAccounts) > 0 && p.ConnectedAccounts[0] != "" {
		return p.ConnectedAccounts[0]
	}
	return p.Name
}

const (
	PlatformYoutube   = "youtube"
	PlatformTiktok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
)

func IsKnownPlatform(platform string) bool {
	switch platform {
	case PlatformYoutube, PlatformTiktok, PlatformInstagram, PlatformFacebook:
		return true
	}
	return false
}
