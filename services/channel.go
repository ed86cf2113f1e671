package services

import (
	"strings"

	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
)

// DefaultChannel is used when a referral or share event carries no channel
const DefaultChannel = "direct"

// NormalizeChannel turns free-form channel labels ("Instagram Story") into stable keys ("instagram-story")
func NormalizeChannel(channel string) string {
	if s := slug.Make(channel); s != "" {
		return s
	}
	return DefaultChannel
}

// NormalizeReferralCode folds codes typed with accents or in lower case ("bÉa-42 ") to "BEA-42"
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(unidecode.Unidecode(code)))
}
