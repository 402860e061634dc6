package scheduling

// EffectivePlatform picks the platform a content item publishes to: an
// explicit content override first, then the slot's platform, then the
// profile's. Manually scheduled content may carry no slot at all.
func EffectivePlatform(contentPlatform, slotPlatform, profilePlatform string) (string, bool) {
	for _, p := range []string{contentPlatform, slotPlatform, profilePlatform} {
		if p != "" {
			return p, true
		}
	}
	return "", false
}
