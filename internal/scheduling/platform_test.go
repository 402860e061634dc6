package scheduling

import "testing"

func TestEffectivePlatform(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                   string
		content, slot, profile string
		want                   string
		wantOK                 bool
	}{
		{"content override wins", "youtube", "tiktok", "instagram", "youtube", true},
		{"slot platform when no override", "", "tiktok", "instagram", "tiktok", true},
		{"profile platform when no slot", "", "", "instagram", "instagram", true},
		{"nothing set", "", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EffectivePlatform(tt.content, tt.slot, tt.profile)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("EffectivePlatform = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
