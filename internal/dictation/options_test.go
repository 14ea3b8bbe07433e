package dictation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/xkilldash9x/dictafill/internal/config"
)

func TestRetryPolicy_Next(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		want   []time.Duration
	}{
		{
			name:   "fixed",
			policy: RetryPolicy{Delay: 2 * time.Second, Factor: 1},
			want:   []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second},
		},
		{
			name:   "exponential",
			policy: RetryPolicy{Delay: 2 * time.Second, Factor: 2},
			want:   []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		},
		{
			name:   "capped",
			policy: RetryPolicy{Delay: 2 * time.Second, Factor: 2, MaxDelay: 5 * time.Second},
			want:   []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name:   "cap below base delay",
			policy: RetryPolicy{Delay: 2 * time.Second, Factor: 1, MaxDelay: time.Second},
			want:   []time.Duration{time.Second, time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, tt.policy.Next(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	unlimited := RetryPolicy{Delay: time.Second, Factor: 1}
	assert.False(t, unlimited.Exhausted(1_000_000))

	capped := RetryPolicy{Delay: time.Second, Factor: 1, MaxAttempts: 2}
	assert.False(t, capped.Exhausted(1))
	assert.True(t, capped.Exhausted(2))
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.NoError(t, o.Validate())
	assert.Equal(t, 2000*time.Millisecond, o.Retry.Delay)
	assert.Zero(t, o.Retry.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, o.AdvanceDelay)
	assert.Equal(t, 3000*time.Millisecond, o.RenderDelay)
	assert.Equal(t, ".listen-container .listen-sen", o.Selectors.Container)
}

func TestGroup(t *testing.T) {
	assert.Equal(t, ".a, .b", group([]string{" .a ", "", ".b"}))
	assert.Equal(t, "", group(nil))
}

func TestOptionsFromConfig_MatchesDefaults(t *testing.T) {
	opts := OptionsFromConfig(config.NewDefaultConfig().Dictation)

	if diff := cmp.Diff(DefaultOptions(), opts); diff != "" {
		t.Errorf("config defaults drifted from DefaultOptions (-want +got):\n%s", diff)
	}
	assert.NoError(t, opts.Validate())
}
