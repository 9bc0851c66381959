package perfbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"defaults are valid", NewDefaultConfig(), false},
		{"missing source", &Config{MaxEpollEvents: 8}, true},
		{"zero epoll events", &Config{Source: NewMemfdSource()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	mgr, err := NewManager(&Config{}, nil)
	assert.Error(t, err)
	assert.Nil(t, mgr)
}

func TestNewManagerDefaults(t *testing.T) {
	mgr, err := NewManager(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, mgr)
	assert.NotNil(t, mgr.config.Source)
}
