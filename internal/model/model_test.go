package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Run", &Run{}, "runs"},
		{"Player", &Player{}, "players"},
		{"EventSession", &EventSession{}, "event_sessions"},
		{"Heartbeat", &Heartbeat{}, "heartbeats"},
		{"FactSession", &FactSession{}, "fact_sessions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestSessionTablesCoverModels(t *testing.T) {
	assert.ElementsMatch(t, DatabaseModels, SessionTables)
}
