package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_FirstMatchWins(t *testing.T) {
	c := NewClassifier("Unknown",
		Contains("alpha", "first"),
		Contains("alph", "second"),
	)

	assert.Equal(t, "first", c.Classify("some ALPHA path"))
}

func TestClassifier_Fallback(t *testing.T) {
	c := NewClassifier("Unknown", Contains("alpha", "first"))

	assert.Equal(t, "Unknown", c.Classify("nothing relevant"))
	assert.Equal(t, "Unknown", c.Fallback())
}

func TestClassifier_OrderedEvaluation(t *testing.T) {
	c := NewClassifier("none",
		Contains("longres", "longRes"),
		Contains("restreq", "restReq"),
		Contains("sendmessage", "sendMessage"),
		Contains("recvmessage", "recvMessage"),
	)

	tests := []struct {
		input string
		want  string
	}{
		{"/v1/longRes/bye", "longRes"},
		{"/v1/RESTREQ/bye", "restReq"},
		{"/ws/sendMessage", "sendMessage"},
		{"/ws/RecvMessage", "recvMessage"},
		{"/v1/other", "none"},
		{"", "none"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.input), "input %q", tt.input)
	}
}

func TestContainsFold(t *testing.T) {
	pred := ContainsFold("RTP")

	assert.True(t, pred("rtp timeout"))
	assert.True(t, pred("RTP_RX_TIMEOUT"))
	assert.True(t, pred("media rTp lost"))
	assert.False(t, pred("rt p"))
}
