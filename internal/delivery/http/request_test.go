package http

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

func TestBroadcastRequest_FieldNames(t *testing.T) {
	out, err := json.Marshal(BroadcastRequest{OwnerID: "owner-1", Title: "Hi", Body: "b"})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "owner-1", fields["ownerId"])
	assert.NotContains(t, fields, "ownerID")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"ownerId":"owner-1","title":"Hi","body":"Double points"}`, true},
		{"missing owner", `{"title":"Hi","body":"Double points"}`, false},
		{"bad icon url", `{"ownerId":"o","title":"Hi","body":"b","iconUrl":"nope"}`, false},
		{"malformed", `{"ownerId":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/push/broadcast", bytes.NewBufferString(tt.body))
			var got BroadcastRequest
			err := Decode(req, &got)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "owner-1", got.OwnerID)
				return
			}
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
