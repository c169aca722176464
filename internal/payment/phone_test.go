package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "canonical form passes through", in: "254712345678", want: "254712345678"},
		{name: "local zero prefix", in: "0712345678", want: "254712345678"},
		{name: "plus country code", in: "+254712345678", want: "254712345678"},
		{name: "bare subscriber number", in: "712345678", want: "254712345678"},
		{name: "local landline-style prefix", in: "0112345678", want: "254112345678"},
		{name: "spaces and dashes stripped", in: "0712 345-678", want: "254712345678"},
		{name: "too short", in: "07123", wantErr: true},
		{name: "too long", in: "2547123456789", wantErr: true},
		{name: "wrong country code", in: "255712345678", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
