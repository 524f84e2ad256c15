package callback

import (
	"testing"

	"donation-agent/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Parse(t *testing.T) {
	m := NewMatcher("donationtestapp", "close")

	tests := []struct {
		name string
		raw  string
		id   string
		err  error
	}{
		{"With id", "donationtestapp://close?transaction_id=T1", "T1", nil},
		{"Id among other params", "donationtestapp://close?lang=en&transaction_id=T-42&x=1", "T-42", nil},
		{"Escaped id", "donationtestapp://close?transaction_id=a%2Fb", "a/b", nil},
		{"Without id", "donationtestapp://close", "", nil},
		{"Blank id", "donationtestapp://close?transaction_id=%20", "", nil},
		{"Mixed case scheme and host", "DonationTestApp://CLOSE?transaction_id=T1", "T1", nil},
		{"Surrounding spaces", "  donationtestapp://close?transaction_id=T1\n", "T1", nil},
		{"Other host", "donationtestapp://open?transaction_id=T1", "", status.ErrForeignCallback},
		{"Other scheme", "otherapp://close?transaction_id=T1", "", status.ErrForeignCallback},
		{"Web url", "https://close/?transaction_id=T1", "", status.ErrForeignCallback},
		{"Opaque", "donationtestapp:close", "", status.ErrForeignCallback},
		{"Empty", "   ", "", status.ErrCallbackParse},
		{"Not a url", "::::", "", status.ErrCallbackParse},
		{"Bad query", "donationtestapp://close?transaction_id=%zz", "", status.ErrCallbackParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := m.Parse(tt.raw)

			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, n.TransactionID)
			assert.NotEmpty(t, n.Raw)
		})
	}
}

func TestMatcher_ConfiguredLink(t *testing.T) {
	m := NewMatcher(" MyApp ", " Done ")

	n, err := m.Parse("myapp://done?transaction_id=X")
	require.NoError(t, err)
	assert.Equal(t, "X", n.TransactionID)

	_, err = m.Parse("donationtestapp://close?transaction_id=X")
	assert.ErrorIs(t, err, status.ErrForeignCallback)
}
