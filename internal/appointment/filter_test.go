package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateTable(t *testing.T) {
	tests := []struct {
		tab    Tab
		status StatusClass
	}{
		{TabUpcoming, ClassUpcoming},
		{TabToday, ClassToday},
		{TabPast, ClassPast},
		{TabAll, ClassNone},
	}

	for _, date := range []string{"", "2024-11-06"} {
		for _, tt := range tests {
			name := string(tt.tab) + "/" + date
			t.Run(name, func(t *testing.T) {
				f := Translate(date, tt.tab)
				q := f.Query()

				assert.Equal(t, tt.status, f.Status)
				assert.Equal(t, date != "", q.Has("date"))
				assert.Equal(t, date, q.Get("date"))
				assert.Equal(t, tt.tab != TabAll, q.Has("status"))
				assert.Equal(t, string(tt.status), q.Get("status"))
			})
		}
	}
}

func TestFilterQueryEncoding(t *testing.T) {
	assert.Equal(t, "date=2024-11-06&status=today", Translate("2024-11-06", TabToday).Query().Encode())
	assert.Equal(t, "", Translate("", TabAll).Query().Encode())
	assert.Equal(t, "all", Filter{}.String())
}

func TestFilterKeyDistinguishesParts(t *testing.T) {
	a := Translate("2024-11-06", TabAll)
	b := Translate("", TabToday)
	c := Translate("2024-11-06", TabToday)

	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, c.Key(), Translate("2024-11-06", TabToday).Key())
}

func TestParseTab(t *testing.T) {
	tab, err := ParseTab(" Today ")
	require.NoError(t, err)
	assert.Equal(t, TabToday, tab)

	_, err = ParseTab("tomorrow")
	assert.ErrorIs(t, err, ErrUnknownTab)
}

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2024-11-06"))
	assert.Error(t, ValidateDate("06/11/2024"))
	assert.Error(t, ValidateDate("2024-02-30"))
}
