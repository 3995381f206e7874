package validate

import (
	"testing"

	"github.com/peterldowns/testy/check"

	"lotauction/internal/domain"
)

type bidBody struct {
	BidderAddress string `json:"bidderAddress" validate:"required,address"`
	Destination   string `json:"destination" validate:"omitempty,destination"`
	Grade         string `json:"qualityGrade" validate:"omitempty,grade"`
	Hours         int    `json:"durationHours" validate:"omitempty,min=1,max=720"`
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(bidBody{BidderAddress: "0x12", Destination: "E", Grade: "Z", Hours: 1000})
	check.Equal(t, domain.KindValidation, domain.KindOf(err))
	check.Equal(t, []string{"bidderAddress", "destination", "qualityGrade", "durationHours"}, Fields(err))

	err = Struct(bidBody{})
	check.Equal(t, []string{"bidderAddress: is required"}, domain.ReasonsOf(err))

	check.NoError(t, Struct(bidBody{
		BidderAddress: "0x2222222222222222222222222222222222222222", Destination: "eu", Grade: "b", Hours: 24,
	}))
}

func TestHelpers(t *testing.T) {
	_, ok := Address(" 0xABCDEFabcdef0123456789012345678901234567 ")
	check.True(t, ok)
	_, ok = Address("0xnothex")
	check.False(t, ok)

	_, ok = ID("b6f0c1de-4c1a-4c8e-9d47-1f0d2f1b8a11")
	check.True(t, ok)
	_, ok = ID("../etc")
	check.False(t, ok)

	d, ok := Destination(" jp ")
	check.True(t, ok)
	check.Equal(t, "JP", d)

	check.Equal(t, 100, Limit(""))
	check.Equal(t, 500, Limit("9999"))
	check.Equal(t, 20, Limit("20"))
}
