package wizard

import "berserk/internal/models"

// DefaultInPersonFee is the in-person consultation deposit in cents.
const DefaultInPersonFee = 10000

var priceEstimates = map[string]string{
	"small":       "$500 - $1,000",
	"medium":      "$1,000 - $2,500",
	"large":       "$2,500 - $5,000",
	"extra-large": "$5,000 - $10,000",
	"sleeve":      "$10,000+",
}

// PriceEstimate returns the price range shown for a tattoo size.
func PriceEstimate(size string) string {
	if est, ok := priceEstimates[size]; ok {
		return est
	}
	return "$0"
}

// DepositFor returns what a consultation type costs up front. Phone
// consultations are free; an unknown type costs nothing until one is chosen.
func DepositFor(consultationType string, inPersonFee models.Money) models.Money {
	if consultationType == models.ConsultationInPerson {
		return inPersonFee
	}
	return models.NewMoney(0, inPersonFee.Currency)
}
