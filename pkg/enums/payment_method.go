package enums

import "fmt"

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "Tarjeta"
	PaymentMethodPayPal   PaymentMethod = "PayPal"
	PaymentMethodTransfer PaymentMethod = "Transferencia"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodPayPal,
	PaymentMethodTransfer,
}

func (m PaymentMethod) String() string {
	return string(m)
}

func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentStatus is a recorded flag; no gateway is consulted. A payment is
// written Aprobado at checkout and only ever moves to Reembolsado.
type PaymentStatus string

const (
	PaymentStatusApproved PaymentStatus = "Aprobado"
	PaymentStatusRefunded PaymentStatus = "Reembolsado"
)
