package enums

import "fmt"

type MovementType string

const (
	MovementInbound  MovementType = "Entrada"
	MovementOutbound MovementType = "Salida"
)

var validMovementTypes = []MovementType{MovementInbound, MovementOutbound}

func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
