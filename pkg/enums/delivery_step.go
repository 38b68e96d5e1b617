package enums

import "fmt"

// DeliveryStep is the carrier progression: step0 has no waybill, step6 is delivered.
type DeliveryStep string

const (
	DeliveryStep0 DeliveryStep = "step0"
	DeliveryStep1 DeliveryStep = "step1"
	DeliveryStep2 DeliveryStep = "step2"
	DeliveryStep3 DeliveryStep = "step3"
	DeliveryStep4 DeliveryStep = "step4"
	DeliveryStep5 DeliveryStep = "step5"
	DeliveryStep6 DeliveryStep = "step6"
)

var validDeliverySteps = []DeliveryStep{
	DeliveryStep0,
	DeliveryStep1,
	DeliveryStep2,
	DeliveryStep3,
	DeliveryStep4,
	DeliveryStep5,
	DeliveryStep6,
}

func (s DeliveryStep) String() string {
	return string(s)
}

func (s DeliveryStep) IsValid() bool {
	return s.Ordinal() >= 0
}

// Ordinal returns the position of the step in the progression, or -1 when unknown.
func (s DeliveryStep) Ordinal() int {
	for i, candidate := range validDeliverySteps {
		if candidate == s {
			return i
		}
	}
	return -1
}

func (s DeliveryStep) IsDelivered() bool {
	return s == DeliveryStep6
}

func ParseDeliveryStep(value string) (DeliveryStep, error) {
	for _, candidate := range validDeliverySteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery step %q", value)
}
