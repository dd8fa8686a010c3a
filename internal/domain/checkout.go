package domain

type CheckoutStep string

const (
	CheckoutStepShippingInfo  CheckoutStep = "SHIPPING_INFO"
	CheckoutStepPaymentMethod CheckoutStep = "PAYMENT_METHOD"
	CheckoutStepReview        CheckoutStep = "REVIEW"
	CheckoutStepCommitted     CheckoutStep = "COMMITTED"
)

// String representation (for logging)
func (s CheckoutStep) String() string {
	return string(s)
}

// Previous is the step Back() returns to; ok is false where there is none.
func (s CheckoutStep) Previous() (CheckoutStep, bool) {
	switch s {
	case CheckoutStepPaymentMethod:
		return CheckoutStepShippingInfo, true
	case CheckoutStepReview:
		return CheckoutStepPaymentMethod, true
	default:
		return s, false
	}
}

type PaymentKind string

const (
	PaymentCard PaymentKind = "card"
	PaymentCash PaymentKind = "cash"
)

func (k PaymentKind) Valid() bool {
	return k == PaymentCard || k == PaymentCash
}

type CardDetails struct {
	Number     string `json:"number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	HolderName string `json:"holder_name"`
}

// PaymentSelection is card or cash. Card details never leave the pipeline.
type PaymentSelection struct {
	Kind PaymentKind  `json:"kind"`
	Card *CardDetails `json:"card,omitempty"`
}
