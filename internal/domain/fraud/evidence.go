package fraud

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckType identifies the kind of sensitive request being scored
type CheckType string

const (
	CheckOrderCreation CheckType = "order_creation"
	CheckPayment       CheckType = "payment"
	CheckLogin         CheckType = "login"
	CheckAccountUpdate CheckType = "account_update"
)

// CheckTypes lists every check type
var CheckTypes = []CheckType{CheckOrderCreation, CheckPayment, CheckLogin, CheckAccountUpdate}

// Valid reports whether c is a known check type
func (c CheckType) Valid() bool {
	for _, ct := range CheckTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// PaymentMethod is how an order is paid
type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentCashOnDelivery PaymentMethod = "cod"
	PaymentEWallet        PaymentMethod = "ewallet"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
)

// RequestContext carries what the HTTP boundary derives from every request
type RequestContext struct {
	UserID            string
	IP                string
	UserAgent         string
	DeviceFingerprint string
	DeviceInfo        map[string]any
	At                time.Time
}

// Evidence is the closed set of inputs the scorer accepts. Each check type
// has its own concrete type so invalid combinations cannot be built.
type Evidence interface {
	CheckType() CheckType
	Request() RequestContext
	evidence()
}

// OrderEvidence is scored when an order is created
type OrderEvidence struct {
	RequestContext
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	ItemCount     int
}

// PaymentEvidence is scored when a payment is initiated
type PaymentEvidence struct {
	RequestContext
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	Provider      string
	OrderID       string
}

// LoginEvidence is scored on login. UserID may be empty before the
// identity is resolved; Identifier is the submitted login name.
type LoginEvidence struct {
	RequestContext
	Identifier string
}

// AccountUpdateEvidence is scored when account details change
type AccountUpdateEvidence struct {
	RequestContext
	Fields []string
}

func (OrderEvidence) CheckType() CheckType         { return CheckOrderCreation }
func (PaymentEvidence) CheckType() CheckType       { return CheckPayment }
func (LoginEvidence) CheckType() CheckType         { return CheckLogin }
func (AccountUpdateEvidence) CheckType() CheckType { return CheckAccountUpdate }

func (e OrderEvidence) Request() RequestContext         { return e.RequestContext }
func (e PaymentEvidence) Request() RequestContext       { return e.RequestContext }
func (e LoginEvidence) Request() RequestContext         { return e.RequestContext }
func (e AccountUpdateEvidence) Request() RequestContext { return e.RequestContext }

func (OrderEvidence) evidence()         {}
func (PaymentEvidence) evidence()       {}
func (LoginEvidence) evidence()         {}
func (AccountUpdateEvidence) evidence() {}

// monetary returns the amount and payment method for money-moving evidence
func monetary(ev Evidence) (decimal.Decimal, PaymentMethod, bool) {
	switch e := ev.(type) {
	case OrderEvidence:
		return e.Amount, e.PaymentMethod, true
	case *OrderEvidence:
		return e.Amount, e.PaymentMethod, true
	case PaymentEvidence:
		return e.Amount, e.PaymentMethod, true
	case *PaymentEvidence:
		return e.Amount, e.PaymentMethod, true
	}
	return decimal.Zero, "", false
}

// subjectID is the identity velocity is tracked under
func subjectID(ev Evidence) string {
	req := ev.Request()
	if req.UserID != "" {
		return req.UserID
	}
	switch e := ev.(type) {
	case LoginEvidence:
		return e.Identifier
	case *LoginEvidence:
		return e.Identifier
	}
	return ""
}
