package domain

import (
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var couponCaser = cases.Upper(language.Und)

// Normalize trims both identifiers and drops the guest token when a user is present.
func (k CartKey) Normalize() CartKey {
	key := CartKey{
		UserID:     strings.TrimSpace(k.UserID),
		GuestToken: strings.TrimSpace(k.GuestToken),
	}
	if key.UserID != "" {
		key.GuestToken = ""
	}
	return key
}

// IsZero reports whether neither identifier is set.
func (k CartKey) IsZero() bool {
	key := k.Normalize()
	return key.UserID == "" && key.GuestToken == ""
}

// Owner returns the owner kind and identifier the key resolves to.
func (k CartKey) Owner() (CartOwnerKind, string) {
	key := k.Normalize()
	if key.UserID != "" {
		return CartOwnerUser, key.UserID
	}
	return CartOwnerGuest, key.GuestToken
}

// StorageID returns the document identifier used to persist the cart for this key.
func (k CartKey) StorageID() string {
	kind, id := k.Owner()
	if id == "" {
		return ""
	}
	return string(kind) + ":" + id
}

// ParsePaymentMethod validates a raw payment method value.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw))); method {
	case PaymentMethodCOD, PaymentMethodBankTransfer, PaymentMethodOnlinePayment:
		return method, true
	default:
		return "", false
	}
}

// ParseOrderStatus validates a raw order status value.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch status := OrderStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipping, OrderStatusCompleted, OrderStatusCanceled:
		return status, true
	default:
		return "", false
	}
}

// NormalizeCouponCode trims and upper-cases a coupon code.
func NormalizeCouponCode(code string) string {
	return couponCaser.String(strings.TrimSpace(code))
}

// Normalize returns a copy with NFC-normalised, trimmed fields.
func (a ShippingAddress) Normalize() ShippingAddress {
	clean := func(value string) string {
		return strings.Join(strings.Fields(norm.NFC.String(value)), " ")
	}
	return ShippingAddress{
		FullName: clean(a.FullName),
		Phone:    strings.ReplaceAll(clean(a.Phone), " ", ""),
		Email:    strings.ToLower(clean(a.Email)),
		Street:   clean(a.Street),
		Ward:     clean(a.Ward),
		District: clean(a.District),
		City:     clean(a.City),
	}
}

// MissingFields lists required fields that are absent or malformed. Email is optional.
func (a ShippingAddress) MissingFields() []string {
	addr := a.Normalize()
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"fullName", addr.FullName},
		{"phone", addr.Phone},
		{"street", addr.Street},
		{"ward", addr.Ward},
		{"district", addr.District},
		{"city", addr.City},
	}
	for _, field := range required {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if addr.Phone != "" && !validPhone(addr.Phone) {
		missing = append(missing, "phone")
	}
	if addr.Email != "" {
		if _, err := mail.ParseAddress(addr.Email); err != nil {
			missing = append(missing, "email")
		}
	}
	return missing
}

func validPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		default:
			return false
		}
	}
	return digits >= 9 && digits <= 15
}
