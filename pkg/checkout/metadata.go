package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// Stripe caps metadata at 50 keys of at most 500 characters each.
const (
	maxMetadataValue = 500
	maxItemChunks    = 36
	itemsKeyPrefix   = "items_"
)

const (
	keyMode          = "mode"
	keyCompanyName   = "company_name"
	keyEmail         = "customer_email"
	keyPhone         = "customer_phone"
	keyAddress       = "delivery_address"
	keyWeekday       = "preferred_weekday"
	keyDeliveryDate  = "delivery_date"
	keyFrequency     = "frequency"
	keyPromoCode     = "promo_code"
	keyDiscountCents = "discount_cents"
	keyItemChunks    = "items_chunks"
)

// CompositionLine is one fruit of a custom basket.
type CompositionLine struct {
	FruitID    string `json:"f"`
	QuantityKg string `json:"kg"`
}

// Item is a cart line carried through the checkout session. Short JSON keys
// keep the encoded form inside the metadata size limits.
type Item struct {
	ProductType    enums.ProductType `json:"t"`
	ProductID      string            `json:"id"`
	Name           string            `json:"n"`
	Quantity       int               `json:"q"`
	UnitPriceCents int64             `json:"p"`
	Composition    []CompositionLine `json:"c,omitempty"`
}

// Metadata is everything the webhook needs to rebuild the order once paid.
type Metadata struct {
	Mode             enums.CheckoutMode
	CompanyName      string
	CustomerEmail    string
	CustomerPhone    string
	DeliveryAddress  string
	PreferredWeekday enums.DeliveryWeekday
	DeliveryDate     string
	Frequency        enums.Frequency
	PromoCode        string
	DiscountCents    int64
	Items            []Item
}

// Encode flattens the metadata into Stripe's string map, splitting the item
// list across numbered keys.
func (m Metadata) Encode() (map[string]string, error) {
	raw, err := json.Marshal(m.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	chunks := split(string(raw), maxMetadataValue)
	if len(chunks) > maxItemChunks {
		return nil, fmt.Errorf("cart too large for checkout metadata (%d chunks)", len(chunks))
	}

	out := map[string]string{
		keyMode:         string(m.Mode),
		keyEmail:        m.CustomerEmail,
		keyAddress:      m.DeliveryAddress,
		keyWeekday:      string(m.PreferredWeekday),
		keyDeliveryDate: m.DeliveryDate,
		keyItemChunks:   strconv.Itoa(len(chunks)),
	}
	setIf(out, keyCompanyName, m.CompanyName)
	setIf(out, keyPhone, m.CustomerPhone)
	setIf(out, keyFrequency, string(m.Frequency))
	setIf(out, keyPromoCode, m.PromoCode)
	if m.DiscountCents > 0 {
		out[keyDiscountCents] = strconv.FormatInt(m.DiscountCents, 10)
	}
	for i, chunk := range chunks {
		out[itemsKeyPrefix+strconv.Itoa(i)] = chunk
	}
	for key, value := range out {
		if len(value) > maxMetadataValue {
			return nil, fmt.Errorf("metadata %s exceeds %d characters", key, maxMetadataValue)
		}
	}
	return out, nil
}

// DecodeMetadata reverses Encode.
func DecodeMetadata(raw map[string]string) (*Metadata, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("checkout metadata missing")
	}
	mode, err := enums.ParseCheckoutMode(raw[keyMode])
	if err != nil {
		return nil, err
	}
	weekday, err := enums.ParseDeliveryWeekday(raw[keyWeekday])
	if err != nil {
		return nil, err
	}
	m := &Metadata{
		Mode:             mode,
		CompanyName:      raw[keyCompanyName],
		CustomerEmail:    raw[keyEmail],
		CustomerPhone:    raw[keyPhone],
		DeliveryAddress:  raw[keyAddress],
		PreferredWeekday: weekday,
		DeliveryDate:     raw[keyDeliveryDate],
		PromoCode:        raw[keyPromoCode],
	}
	if freq := raw[keyFrequency]; freq != "" {
		parsed, err := enums.ParseFrequency(freq)
		if err != nil {
			return nil, err
		}
		m.Frequency = parsed
	}
	if mode == enums.CheckoutModeSubscription && m.Frequency == "" {
		return nil, fmt.Errorf("subscription checkout without frequency")
	}
	if discount := raw[keyDiscountCents]; discount != "" {
		m.DiscountCents, err = strconv.ParseInt(discount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid discount_cents %q", discount)
		}
	}

	items, err := joinItems(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &m.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return m, nil
}

func joinItems(raw map[string]string) (string, error) {
	count, err := strconv.Atoi(raw[keyItemChunks])
	if err != nil || count <= 0 {
		return "", fmt.Errorf("invalid items_chunks %q", raw[keyItemChunks])
	}
	var b strings.Builder
	for i := 0; i < count; i++ {
		chunk, ok := raw[itemsKeyPrefix+strconv.Itoa(i)]
		if !ok {
			return "", fmt.Errorf("missing items chunk %d of %d", i, count)
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

// split cuts s into pieces of at most size bytes without breaking a UTF-8 rune.
func split(s string, size int) []string {
	var out []string
	for len(s) > size {
		cut := size
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return append(out, s)
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func setIf(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
