package checkout

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

func sampleMetadata() Metadata {
	return Metadata{
		Mode:             enums.CheckoutModeSubscription,
		CompanyName:      "Atelier Dupont",
		CustomerEmail:    "achats@dupont.fr",
		CustomerPhone:    "+33123456789",
		DeliveryAddress:  "5 rue de la Paix, 75002 Paris",
		PreferredWeekday: enums.DeliveryTuesday,
		DeliveryDate:     "2026-02-03",
		Frequency:        enums.FrequencyBiweekly,
		PromoCode:        "BIENVENUE",
		DiscountCents:    399,
		Items: []Item{
			{ProductType: enums.ProductBasket, ProductID: "basket-m", Name: "Corbeille M", Quantity: 1, UnitPriceCents: 3990},
		},
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	in := sampleMetadata()
	encoded, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded["items_chunks"] != "1" {
		t.Fatalf("expected a single chunk, got %q", encoded["items_chunks"])
	}

	out, err := DecodeMetadata(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Frequency != enums.FrequencyBiweekly || out.DiscountCents != 399 || out.PromoCode != "BIENVENUE" {
		t.Fatalf("unexpected decode result: %+v", out)
	}
	if len(out.Items) != 1 || out.Items[0].UnitPriceCents != 3990 {
		t.Fatalf("unexpected items: %+v", out.Items)
	}
}

func TestMetadataSplitsLargeCarts(t *testing.T) {
	in := sampleMetadata()
	in.Items = nil
	for i := 0; i < 30; i++ {
		in.Items = append(in.Items, Item{
			ProductType:    enums.ProductFruit,
			ProductID:      "fruit-" + strings.Repeat("x", 10),
			Name:           "Clémentine de Corse",
			Quantity:       3,
			UnitPriceCents: 450,
		})
	}
	encoded, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded["items_chunks"] == "1" {
		t.Fatal("expected the item list to be split")
	}
	for key, value := range encoded {
		if len(value) > 500 {
			t.Fatalf("%s is %d characters", key, len(value))
		}
	}
	out, err := DecodeMetadata(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 30 || out.Items[29].Name != "Clémentine de Corse" {
		t.Fatalf("items not restored: %d", len(out.Items))
	}
}

func TestDecodeMetadataRejectsMissingChunk(t *testing.T) {
	encoded, err := sampleMetadata().Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	encoded["items_chunks"] = "2"
	if _, err := DecodeMetadata(encoded); err == nil {
		t.Fatal("expected missing chunk error")
	}
}

func TestDecodeMetadataRequiresFrequencyForSubscriptions(t *testing.T) {
	in := sampleMetadata()
	in.Frequency = ""
	encoded, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeMetadata(encoded); err == nil {
		t.Fatal("expected frequency error")
	}
}

func TestSplitKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 10)
	for _, part := range split(s, 5) {
		if !utf8.ValidString(part) {
			t.Fatalf("part %q cut inside a rune", part)
		}
	}
}
