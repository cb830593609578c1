package currency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type memRates struct {
	tables map[string]map[string]float64
	sets   int
}

func (m *memRates) GetRates(_ context.Context, base string) (map[string]float64, error) {
	return m.tables[base], nil
}

func (m *memRates) SetRates(_ context.Context, base string, rates map[string]float64) error {
	if m.tables == nil {
		m.tables = map[string]map[string]float64{}
	}
	m.tables[base] = rates
	m.sets++
	return nil
}

func TestConvertFallbackTable(t *testing.T) {
	c := NewConverter("eur", "", nil)
	ctx := context.Background()

	got, err := c.Convert(ctx, 1000, "usd")
	if err != nil {
		t.Fatal(err)
	}
	if got != 930 {
		t.Errorf("1000 USD = %v EUR, want 930", got)
	}

	if got, _ := c.Convert(ctx, 1234.5, "EUR"); got != 1234.5 {
		t.Errorf("same currency changed the amount: %v", got)
	}
}

func TestConvertCrossBase(t *testing.T) {
	c := NewConverter("USD", "", nil)
	got, err := c.Convert(context.Background(), 930, "EUR")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("930 EUR = %v USD, want 1000", got)
	}
}

func TestConvertUnsupported(t *testing.T) {
	c := NewConverter("EUR", "", nil)
	for _, code := range []string{"XYZ", ""} {
		if _, err := c.Convert(context.Background(), 10, code); !errors.Is(err, ErrUnsupportedCurrency) {
			t.Errorf("Convert(%q) err = %v, want ErrUnsupportedCurrency", code, err)
		}
	}
}

func TestConvertLiveRates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"base":"EUR","rates":{"USD":1.25,"GBP":0.8}}`)
	}))
	defer srv.Close()

	cache := &memRates{}
	c := NewConverter("EUR", srv.URL, cache)
	ctx := context.Background()

	got, err := c.Convert(ctx, 1000, "USD")
	if err != nil {
		t.Fatal(err)
	}
	if got != 800 {
		t.Errorf("1000 USD = %v EUR, want 800 from live rates", got)
	}
	if got, _ := c.Convert(ctx, 100, "GBP"); got != 125 {
		t.Errorf("100 GBP = %v EUR, want 125", got)
	}
	// not in the live table, falls back to the static one
	if got, _ := c.Convert(ctx, 100, "CHF"); got != 105 {
		t.Errorf("100 CHF = %v EUR, want 105", got)
	}

	if calls != 1 {
		t.Errorf("rates fetched %d times, want 1", calls)
	}
	if cache.sets != 1 || cache.tables["EUR"]["USD"] != 0.8 {
		t.Errorf("cache = %+v", cache.tables)
	}
}

func TestConvertLiveRatesFromCache(t *testing.T) {
	cache := &memRates{tables: map[string]map[string]float64{"EUR": {"USD": 0.5}}}
	c := NewConverter("EUR", "http://127.0.0.1:1/unused", cache)

	got, err := c.Convert(context.Background(), 100, "USD")
	if err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Errorf("100 USD = %v EUR, want 50 from cached rates", got)
	}
}

func TestConvertLiveRatesDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewConverter("EUR", srv.URL, nil)
	got, err := c.Convert(context.Background(), 1000, "USD")
	if err != nil {
		t.Fatal(err)
	}
	if got != 930 {
		t.Errorf("got %v, want fallback 930", got)
	}
}

func TestNormalizeRequiresBase(t *testing.T) {
	_, err := normalize(ratesDocument{Base: "USD", Rates: map[string]float64{"GBP": 0.8}}, "EUR")
	if !errors.Is(err, ErrUnsupportedCurrency) {
		t.Errorf("err = %v", err)
	}
}
