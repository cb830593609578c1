package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const ebayFixture = `<html><body><ul class="srp-results">
<li class="s-item">
	<div class="s-item__title"><span>Shop on eBay</span></div>
	<span class="s-item__price">$20.00</span>
</li>
<li class="s-item">
	<a class="s-item__link" href="%[1]s/itm/1234567890?hash=item1c&amp;_trkparms=x">
		<div class="s-item__title"><span>New Listing</span>Tudor Black Bay 58 79030N Blue</div>
	</a>
	<img src="https://i.ebayimg.com/images/g/abc/s-l500.jpg">
	<span class="s-item__price">$3,150.00</span>
</li>
<li class="s-item">
	<a class="s-item__link" href="%[1]s/itm/2222">
		<div class="s-item__title">Seiko SKX007 Diver</div>
	</a>
	<span class="s-item__price">EUR 245,00</span>
</li>
<li class="s-item">
	<a class="s-item__link" href="%[1]s/itm/3333"><div class="s-item__title">Hamilton Khaki, no price</div></a>
</li>
</ul></body></html>`

func newTestEbay(t *testing.T, check func(*http.Request)) *EbayScraper {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sch/i.html" {
			http.NotFound(w, r)
			return
		}
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, ebayFixture, srv.URL)
	}))
	t.Cleanup(srv.Close)

	return NewEbayScraper(EbayConfig{BaseURL: srv.URL, Query: "used watch"})
}

func TestEbayFetchListings(t *testing.T) {
	e := newTestEbay(t, func(r *http.Request) {
		q := r.URL.Query()
		if q.Get("_sacat") != ebayWatchCategory || q.Get("_nkw") != "used watch" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("LH_Sold") != "" {
			t.Error("active search must not request sold items")
		}
	})

	listings, err := e.FetchListings(context.Background())
	if err != nil {
		t.Fatalf("FetchListings: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("got %d listings, want 2: %+v", len(listings), listings)
	}

	tudor := listings[0]
	if tudor.Title != "Tudor Black Bay 58 79030N Blue" {
		t.Errorf("title = %q", tudor.Title)
	}
	if tudor.ListingPrice != 3150 || tudor.Currency != "USD" {
		t.Errorf("price = %v %s", tudor.ListingPrice, tudor.Currency)
	}
	if tudor.SourceURL != e.cfg.BaseURL+"/itm/1234567890" {
		t.Errorf("tracking not stripped: %q", tudor.SourceURL)
	}
	if tudor.ImageURL == "" || len(tudor.ImageURLs) != 1 {
		t.Errorf("image = %q %v", tudor.ImageURL, tudor.ImageURLs)
	}

	seiko := listings[1]
	if seiko.ListingPrice != 245 || seiko.Currency != "EUR" {
		t.Errorf("seiko price = %v %s", seiko.ListingPrice, seiko.Currency)
	}
}

func TestEbaySearchSold(t *testing.T) {
	e := newTestEbay(t, func(r *http.Request) {
		q := r.URL.Query()
		if q.Get("LH_Sold") != "1" || q.Get("LH_Complete") != "1" {
			t.Errorf("sold search query = %v", q)
		}
		if q.Get("_nkw") != "Rolex 16610" {
			t.Errorf("_nkw = %q", q.Get("_nkw"))
		}
	})

	sold, err := e.SearchSold(context.Background(), "Rolex 16610")
	if err != nil {
		t.Fatalf("SearchSold: %v", err)
	}
	if len(sold) != 2 {
		t.Errorf("got %d sold results, want 2", len(sold))
	}
}

func TestEbayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEbayScraper(EbayConfig{BaseURL: srv.URL, Query: "watch"})
	listings, err := e.FetchListings(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if listings == nil {
		t.Error("listings should be an empty slice, not nil")
	}
}

func TestCleanListingTitle(t *testing.T) {
	cases := map[string]string{
		"New Listing Omega Seamaster":            "Omega Seamaster",
		"Shop on eBay":                           "",
		"  Rolex   Datejust  16234  ":            "Rolex Datejust 16234",
		"Seiko SKX Opens in a new window or tab": "Seiko SKX",
	}
	for in, want := range cases {
		if got := cleanListingTitle(in); got != want {
			t.Errorf("cleanListingTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
