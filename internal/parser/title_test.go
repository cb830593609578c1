package parser

import (
	"testing"

	"watch-deal-finder/internal/models"
)

func TestParseTitle(t *testing.T) {
	cases := []struct {
		name  string
		title string
		want  TitleInfo
	}{
		{
			name:  "reddit wts with price",
			title: "[WTS] Rolex Submariner 16610 - $9,500 shipped",
			want:  TitleInfo{Brand: "Rolex", Model: "Submariner", Reference: "16610", CleanTitle: "Rolex Submariner"},
		},
		{
			name:  "alphanumeric reference",
			title: "[WTS] Rolex Submariner Date 126610LN Full Set 2021",
			want:  TitleInfo{Brand: "Rolex", Model: "Submariner Date 2021", Reference: "126610LN", CleanTitle: "Rolex Submariner Date 2021"},
		},
		{
			name:  "year is never a reference",
			title: "[WTS] Omega Speedmaster Professional 2019 box and papers",
			want:  TitleInfo{Brand: "Omega", Model: "Speedmaster Professional 2019", Reference: models.NoReference, CleanTitle: "Omega Speedmaster Professional 2019"},
		},
		{
			name:  "dotted omega reference and case size",
			title: "Omega Seamaster 300M 210.30.42.20.01.001 42mm",
			want:  TitleInfo{Brand: "Omega", Model: "Seamaster 300M 42mm", Reference: "210.30.42.20.01.001", CleanTitle: "Omega Seamaster 300M 42mm"},
		},
		{
			name:  "multi word brand",
			title: "[WTS] Patek Philippe Nautilus 5711/1A",
			want:  TitleInfo{Brand: "Patek Philippe", Model: "Nautilus", Reference: "5711/1A", CleanTitle: "Patek Philippe Nautilus"},
		},
		{
			name:  "grand seiko wins over seiko",
			title: "WTS Grand Seiko Snowflake SBGA211",
			want:  TitleInfo{Brand: "Grand Seiko", Model: "Snowflake", Reference: "SBGA211", CleanTitle: "Grand Seiko Snowflake"},
		},
		{
			name:  "unknown brand and no reference",
			title: "[WTS] Vintage dress watch, very clean",
			want:  TitleInfo{Brand: models.UnknownBrand, Model: "Vintage dress watch, very clean", Reference: models.NoReference, CleanTitle: "Vintage dress watch, very clean"},
		},
		{
			name:  "reference only inside parentheses",
			title: "[WTS] Rolex Explorer (ref. 14270) - 5.2k",
			want:  TitleInfo{Brand: "Rolex", Model: "Explorer", Reference: "14270", CleanTitle: "Rolex Explorer"},
		},
		{
			name:  "price is not a reference",
			title: "Tudor Black Bay 58 $3,100",
			want:  TitleInfo{Brand: "Tudor", Model: "Black Bay 58", Reference: models.NoReference, CleanTitle: "Tudor Black Bay 58"},
		},
		{
			name:  "bare number price is not part of the model",
			title: "[WTS] Seiko SKX007 - 250 shipped",
			want:  TitleInfo{Brand: "Seiko", Model: "", Reference: "SKX007", CleanTitle: "Seiko"},
		},
		{
			name:  "repeated stop words",
			title: "[WTS] Omega Seamaster wts fs fs",
			want:  TitleInfo{Brand: "Omega", Model: "Seamaster", Reference: models.NoReference, CleanTitle: "Omega Seamaster"},
		},
		{
			name:  "stop words next to punctuation",
			title: "Tudor Pelagos (fs/ft) obo, obo",
			want:  TitleInfo{Brand: "Tudor", Model: "Pelagos", Reference: models.NoReference, CleanTitle: "Tudor Pelagos"},
		},
		{
			name:  "accented brand",
			title: "WTS Glashütte Original Senator Excellence",
			want:  TitleInfo{Brand: "Glashütte Original", Model: "Senator Excellence", Reference: models.NoReference, CleanTitle: "Glashütte Original Senator Excellence"},
		},
		{
			name:  "brand written without accents",
			title: "Hermes Arceau",
			want:  TitleInfo{Brand: "Hermès", Model: "Arceau", Reference: models.NoReference, CleanTitle: "Hermès Arceau"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseTitle(c.title)
			if got != c.want {
				t.Errorf("ParseTitle(%q)\n got  %+v\n want %+v", c.title, got, c.want)
			}
		})
	}
}

func TestMatchBrandIsCaseInsensitive(t *testing.T) {
	if got := matchBrand("TAG HEUER Carrera"); got != "TAG Heuer" {
		t.Errorf("matchBrand = %q, want TAG Heuer", got)
	}
}

func TestIsReferenceCandidateRejectsNoise(t *testing.T) {
	for _, tok := range []string{"2021", "1999", "40mm", "39.5mm", "300m", "12/05/2023", "GMT", "Mk2", "abc"} {
		if isReferenceCandidate(tok) {
			t.Errorf("isReferenceCandidate(%q) = true, want false", tok)
		}
	}
	for _, tok := range []string{"1680", "SKX007", "126610LN", "IW371446", "M79230B-0001"} {
		if !isReferenceCandidate(tok) {
			t.Errorf("isReferenceCandidate(%q) = false, want true", tok)
		}
	}
}

func TestFoldAccents(t *testing.T) {
	if got := foldAccents("A. Lange & Söhne"); got != "A. Lange & Sohne" {
		t.Errorf("foldAccents = %q", got)
	}
	if got := matchBrand(foldAccents("Lange & Söhne 1815")); got != "A. Lange & Söhne" {
		t.Errorf("matchBrand = %q", got)
	}
}
