package wikidata

import (
	"encoding/json"
	"testing"
)

func mustClaim(t *testing.T, raw string) Claim {
	t.Helper()
	var claim Claim
	if err := json.Unmarshal([]byte(raw), &claim); err != nil {
		t.Fatalf("unmarshal claim: %v", err)
	}
	return claim
}

func TestClaimValue(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Value
	}{
		{
			name: "time truncates to date",
			raw:  `{"mainsnak":{"snaktype":"value","datavalue":{"type":"time","value":{"time":"+1955-02-24T00:00:00Z"}}}}`,
			want: Value{Kind: KindTime, Text: "1955-02-24"},
		},
		{
			name: "entity reference keeps qid",
			raw:  `{"mainsnak":{"snaktype":"value","datavalue":{"type":"wikibase-entityid","value":{"id":"Q312"}}}}`,
			want: Value{Kind: KindEntity, QID: "Q312"},
		},
		{
			name: "quantity",
			raw:  `{"mainsnak":{"snaktype":"value","datavalue":{"type":"quantity","value":{"amount":"+8848.86","unit":"metre"}}}}`,
			want: Value{Kind: KindQuantity, Amount: "+8848.86", Unit: "metre"},
		},
		{
			name: "coordinate",
			raw:  `{"mainsnak":{"snaktype":"value","datavalue":{"type":"globecoordinate","value":{"latitude":27.98,"longitude":86.92}}}}`,
			want: Value{Kind: KindCoordinate, Latitude: 27.98, Longitude: 86.92},
		},
		{
			name: "plain string",
			raw:  `{"mainsnak":{"snaktype":"value","datavalue":{"type":"string","value":"apple.com"}}}`,
			want: Value{Kind: KindString, Text: "apple.com"},
		},
		{
			name: "novalue snak",
			raw:  `{"mainsnak":{"snaktype":"novalue"}}`,
			want: Value{Kind: KindUnknown},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustClaim(t, tc.raw).Value(); got != tc.want {
				t.Fatalf("Value() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestValueFormat(t *testing.T) {
	labels := map[string]string{"Q8027": "史蒂夫·乔布斯"}
	lookup := func(qid string) (string, bool) {
		label, ok := labels[qid]
		return label, ok
	}

	cases := []struct {
		name   string
		value  Value
		want   string
		wantOK bool
	}{
		{"time", Value{Kind: KindTime, Text: "1955-02-24"}, "1955-02-24", true},
		{"resolved entity", Value{Kind: KindEntity, QID: "Q8027"}, "史蒂夫·乔布斯", true},
		{"unresolved entity", Value{Kind: KindEntity, QID: "Q999"}, "unknown entity (Q999)", true},
		{"quantity", Value{Kind: KindQuantity, Amount: "+8848.86", Unit: "metre"}, "+8848.86 (unit: metre)", true},
		{"coordinate", Value{Kind: KindCoordinate, Latitude: 27.98, Longitude: 86.92}, "lat 27.98, lon 86.92", true},
		{"string", Value{Kind: KindString, Text: "apple.com"}, "apple.com", true},
		{"unknown", Value{Kind: KindUnknown}, "", false},
		{"empty time", Value{Kind: KindTime}, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.value.Format(lookup)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("Format() = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}
