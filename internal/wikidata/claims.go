package wikidata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Claim is one statement on an entity. Only the main snak carries a value
// here; qualifiers and references are not needed for fact answers.
type Claim struct {
	Mainsnak Snak `json:"mainsnak"`
}

type Snak struct {
	SnakType  string    `json:"snaktype"`
	DataValue DataValue `json:"datavalue"`
}

type DataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ValueKind classifies a claim's main value.
type ValueKind int

const (
	KindUnknown ValueKind = iota
	KindTime
	KindEntity
	KindQuantity
	KindCoordinate
	KindString
)

// Value is a claim value reduced to the fields each kind needs. For
// KindEntity the label still has to be resolved separately from the QID.
type Value struct {
	Kind      ValueKind
	Text      string
	QID       string
	Amount    string
	Unit      string
	Latitude  float64
	Longitude float64
}

// Value extracts and types the claim's main value. Claims without a value
// snak (novalue, somevalue) and undecodable payloads come back as
// KindUnknown.
func (c Claim) Value() Value {
	if c.Mainsnak.SnakType != "value" {
		return Value{Kind: KindUnknown}
	}
	dv := c.Mainsnak.DataValue

	switch dv.Type {
	case "time":
		var payload struct {
			Time string `json:"time"`
		}
		if err := json.Unmarshal(dv.Value, &payload); err != nil {
			return Value{Kind: KindUnknown}
		}
		// "+1955-02-24T00:00:00Z" keeps only the date portion.
		date, _, _ := strings.Cut(strings.TrimPrefix(payload.Time, "+"), "T")
		return Value{Kind: KindTime, Text: date}

	case "wikibase-entityid":
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(dv.Value, &payload); err != nil || payload.ID == "" {
			return Value{Kind: KindUnknown}
		}
		return Value{Kind: KindEntity, QID: payload.ID}

	case "quantity":
		var payload struct {
			Amount string `json:"amount"`
			Unit   string `json:"unit"`
		}
		if err := json.Unmarshal(dv.Value, &payload); err != nil {
			return Value{Kind: KindUnknown}
		}
		return Value{Kind: KindQuantity, Amount: payload.Amount, Unit: payload.Unit}

	case "globecoordinate":
		var payload struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := json.Unmarshal(dv.Value, &payload); err != nil {
			return Value{Kind: KindUnknown}
		}
		return Value{Kind: KindCoordinate, Latitude: payload.Latitude, Longitude: payload.Longitude}

	default:
		var text string
		if err := json.Unmarshal(dv.Value, &text); err != nil {
			return Value{Kind: KindUnknown}
		}
		return Value{Kind: KindString, Text: text}
	}
}

// Format renders the value for a fact answer. lookup maps a QID to its
// resolved label; an unresolved entity renders as a placeholder so the
// answer never silently drops a claim that did resolve to an id. The second
// return is false when the value carries nothing worth reporting.
func (v Value) Format(lookup func(qid string) (string, bool)) (string, bool) {
	switch v.Kind {
	case KindTime:
		return v.Text, v.Text != ""
	case KindEntity:
		if lookup != nil {
			if label, ok := lookup(v.QID); ok && label != "" {
				return label, true
			}
		}
		return fmt.Sprintf("unknown entity (%s)", v.QID), true
	case KindQuantity:
		return fmt.Sprintf("%s (unit: %s)", v.Amount, v.Unit), v.Amount != ""
	case KindCoordinate:
		return fmt.Sprintf("lat %v, lon %v", v.Latitude, v.Longitude), true
	case KindString:
		return v.Text, v.Text != ""
	default:
		return "", false
	}
}
