package call

import (
	"encoding/json"
	"fmt"

	"github.com/librecall/librecall/internal/engine"
	"github.com/librecall/librecall/internal/store"
)

// Store layout of one call. The record itself holds the offer and answer
// descriptions (each written exactly once, by one side); candidates live in
// two append-only sub-collections, one per writer.
const (
	callsCollection = "calls"

	offerCandidates  = "offerCandidates"
	answerCandidates = "answerCandidates"

	fieldOffer   = "offer"
	fieldAnswer  = "answer"
	fieldStatus  = "status"
	fieldEndedAt = "endedAt"

	statusEnded = "ended"
)

func callPath(id string) string {
	return callsCollection + "/" + id
}

func offerCandidatesPath(id string) string {
	return callPath(id) + "/" + offerCandidates
}

func answerCandidatesPath(id string) string {
	return callPath(id) + "/" + answerCandidates
}

// descriptionDoc encodes a description as the nested {"type","sdp"} map
// stored under the offer or answer field.
func descriptionDoc(d engine.Description) store.Document {
	return store.Document{"type": d.Type, "sdp": d.SDP}
}

// descriptionAt extracts the description stored under field, reporting
// whether the field is present and well-formed. The nested map's dynamic
// type depends on who wrote it: store.Document when written in-process,
// map[string]any when it crossed the wire as JSON.
func descriptionAt(doc store.Document, field string) (engine.Description, bool) {
	var nested map[string]any
	switch v := doc[field].(type) {
	case store.Document:
		nested = v
	case map[string]any:
		nested = v
	default:
		return engine.Description{}, false
	}
	typ, _ := nested["type"].(string)
	sdp, _ := nested["sdp"].(string)
	if typ == "" || sdp == "" {
		return engine.Description{}, false
	}
	return engine.Description{Type: typ, SDP: sdp}, true
}

// candidateDoc encodes a candidate as a store document, field-for-field the
// JSON form of the candidate itself.
func candidateDoc(c engine.Candidate) (store.Document, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode candidate: %w", err)
	}
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode candidate: %w", err)
	}
	return doc, nil
}

// candidateFromDoc decodes a candidate record appended by the remote side.
func candidateFromDoc(doc store.Document) (engine.Candidate, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return engine.Candidate{}, fmt.Errorf("decode candidate: %w", err)
	}
	var c engine.Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return engine.Candidate{}, fmt.Errorf("decode candidate: %w", err)
	}
	if c.Candidate == "" {
		return engine.Candidate{}, fmt.Errorf("decode candidate: empty candidate field")
	}
	return c, nil
}
